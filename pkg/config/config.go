// Package config loads the notepost YAML configuration and converts it into
// the option structs of the individual components.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/entrhq/notepost/pkg/auth"
	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/content"
	"github.com/entrhq/notepost/pkg/media"
	"github.com/entrhq/notepost/pkg/publish"
)

// Config is the complete run configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Site    SiteConfig    `yaml:"site"`
	Auth    AuthConfig    `yaml:"auth"`
	Media   MediaConfig   `yaml:"media"`
	Content ContentConfig `yaml:"content"`
	LLM     LLMConfig     `yaml:"llm"`
	Logging LoggingConfig `yaml:"logging"`

	// Path is the file the configuration was loaded from, if any
	Path string `yaml:"-"`
}

// BrowserConfig controls session acquisition.
type BrowserConfig struct {
	Headless          bool             `yaml:"headless"`
	ExecutablePath    string           `yaml:"executable_path"`
	DebugHost         string           `yaml:"debug_host"`
	DebugPort         int              `yaml:"debug_port"`
	ProfileDir        string           `yaml:"profile_dir"`
	Viewport          browser.Viewport `yaml:"viewport"`
	UserAgent         string           `yaml:"user_agent"`
	Timeout           time.Duration    `yaml:"timeout"`
	NavigationTimeout time.Duration    `yaml:"navigation_timeout"`

	// Reuse attaches to a browser already listening on the debug endpoint
	Reuse bool `yaml:"reuse"`

	// KeepOpen leaves the browser running when the run ends
	KeepOpen bool `yaml:"keep_open"`
}

// SiteConfig describes the creator platform.
type SiteConfig struct {
	HomeURL           string   `yaml:"home_url"`
	PublishURL        string   `yaml:"publish_url"`
	AuthenticatedHost string   `yaml:"authenticated_host"`
	LoginMarker       string   `yaml:"login_marker"`
	SuccessMarkers    []string `yaml:"success_markers"`
	SuccessText       []string `yaml:"success_text"`
	FailureText       []string `yaml:"failure_text"`
	AcceptCookies     bool     `yaml:"accept_cookies"`
	Verify            bool     `yaml:"verify"`
	Tags              bool     `yaml:"tags"`
	Category          bool     `yaml:"category"`
}

// AuthConfig holds the login identity.
type AuthConfig struct {
	Identifier string        `yaml:"identifier"`
	TypeDelay  time.Duration `yaml:"type_delay"`
}

// MediaConfig controls random image sourcing.
type MediaConfig struct {
	RandomCount  int           `yaml:"random_count"`
	SourceURL    string        `yaml:"source_url"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	UploadSettle time.Duration `yaml:"upload_settle"`
	TempDir      string        `yaml:"temp_dir"`
}

// ContentConfig points at the planning workbook.
type ContentConfig struct {
	Workbook string `yaml:"workbook"`
	Sheet    string `yaml:"sheet"`
	MaxPosts int    `yaml:"max_posts"`

	// FillBodies generates missing bodies before publishing
	FillBodies bool `yaml:"fill_bodies"`
}

// LLMConfig configures body generation.
type LLMConfig struct {
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	MaxChars    int     `yaml:"max_chars"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Verbosity string `yaml:"verbosity"`
	Dir       string `yaml:"dir"`
}

// Defaults for the text-generation collaborator
const (
	DefaultLLMBaseURL     = "https://api.deepseek.com"
	DefaultLLMModel       = "deepseek-reasoner"
	DefaultLLMTemperature = 1.3
	DefaultLLMMaxTokens   = 1000
	DefaultWorkbook       = "xiaohongshu_content.xlsx"
	DefaultIdentifier     = "188********"
)

// DefaultConfig returns a configuration suitable for most runs.
func DefaultConfig() *Config {
	bo := browser.DefaultOptions()
	ao := auth.DefaultOptions()
	po := publish.DefaultOptions()
	return &Config{
		Browser: BrowserConfig{
			Headless:          bo.Headless,
			DebugHost:         bo.DebugHost,
			DebugPort:         bo.DebugPort,
			ProfileDir:        bo.ProfileDir,
			Viewport:          bo.Viewport,
			UserAgent:         bo.UserAgent,
			Timeout:           bo.Timeout,
			NavigationTimeout: bo.NavigationTimeout,
		},
		Site: SiteConfig{
			HomeURL:           ao.HomeURL,
			PublishURL:        po.PublishURL,
			AuthenticatedHost: ao.AuthenticatedHost,
			LoginMarker:       ao.LoginMarker,
			SuccessMarkers:    po.SuccessURLMarkers,
			SuccessText:       po.SuccessText,
			FailureText:       po.FailureText,
			Verify:            po.Verify,
		},
		Auth: AuthConfig{
			Identifier: DefaultIdentifier,
			TypeDelay:  ao.TypeDelay,
		},
		Media: MediaConfig{
			RandomCount:  po.RandomImages,
			SourceURL:    media.DefaultSourceURL,
			MaxAttempts:  media.DefaultMaxAttempts,
			RetryDelay:   media.DefaultRetryDelay,
			UploadSettle: po.UploadSettle,
		},
		Content: ContentConfig{
			Workbook:   DefaultWorkbook,
			MaxPosts:   1,
			FillBodies: true,
		},
		LLM: LLMConfig{
			Model:       DefaultLLMModel,
			BaseURL:     DefaultLLMBaseURL,
			MaxChars:    content.DefaultMaxChars,
			MaxTokens:   DefaultLLMMaxTokens,
			Temperature: DefaultLLMTemperature,
		},
		Logging: LoggingConfig{
			Verbosity: "normal",
		},
	}
}

// Load reads a YAML file over DefaultConfig. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	cfg.Path = path
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Browser.DebugPort <= 0 || c.Browser.DebugPort > 65535 {
		return fmt.Errorf("invalid debug_port: %d", c.Browser.DebugPort)
	}
	if c.Browser.Timeout <= 0 {
		return fmt.Errorf("browser timeout must be positive")
	}
	if c.Browser.Viewport.Width <= 0 || c.Browser.Viewport.Height <= 0 {
		return fmt.Errorf("invalid viewport: %dx%d", c.Browser.Viewport.Width, c.Browser.Viewport.Height)
	}

	if c.Site.HomeURL == "" || c.Site.PublishURL == "" {
		return fmt.Errorf("site home_url and publish_url are required")
	}
	if c.Site.AuthenticatedHost == "" || c.Site.LoginMarker == "" {
		return fmt.Errorf("site authenticated_host and login_marker are required")
	}

	if c.Media.RandomCount < 0 {
		return fmt.Errorf("media random_count cannot be negative")
	}
	if c.Media.MaxAttempts < 1 {
		return fmt.Errorf("media max_attempts must be at least 1")
	}
	if c.Media.RetryDelay < 0 {
		return fmt.Errorf("media retry_delay cannot be negative")
	}

	if c.Content.Workbook == "" {
		return fmt.Errorf("content workbook is required")
	}
	if c.Content.MaxPosts < 0 {
		return fmt.Errorf("content max_posts cannot be negative")
	}

	if c.LLM.MaxChars <= 0 {
		return fmt.Errorf("llm max_chars must be positive")
	}

	// Set default verbosity if not specified
	if c.Logging.Verbosity == "" {
		c.Logging.Verbosity = "normal"
	}

	validLevels := map[string]bool{
		"quiet":   true,
		"normal":  true,
		"verbose": true,
		"debug":   true,
	}
	if !validLevels[strings.ToLower(c.Logging.Verbosity)] {
		return fmt.Errorf("invalid logging verbosity: %s (must be 'quiet', 'normal', 'verbose', or 'debug')", c.Logging.Verbosity)
	}

	return nil
}
