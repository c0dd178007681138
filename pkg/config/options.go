package config

import (
	"strings"

	"github.com/entrhq/notepost/pkg/auth"
	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/logging"
	"github.com/entrhq/notepost/pkg/media"
	"github.com/entrhq/notepost/pkg/publish"
)

// BrowserOptions returns the session options.
func (c *Config) BrowserOptions() browser.Options {
	b := c.Browser
	return browser.Options{
		Headless:          b.Headless,
		DebugHost:         b.DebugHost,
		DebugPort:         b.DebugPort,
		ProfileDir:        b.ProfileDir,
		Viewport:          b.Viewport,
		UserAgent:         b.UserAgent,
		Timeout:           b.Timeout,
		NavigationTimeout: b.NavigationTimeout,
	}
}

// AuthOptions returns the login flow options.
func (c *Config) AuthOptions() auth.Options {
	opts := auth.DefaultOptions()
	opts.HomeURL = c.Site.HomeURL
	opts.AuthenticatedHost = c.Site.AuthenticatedHost
	opts.LoginMarker = c.Site.LoginMarker
	if c.Auth.TypeDelay > 0 {
		opts.TypeDelay = c.Auth.TypeDelay
	}
	return opts
}

// PublishOptions returns the publish pipeline options.
func (c *Config) PublishOptions() publish.Options {
	opts := publish.DefaultOptions()
	opts.PublishURL = c.Site.PublishURL
	opts.RandomImages = c.Media.RandomCount
	if c.Media.UploadSettle > 0 {
		opts.UploadSettle = c.Media.UploadSettle
	}
	opts.Tags = c.Site.Tags
	opts.Category = c.Site.Category
	opts.Verify = c.Site.Verify
	if len(c.Site.SuccessMarkers) > 0 {
		opts.SuccessURLMarkers = c.Site.SuccessMarkers
	}
	if len(c.Site.SuccessText) > 0 {
		opts.SuccessText = c.Site.SuccessText
	}
	if len(c.Site.FailureText) > 0 {
		opts.FailureText = c.Site.FailureText
	}
	return opts
}

// MediaOptions returns the random image fetcher options.
func (c *Config) MediaOptions() []media.Option {
	opts := []media.Option{
		media.WithRetry(c.Media.MaxAttempts, c.Media.RetryDelay),
	}
	if c.Media.SourceURL != "" {
		opts = append(opts, media.WithSourceURL(c.Media.SourceURL))
	}
	if c.Media.TempDir != "" {
		opts = append(opts, media.WithTempDir(c.Media.TempDir))
	}
	return opts
}

// LogLevel returns the parsed logging verbosity.
func (c *Config) LogLevel() logging.Level {
	return logging.ParseLevel(strings.ToLower(c.Logging.Verbosity))
}
