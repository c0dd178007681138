package browser

import (
	"context"
	"fmt"
	"time"
)

// Kind names the matching technique of a Strategy.
type Kind string

const (
	// KindAttribute matches with a CSS selector (exact attribute/class match)
	KindAttribute Kind = "attribute"

	// KindText matches elements whose text contains the selector string
	KindText Kind = "text"

	// KindPath matches with an XPath expression
	KindPath Kind = "path"
)

// Strategy is one way of finding an element.
type Strategy struct {
	Kind     Kind
	Selector string
}

// CSS returns an attribute-match strategy.
func CSS(selector string) Strategy {
	return Strategy{Kind: KindAttribute, Selector: selector}
}

// Text returns a text-contains strategy.
func Text(text string) Strategy {
	return Strategy{Kind: KindText, Selector: text}
}

// XPath returns a structural-path strategy.
func XPath(expr string) Strategy {
	return Strategy{Kind: KindPath, Selector: expr}
}

// String renders the strategy as an engine-prefixed selector, e.g. "css=.close-btn".
func (s Strategy) String() string {
	switch s.Kind {
	case KindAttribute:
		return "css=" + s.Selector
	case KindText:
		return "text=" + s.Selector
	case KindPath:
		return "xpath=" + s.Selector
	default:
		return fmt.Sprintf("%s=%s", s.Kind, s.Selector)
	}
}

// Condition is the state an element must reach before it is returned.
type Condition int

const (
	// Visible requires the element to be rendered and enabled (clickable)
	Visible Condition = iota

	// Attached only requires presence in the DOM (hidden file inputs, editors)
	Attached
)

func (c Condition) String() string {
	if c == Attached {
		return "attached"
	}
	return "visible"
}

// Element is a resolved, interactable element.
type Element interface {
	Click(ctx context.Context) error
	Clear(ctx context.Context) error

	// TypeSlowly types text one character at a time with delay between keys.
	TypeSlowly(ctx context.Context, text string, delay time.Duration) error

	// Fill replaces the input value in one step.
	Fill(ctx context.Context, text string) error

	// SetFile submits a local file path to a file input.
	SetFile(ctx context.Context, path string) error

	// ReplaceText replaces the element's content model directly instead of
	// simulating keystrokes.
	ReplaceText(ctx context.Context, text string) error
}

// Page is the subset of page operations the orchestration layer needs.
type Page interface {
	Goto(ctx context.Context, url string) error
	Reload(ctx context.Context) error
	URL() string

	// Find waits up to timeout for the first element matched by s to reach cond.
	Find(ctx context.Context, s Strategy, cond Condition, timeout time.Duration) (Element, error)

	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Options configures how sessions are launched or attached.
type Options struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// DebugHost and DebugPort form the well-known debug endpoint
	DebugHost string
	DebugPort int

	// ProfileDir is the persistent user data directory for fresh launches
	ProfileDir string

	Viewport  Viewport
	UserAgent string

	// Timeout is the default wait policy attached to the session
	Timeout time.Duration

	// NavigationTimeout bounds page loads
	NavigationTimeout time.Duration
}

// Endpoint returns host:port of the debug endpoint.
func (o Options) Endpoint() string {
	return fmt.Sprintf("%s:%d", o.DebugHost, o.DebugPort)
}

// Default values for sessions
const (
	DefaultTimeout           = 10 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	DefaultDebugHost         = "127.0.0.1"
	DefaultDebugPort         = 9222
	DefaultViewportWidth     = 1920
	DefaultViewportHeight    = 1080
	DefaultProfileDir        = "chrome_profile"
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// DefaultOptions returns launch options matching the well-known profile.
func DefaultOptions() Options {
	return Options{
		DebugHost:         DefaultDebugHost,
		DebugPort:         DefaultDebugPort,
		ProfileDir:        DefaultProfileDir,
		Viewport:          Viewport{Width: DefaultViewportWidth, Height: DefaultViewportHeight},
		UserAgent:         DefaultUserAgent,
		Timeout:           DefaultTimeout,
		NavigationTimeout: DefaultNavigationTimeout,
	}
}

// Pause sleeps for d or until ctx is done.
func Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
