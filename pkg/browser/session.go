package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/entrhq/notepost/pkg/logging"
)

// Handle is the live control channel behind a Session.
type Handle interface {
	Page() Page

	// Disconnect releases the local control channel and leaves the browser running.
	Disconnect() error

	// Terminate closes the browser process.
	Terminate() error
}

// Launcher creates control channels. The playwright implementation lives in
// playwright.go; tests substitute their own.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Handle, error)
	Attach(ctx context.Context, opts Options) (Handle, error)
}

// ProcessFinder reports whether a browser process is listening on the debug port.
type ProcessFinder interface {
	FindDebugListener(ctx context.Context, port int) (pid int32, found bool, err error)
}

// Session represents the single active browser session of a run.
type Session struct {
	// Page is the page all components drive
	Page Page

	// Endpoint is the debug endpoint (host:port) the browser listens on
	Endpoint string

	// Reused is true when the session attached to an already-running browser.
	// Reused sessions never terminate the browser on Release.
	Reused bool

	// Timeout is the default wait policy
	Timeout time.Duration

	// CreatedAt is the timestamp when the session was acquired
	CreatedAt time.Time

	handle   Handle
	released bool
}

// SessionAttachError reports why attaching to a running browser failed.
// It is logged and triggers a fresh launch; Acquire never returns it.
type SessionAttachError struct {
	Endpoint string
	Err      error
}

func (e *SessionAttachError) Error() string {
	return fmt.Sprintf("attach to %s failed: %v", e.Endpoint, e.Err)
}

func (e *SessionAttachError) Unwrap() error {
	return e.Err
}

// errNoListener is the attach failure when no process holds the debug port.
var errNoListener = errors.New("no browser process listening on debug endpoint")

// Manager acquires and releases sessions.
type Manager struct {
	opts     Options
	launcher Launcher
	finder   ProcessFinder
	logger   *logging.Logger
}

// NewManager creates a session manager.
func NewManager(opts Options, launcher Launcher, finder ProcessFinder, logger *logging.Logger) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.DebugHost == "" {
		opts.DebugHost = DefaultDebugHost
	}
	if opts.DebugPort == 0 {
		opts.DebugPort = DefaultDebugPort
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Manager{
		opts:     opts,
		launcher: launcher,
		finder:   finder,
		logger:   logger,
	}
}

// Options returns the effective session options.
func (m *Manager) Options() Options {
	return m.opts
}

// Acquire returns a session. With attach set it first tries to reuse a browser
// already listening on the debug endpoint; any attach failure falls back to a
// fresh launch. Only a failed fresh launch is returned as an error.
func (m *Manager) Acquire(ctx context.Context, attach bool) (*Session, error) {
	if attach {
		session, err := m.attach(ctx)
		if err == nil {
			m.logger.Infof("Reusing browser at %s", session.Endpoint)
			return session, nil
		}
		m.logger.Warnf("%v; launching a new browser", err)
	}

	handle, err := m.launcher.Launch(ctx, m.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	m.logger.Infof("Launched new browser (debug endpoint %s)", m.opts.Endpoint())
	return m.newSession(handle, false), nil
}

func (m *Manager) attach(ctx context.Context) (*Session, error) {
	endpoint := m.opts.Endpoint()

	if m.finder != nil {
		pid, found, err := m.finder.FindDebugListener(ctx, m.opts.DebugPort)
		if err != nil {
			return nil, &SessionAttachError{Endpoint: endpoint, Err: err}
		}
		if !found {
			return nil, &SessionAttachError{Endpoint: endpoint, Err: errNoListener}
		}
		m.logger.Debugf("Found browser process %d on %s", pid, endpoint)
	}

	handle, err := m.launcher.Attach(ctx, m.opts)
	if err != nil {
		return nil, &SessionAttachError{Endpoint: endpoint, Err: err}
	}
	return m.newSession(handle, true), nil
}

func (m *Manager) newSession(handle Handle, reused bool) *Session {
	return &Session{
		Page:      handle.Page(),
		Endpoint:  m.opts.Endpoint(),
		Reused:    reused,
		Timeout:   m.opts.Timeout,
		CreatedAt: time.Now(),
		handle:    handle,
	}
}

// Release ends the session. Fresh sessions terminate the browser; reused
// sessions only drop the control channel. Safe to call more than once.
func (m *Manager) Release(s *Session) error {
	if s == nil || s.released || s.handle == nil {
		return nil
	}
	s.released = true

	if s.Reused {
		if err := s.handle.Disconnect(); err != nil {
			return fmt.Errorf("failed to disconnect from browser: %w", err)
		}
		m.logger.Infof("Disconnected from reused browser; it stays open")
		return nil
	}

	if err := s.handle.Terminate(); err != nil {
		return fmt.Errorf("failed to close browser: %w", err)
	}
	m.logger.Infof("Browser closed")
	return nil
}

// Detach drops the control channel of any session without terminating the
// browser, for runs that keep the window open.
func (m *Manager) Detach(s *Session) error {
	if s == nil || s.released || s.handle == nil {
		return nil
	}
	s.released = true
	return s.handle.Disconnect()
}
