// Package auth logs into the creator platform with a phone number and a
// one-time code delivered out of band.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/locator"
	"github.com/entrhq/notepost/pkg/logging"
)

// Default login settings
const (
	DefaultHomeURL           = "https://creator.xiaohongshu.com/"
	DefaultAuthenticatedHost = "creator.xiaohongshu.com"
	DefaultLoginMarker       = "login"
	DefaultTypeDelay         = 100 * time.Millisecond
	DefaultSubmitSettle      = 2 * time.Second
	DefaultVerifySettle      = 5 * time.Second
	DefaultRefreshSettle     = 3 * time.Second
)

// ErrEmptyCode is returned when the code source supplies a blank code.
var ErrEmptyCode = errors.New("no verification code supplied")

// Suppressor dismisses overlays between steps.
type Suppressor interface {
	Suppress(ctx context.Context, page browser.Page)
}

// Options configures a Flow.
type Options struct {
	// HomeURL is the page Open navigates to
	HomeURL string

	// AuthenticatedHost is a glob the host must match once logged in, e.g. "*.example.com"
	AuthenticatedHost string

	// LoginMarker in the URL path means the login page is still shown
	LoginMarker string

	// TypeDelay is the pause between identifier keystrokes
	TypeDelay time.Duration

	SubmitSettle  time.Duration
	VerifySettle  time.Duration
	RefreshSettle time.Duration

	Catalog Catalog
}

// DefaultOptions returns the creator platform settings.
func DefaultOptions() Options {
	return Options{
		HomeURL:           DefaultHomeURL,
		AuthenticatedHost: DefaultAuthenticatedHost,
		LoginMarker:       DefaultLoginMarker,
		TypeDelay:         DefaultTypeDelay,
		SubmitSettle:      DefaultSubmitSettle,
		VerifySettle:      DefaultVerifySettle,
		RefreshSettle:     DefaultRefreshSettle,
		Catalog:           DefaultCatalog(),
	}
}

// Flow drives the login state machine:
//
//	Start → IdentifierEntered → ChallengeRequested → CodeEntered → Submitted → Verified | Failed
//
// Login runs it end to end. Begin and Resume split it at the one-time-code
// suspension point for callers that deliver the code themselves.
type Flow struct {
	page     browser.Page
	resolver *locator.Resolver
	popups   Suppressor
	opts     Options
	host     glob.Glob
	logger   *logging.Logger

	state     State
	history   []State
	challenge Challenge
	err       error
}

// NewFlow creates a login flow bound to the session's page.
func NewFlow(session *browser.Session, resolver *locator.Resolver, popups Suppressor, opts Options, logger *logging.Logger) (*Flow, error) {
	if session == nil || session.Page == nil {
		return nil, errors.New("auth flow requires an active session")
	}
	if opts.AuthenticatedHost == "" {
		opts.AuthenticatedHost = DefaultAuthenticatedHost
	}
	if opts.LoginMarker == "" {
		opts.LoginMarker = DefaultLoginMarker
	}

	host, err := glob.Compile(strings.ToLower(opts.AuthenticatedHost), '.')
	if err != nil {
		return nil, fmt.Errorf("invalid authenticated host pattern %q: %w", opts.AuthenticatedHost, err)
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Flow{
		page:     session.Page,
		resolver: resolver,
		popups:   popups,
		opts:     opts,
		host:     host,
		logger:   logger,
		state:    StateStart,
		history:  []State{StateStart},
	}, nil
}

// State returns the current state.
func (f *Flow) State() State {
	return f.state
}

// Open navigates to the platform home page and clears overlays.
func (f *Flow) Open(ctx context.Context) error {
	f.logger.Infof("Opening %s", f.opts.HomeURL)
	if err := f.page.Goto(ctx, f.opts.HomeURL); err != nil {
		return fmt.Errorf("failed to open %s: %w", f.opts.HomeURL, err)
	}
	f.suppress(ctx)
	return nil
}

// Login runs the whole flow, asking codes for the one-time code once the
// challenge has been requested. It never returns an error; failures are
// reported in the Result.
func (f *Flow) Login(ctx context.Context, identifier string, codes CodeSource) Result {
	if err := f.Begin(ctx, identifier); err != nil {
		return f.result()
	}

	f.logger.Infof("Waiting for the verification code sent to %s", identifier)
	code, err := codes.RequestCode(ctx, f.challenge)
	if err != nil {
		f.fail(fmt.Errorf("failed to obtain verification code: %w", err))
		return f.result()
	}
	return f.Resume(ctx, code)
}

// Begin enters the identifier and requests the one-time code, leaving the
// flow suspended in ChallengeRequested.
func (f *Flow) Begin(ctx context.Context, identifier string) error {
	if f.state != StateStart {
		return fmt.Errorf("cannot begin login in state %s", f.state)
	}
	f.challenge = Challenge{Identifier: identifier, Outcome: OutcomePending}

	f.suppress(ctx)

	if err := f.enterIdentifier(ctx, identifier); err != nil {
		return f.fail(err)
	}
	f.transition(StateIdentifierEntered)
	f.suppress(ctx)

	if err := f.resolver.Click(ctx, f.page, f.opts.Catalog.SendCode); err != nil {
		return f.fail(fmt.Errorf("failed to request verification code: %w", err))
	}
	f.transition(StateChallengeRequested)
	f.suppress(ctx)
	return nil
}

// Resume enters the supplied code, submits, and verifies the session.
func (f *Flow) Resume(ctx context.Context, code string) Result {
	if f.state != StateChallengeRequested {
		if !f.state.Terminal() {
			f.fail(fmt.Errorf("cannot resume login in state %s", f.state))
		}
		return f.result()
	}

	code = strings.TrimSpace(code)
	if code == "" {
		f.fail(ErrEmptyCode)
		return f.result()
	}
	f.challenge.Code = code

	if err := f.enterCode(ctx, code); err != nil {
		f.fail(err)
		return f.result()
	}
	f.transition(StateCodeEntered)

	if err := f.resolver.Click(ctx, f.page, f.opts.Catalog.Confirm); err != nil {
		f.fail(fmt.Errorf("failed to submit login: %w", err))
		return f.result()
	}
	f.transition(StateSubmitted)

	if err := browser.Pause(ctx, f.opts.SubmitSettle); err != nil {
		f.fail(err)
		return f.result()
	}
	f.suppress(ctx)
	if err := browser.Pause(ctx, f.opts.VerifySettle); err != nil {
		f.fail(err)
		return f.result()
	}

	if f.CheckState(ctx) {
		f.challenge.Outcome = OutcomeVerified
		f.transition(StateVerified)
		f.logger.Infof("Login verified")
	} else {
		f.fail(fmt.Errorf("still not authenticated at %s", f.page.URL()))
	}
	return f.result()
}

// CheckState reports whether the page is on the authenticated host away from
// the login page. If not, it refreshes once and checks again. Errors count as
// not authenticated.
func (f *Flow) CheckState(ctx context.Context) bool {
	current := f.page.URL()
	f.logger.Debugf("Checking login state at %s", current)
	if f.authenticated(current) {
		return true
	}

	if err := f.page.Reload(ctx); err != nil {
		f.logger.Warnf("Refresh during login check failed: %v", err)
		return false
	}
	if err := browser.Pause(ctx, f.opts.RefreshSettle); err != nil {
		return false
	}
	return f.authenticated(f.page.URL())
}

func (f *Flow) authenticated(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if !f.host.Match(strings.ToLower(u.Hostname())) {
		return false
	}
	return !strings.Contains(strings.ToLower(u.Path), f.opts.LoginMarker)
}

func (f *Flow) enterIdentifier(ctx context.Context, identifier string) error {
	el, err := f.resolver.Resolve(ctx, f.page, f.opts.Catalog.Identifier)
	if err != nil {
		return fmt.Errorf("failed to find phone input: %w", err)
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear phone input: %w", err)
	}
	if err := el.TypeSlowly(ctx, identifier, f.opts.TypeDelay); err != nil {
		return fmt.Errorf("failed to type phone number: %w", err)
	}
	f.logger.Infof("Entered phone number %s", identifier)
	return nil
}

func (f *Flow) enterCode(ctx context.Context, code string) error {
	el, err := f.resolver.Resolve(ctx, f.page, f.opts.Catalog.Code)
	if err != nil {
		return fmt.Errorf("failed to find code input: %w", err)
	}
	if err := el.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear code input: %w", err)
	}
	if err := el.Fill(ctx, code); err != nil {
		return fmt.Errorf("failed to enter code: %w", err)
	}
	return nil
}

func (f *Flow) suppress(ctx context.Context) {
	if f.popups != nil {
		f.popups.Suppress(ctx, f.page)
	}
}

func (f *Flow) transition(next State) {
	f.logger.Debugf("Login %s -> %s", f.state, next)
	f.state = next
	f.history = append(f.history, next)
}

func (f *Flow) fail(err error) error {
	f.err = err
	f.challenge.Outcome = OutcomeFailed
	f.logger.Errorf("Login failed after %s: %v", f.state, err)
	f.transition(StateFailed)
	return err
}

func (f *Flow) result() Result {
	return Result{
		State:     f.state,
		Challenge: f.challenge,
		History:   append([]State(nil), f.history...),
		Err:       f.err,
	}
}
