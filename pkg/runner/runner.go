// Package runner wires the session, login and publish components into one
// run: fill missing bodies, acquire a browser, make sure the account is
// logged in, then publish posts from the workbook one at a time.
//
// A run never panics and never returns an error. Every step is recorded in
// the Report; a failed step ends the run early only when later steps depend
// on it, and the browser is always released.
package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/entrhq/notepost/pkg/auth"
	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/content"
	"github.com/entrhq/notepost/pkg/locator"
	"github.com/entrhq/notepost/pkg/logging"
	"github.com/entrhq/notepost/pkg/popup"
	"github.com/entrhq/notepost/pkg/publish"
)

// ErrNotLoggedIn means the account could not be verified as logged in.
var ErrNotLoggedIn = errors.New("not logged in")

// PostSource supplies posts and fills in missing bodies.
type PostSource interface {
	ReadAll() ([]content.PostContent, error)
	FillMissingBodies(ctx context.Context, gen content.BodyGenerator) (int, error)
}

// Deps are the collaborators of a run. Generator and Images may be nil.
type Deps struct {
	Sessions  *browser.Manager
	Posts     PostSource
	Generator content.BodyGenerator
	Images    publish.ImageSource
	Codes     auth.CodeSource
}

// Options configures a run.
type Options struct {
	// Reuse attaches to a browser already listening on the debug endpoint
	Reuse bool

	// KeepOpen detaches instead of closing the browser at the end
	KeepOpen bool

	// AcceptCookies clicks the cookie banner after opening the site
	AcceptCookies bool

	// FillBodies generates missing bodies before the browser starts
	FillBodies bool

	// MaxPosts caps how many posts are published; 0 publishes all
	MaxPosts int

	Identifier string

	Auth    auth.Options
	Publish publish.Options
	Popups  []popup.Option
}

// StepResult reports one top-level step.
type StepResult struct {
	Name     string
	Err      error
	Duration time.Duration
}

// Report is the result of a run.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time

	BodiesFilled int

	// Reused is true when an already running browser was attached
	Reused   bool
	LoggedIn bool

	// Login is set when a login was attempted
	Login *auth.Result

	Outcomes []publish.Outcome
	Steps    []StepResult
}

// Err returns the first step error, if any.
func (r Report) Err() error {
	for _, s := range r.Steps {
		if s.Err != nil {
			return fmt.Errorf("%s: %w", s.Name, s.Err)
		}
	}
	return nil
}

// Published returns how many posts were published.
func (r Report) Published() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Published() {
			n++
		}
	}
	return n
}

// Succeeded reports whether the run logged in and published every post it tried.
func (r Report) Succeeded() bool {
	return r.LoggedIn && len(r.Outcomes) > 0 && r.Published() == len(r.Outcomes)
}

// Runner executes runs.
type Runner struct {
	deps   Deps
	opts   Options
	logger *logging.Logger
}

// New creates a runner.
func New(deps Deps, opts Options, logger *logging.Logger) (*Runner, error) {
	if deps.Sessions == nil {
		return nil, errors.New("runner requires a session manager")
	}
	if deps.Posts == nil {
		return nil, errors.New("runner requires a post source")
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Runner{deps: deps, opts: opts, logger: logger}, nil
}

// step runs fn, converting a panic into an error, and records the result.
func (r *Runner) step(report *Report, name string, fn func() error) (err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			r.logger.Errorf("Step %s panicked: %v\n%s", name, p, debug.Stack())
		}
		report.Steps = append(report.Steps, StepResult{Name: name, Err: err, Duration: time.Since(start)})
		if err != nil {
			r.logger.Errorf("Step %s failed: %v", name, err)
		}
	}()
	return fn()
}

// components bundles the per-session building blocks.
type components struct {
	session  *browser.Session
	resolver *locator.Resolver
	popups   *popup.Suppressor
	flow     *auth.Flow
}

func (r *Runner) components(session *browser.Session) (*components, error) {
	resolver := locator.NewResolver(session.Timeout, r.logger.With("locator"))
	popups := popup.NewSuppressor(resolver, r.logger.With("popup"), r.opts.Popups...)
	flow, err := auth.NewFlow(session, resolver, popups, r.opts.Auth, r.logger.With("auth"))
	if err != nil {
		return nil, err
	}
	return &components{session: session, resolver: resolver, popups: popups, flow: flow}, nil
}

// Run executes a full run.
func (r *Runner) Run(ctx context.Context) (report Report) {
	report.StartedAt = time.Now()
	defer func() {
		report.FinishedAt = time.Now()
		r.logger.Infof("Run finished: %d/%d posts published in %s",
			report.Published(), len(report.Outcomes), report.FinishedAt.Sub(report.StartedAt).Round(time.Second))
	}()

	if r.opts.FillBodies && r.deps.Generator != nil {
		_ = r.step(&report, "fill-bodies", func() error {
			n, err := r.deps.Posts.FillMissingBodies(ctx, r.deps.Generator)
			report.BodiesFilled = n
			return err
		})
		if ctx.Err() != nil {
			return report
		}
	}

	var session *browser.Session
	if err := r.step(&report, "acquire", func() error {
		var err error
		session, err = r.deps.Sessions.Acquire(ctx, r.opts.Reuse)
		return err
	}); err != nil {
		return report
	}
	report.Reused = session.Reused
	defer r.release(&report, session)

	var c *components
	if err := r.step(&report, "open", func() error {
		var err error
		if c, err = r.components(session); err != nil {
			return err
		}
		if err := c.flow.Open(ctx); err != nil {
			return err
		}
		if r.opts.AcceptCookies {
			c.popups.AcceptCookies(ctx, session.Page)
		}
		return nil
	}); err != nil {
		return report
	}

	if err := r.step(&report, "login", func() error {
		return r.ensureLogin(ctx, c, &report)
	}); err != nil {
		return report
	}

	var posts []content.PostContent
	if err := r.step(&report, "read-posts", func() error {
		var err error
		posts, err = r.deps.Posts.ReadAll()
		return err
	}); err != nil {
		return report
	}
	if r.opts.MaxPosts > 0 && len(posts) > r.opts.MaxPosts {
		posts = posts[:r.opts.MaxPosts]
	}
	if len(posts) == 0 {
		r.logger.Warnf("No posts to publish")
		return report
	}

	var pipeline *publish.Pipeline
	if err := r.step(&report, "prepare-publish", func() error {
		var err error
		pipeline, err = publish.NewPipeline(session, c.resolver, c.popups, r.deps.Images, r.opts.Publish, r.logger.With("publish"))
		return err
	}); err != nil {
		return report
	}

	for i, post := range posts {
		if ctx.Err() != nil {
			break
		}
		_ = r.step(&report, fmt.Sprintf("publish-%d", i+1), func() error {
			outcome := pipeline.Publish(ctx, post)
			report.Outcomes = append(report.Outcomes, outcome)
			return outcome.Err
		})
	}
	return report
}

// ensureLogin checks a reused session first and logs in only when needed.
func (r *Runner) ensureLogin(ctx context.Context, c *components, report *Report) error {
	if c.session.Reused && c.flow.CheckState(ctx) {
		r.logger.Infof("Reused browser is already logged in")
		report.LoggedIn = true
		return nil
	}
	if r.deps.Codes == nil {
		return fmt.Errorf("%w and no code source is available", ErrNotLoggedIn)
	}

	result := c.flow.Login(ctx, r.opts.Identifier, r.deps.Codes)
	report.Login = &result
	if !result.Verified() {
		if result.Err != nil {
			return fmt.Errorf("%w: %v", ErrNotLoggedIn, result.Err)
		}
		return ErrNotLoggedIn
	}
	report.LoggedIn = true
	return nil
}

func (r *Runner) release(report *Report, session *browser.Session) {
	if r.opts.KeepOpen {
		_ = r.step(report, "detach", func() error {
			r.logger.Infof("Keeping the browser open at %s", session.Endpoint)
			return r.deps.Sessions.Detach(session)
		})
		return
	}
	_ = r.step(report, "release", func() error {
		return r.deps.Sessions.Release(session)
	})
}

// SessionStatus is the result of CheckSession.
type SessionStatus struct {
	Endpoint string
	Reused   bool
	LoggedIn bool
}

// CheckSession attaches to (or launches) a browser, opens the site and
// reports whether the account is logged in, without logging in. The browser
// is left running.
func (r *Runner) CheckSession(ctx context.Context) (status SessionStatus, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("session check panicked: %v", p)
		}
	}()

	session, err := r.deps.Sessions.Acquire(ctx, true)
	if err != nil {
		return status, err
	}
	defer func() {
		if detachErr := r.deps.Sessions.Detach(session); detachErr != nil {
			r.logger.Warnf("Failed to detach: %v", detachErr)
		}
	}()

	status.Endpoint = session.Endpoint
	status.Reused = session.Reused

	c, err := r.components(session)
	if err != nil {
		return status, err
	}
	if err := c.flow.Open(ctx); err != nil {
		return status, err
	}
	status.LoggedIn = c.flow.CheckState(ctx)
	return status, nil
}
