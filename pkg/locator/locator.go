// Package locator resolves abstract UI targets to live elements through an
// ordered list of fallback strategies.
package locator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/logging"
)

// ErrElementNotFound matches every ElementNotFoundError via errors.Is.
var ErrElementNotFound = errors.New("element not found")

// Spec names one UI target and the ranked ways of finding it, most specific first.
type Spec struct {
	Name       string
	Condition  browser.Condition
	Strategies []browser.Strategy
}

// New returns a spec whose element must be visible and enabled.
func New(name string, strategies ...browser.Strategy) Spec {
	return Spec{Name: name, Condition: browser.Visible, Strategies: strategies}
}

// Present returns a copy of the spec that only requires DOM presence.
func (s Spec) Present() Spec {
	s.Condition = browser.Attached
	return s
}

// ElementNotFoundError is returned when every strategy of a spec exhausted its timeout.
type ElementNotFoundError struct {
	Spec    Spec
	Elapsed time.Duration

	// Attempts holds the per-strategy failure, in strategy order
	Attempts []error
}

func (e *ElementNotFoundError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s not found after %d strategies in %s", e.Spec.Name, len(e.Spec.Strategies), e.Elapsed.Round(time.Millisecond))
	for i, s := range e.Spec.Strategies {
		b.WriteString("\n  ")
		b.WriteString(s.String())
		if i < len(e.Attempts) && e.Attempts[i] != nil {
			b.WriteString(": ")
			b.WriteString(e.Attempts[i].Error())
		}
	}
	return b.String()
}

func (e *ElementNotFoundError) Is(target error) bool {
	return target == ErrElementNotFound
}

// Resolver tries strategies in order. A full pass over a spec is one
// resolution attempt; it never retries the list itself.
type Resolver struct {
	timeout time.Duration
	logger  *logging.Logger
}

// NewResolver creates a resolver giving each strategy timeout to succeed.
func NewResolver(timeout time.Duration, logger *logging.Logger) *Resolver {
	if timeout <= 0 {
		timeout = browser.DefaultTimeout
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Resolver{timeout: timeout, logger: logger}
}

// Timeout returns the per-strategy timeout.
func (r *Resolver) Timeout() time.Duration {
	return r.timeout
}

// Resolve finds spec on page using the resolver's per-strategy timeout.
func (r *Resolver) Resolve(ctx context.Context, page browser.Page, spec Spec) (browser.Element, error) {
	return r.ResolveWithin(ctx, page, spec, r.timeout)
}

// ResolveWithin finds spec on page giving each strategy timeout. A failed
// resolution waits at most timeout times the number of strategies.
func (r *Resolver) ResolveWithin(ctx context.Context, page browser.Page, spec Spec, timeout time.Duration) (browser.Element, error) {
	start := time.Now()
	attempts := make([]error, 0, len(spec.Strategies))

	for i, strategy := range spec.Strategies {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		el, err := page.Find(ctx, strategy, spec.Condition, timeout)
		if err == nil {
			if i > 0 {
				r.logger.Debugf("%s resolved by fallback %d (%s)", spec.Name, i+1, strategy)
			}
			return el, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		attempts = append(attempts, err)
	}

	notFound := &ElementNotFoundError{
		Spec:     spec,
		Elapsed:  time.Since(start),
		Attempts: attempts,
	}
	r.logger.Debugf("%s not found (%d strategies, %s)", spec.Name, len(spec.Strategies), notFound.Elapsed.Round(time.Millisecond))
	return nil, notFound
}

// Click resolves spec and clicks it.
func (r *Resolver) Click(ctx context.Context, page browser.Page, spec Spec) error {
	el, err := r.Resolve(ctx, page, spec)
	if err != nil {
		return err
	}
	if err := el.Click(ctx); err != nil {
		return fmt.Errorf("failed to click %s: %w", spec.Name, err)
	}
	return nil
}
