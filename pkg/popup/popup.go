// Package popup dismisses transient overlays before and after state-changing
// actions. Dismissal is best-effort; absent overlays are not errors.
package popup

import (
	"context"
	"time"

	"github.com/entrhq/notepost/pkg/browser"
	"github.com/entrhq/notepost/pkg/locator"
	"github.com/entrhq/notepost/pkg/logging"
)

// Default timings
const (
	DefaultTimeout       = time.Second
	DefaultInitialSettle = time.Second
	DefaultClickSettle   = 500 * time.Millisecond
)

// DefaultCatalog returns the known close controls of the creator platform's overlays.
func DefaultCatalog() []locator.Spec {
	return []locator.Spec{
		locator.New("dialog close", browser.CSS(".dialog-close")),
		locator.New("close icon", browser.CSS(".xhs-icon--close")),
		locator.New("close button", browser.CSS(".close-btn")),
		locator.New("dialog close button", browser.XPath("//div[@class='dialog']//button[contains(@class, 'close')]")),
		locator.New("close text button", browser.XPath("//button[text()='关闭']")),
		locator.New("cancel text button", browser.XPath("//button[text()='取消']")),
		locator.New("modal close", browser.CSS(".modal-close")),
		locator.New("platform modal close", browser.CSS(".xhs-modal-close")),
		locator.New("close button id", browser.CSS("#close-btn")),
	}
}

// CookieConsent is the accept-all control of the cookie banner.
var CookieConsent = locator.New("accept all cookies", browser.CSS(".cookie-accept-all"))

// Suppressor walks a fixed catalog of overlay specs and clicks whatever is present.
type Suppressor struct {
	resolver      *locator.Resolver
	catalog       []locator.Spec
	timeout       time.Duration
	initialSettle time.Duration
	clickSettle   time.Duration
	logger        *logging.Logger
}

// Option configures a Suppressor.
type Option func(*Suppressor)

// WithCatalog replaces the overlay catalog.
func WithCatalog(catalog []locator.Spec) Option {
	return func(s *Suppressor) {
		s.catalog = catalog
	}
}

// WithTimeout sets the per-strategy lookup timeout. Keep it short: every
// absent overlay costs this much on every call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Suppressor) {
		s.timeout = timeout
	}
}

// WithSettle sets the pause before the first lookup and after each dismissal.
func WithSettle(initial, afterClick time.Duration) Option {
	return func(s *Suppressor) {
		s.initialSettle = initial
		s.clickSettle = afterClick
	}
}

// NewSuppressor creates a suppressor using the default catalog and timings.
func NewSuppressor(resolver *locator.Resolver, logger *logging.Logger, opts ...Option) *Suppressor {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Suppressor{
		resolver:      resolver,
		catalog:       DefaultCatalog(),
		timeout:       DefaultTimeout,
		initialSettle: DefaultInitialSettle,
		clickSettle:   DefaultClickSettle,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Suppress tries every catalog entry once and dismisses the ones present.
func (s *Suppressor) Suppress(ctx context.Context, page browser.Page) {
	if err := browser.Pause(ctx, s.initialSettle); err != nil {
		return
	}

	for _, spec := range s.catalog {
		el, err := s.resolver.ResolveWithin(ctx, page, spec, s.timeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		if err := el.Click(ctx); err != nil {
			s.logger.Debugf("Failed to dismiss %s: %v", spec.Name, err)
			continue
		}
		s.logger.Infof("Dismissed overlay: %s", spec.Name)

		if err := browser.Pause(ctx, s.clickSettle); err != nil {
			return
		}
	}
}

// AcceptCookies clicks the cookie banner's accept-all control if it is shown.
func (s *Suppressor) AcceptCookies(ctx context.Context, page browser.Page) bool {
	el, err := s.resolver.ResolveWithin(ctx, page, CookieConsent, s.timeout)
	if err != nil {
		s.logger.Debugf("No cookie banner: %v", err)
		return false
	}
	if err := el.Click(ctx); err != nil {
		s.logger.Warnf("Failed to accept cookies: %v", err)
		return false
	}
	s.logger.Infof("Accepted all cookies")
	return true
}
