package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// PlaywrightLauncher drives Chromium through Playwright over the Chrome
// DevTools Protocol. Fresh launches start the browser as a standalone process
// listening on the debug endpoint, so a later run can attach to it.
type PlaywrightLauncher struct {
	// ExecutablePath overrides the bundled Chromium binary
	ExecutablePath string

	// SkipInstall disables the driver/browser download on first use
	SkipInstall bool

	mu sync.Mutex
	pw *playwright.Playwright
}

// NewPlaywrightLauncher creates a launcher. Playwright starts lazily.
func NewPlaywrightLauncher(executablePath string) *PlaywrightLauncher {
	return &PlaywrightLauncher{ExecutablePath: executablePath}
}

// run installs and starts the Playwright driver once.
func (l *PlaywrightLauncher) run() (*playwright.Playwright, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw != nil {
		return l.pw, nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if !l.SkipInstall {
		if err := playwright.Install(opts); err != nil {
			return nil, fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}
	l.pw = pw
	return pw, nil
}

// stop stops the driver. The browser process is not affected.
func (l *PlaywrightLauncher) stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pw == nil {
		return nil
	}
	err := l.pw.Stop()
	l.pw = nil
	return err
}

// Launch starts a new browser listening on the debug endpoint and connects to it.
func (l *PlaywrightLauncher) Launch(ctx context.Context, opts Options) (Handle, error) {
	pw, err := l.run()
	if err != nil {
		return nil, err
	}

	execPath := l.ExecutablePath
	if execPath == "" {
		execPath = pw.Chromium.ExecutablePath()
	}

	profileDir, err := filepath.Abs(opts.ProfileDir)
	if err != nil {
		return nil, fmt.Errorf("invalid profile directory: %w", err)
	}

	cmd := exec.Command(execPath, launchArgs(opts, profileDir)...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", execPath, err)
	}

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	browser, err := l.connect(ctx, pw, opts, exited)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	page, err := firstPage(browser, opts)
	if err != nil {
		_ = browser.Close()
		_ = cmd.Process.Kill()
		return nil, err
	}

	return &playwrightHandle{
		launcher: l,
		browser:  browser,
		page:     newPlaywrightPage(page, opts),
		process:  cmd.Process,
	}, nil
}

// Attach connects to a browser already listening on the debug endpoint.
func (l *PlaywrightLauncher) Attach(ctx context.Context, opts Options) (Handle, error) {
	pw, err := l.run()
	if err != nil {
		return nil, err
	}

	timeout := float64(opts.Timeout.Milliseconds())
	browser, err := pw.Chromium.ConnectOverCDP(cdpURL(opts), playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: &timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect over CDP failed: %w", err)
	}

	page, err := firstPage(browser, opts)
	if err != nil {
		_ = browser.Close()
		return nil, err
	}

	return &playwrightHandle{
		launcher: l,
		browser:  browser,
		page:     newPlaywrightPage(page, opts),
	}, nil
}

// connect polls the debug endpoint until the freshly started browser accepts
// connections, the process exits, or the navigation timeout passes.
func (l *PlaywrightLauncher) connect(ctx context.Context, pw *playwright.Playwright, opts Options, exited <-chan error) (playwright.Browser, error) {
	deadline := time.Now().Add(opts.NavigationTimeout)
	attemptTimeout := 1000.0

	for {
		browser, err := pw.Chromium.ConnectOverCDP(cdpURL(opts), playwright.BrowserTypeConnectOverCDPOptions{
			Timeout: &attemptTimeout,
		})
		if err == nil {
			return browser, nil
		}

		select {
		case exitErr := <-exited:
			return nil, fmt.Errorf("browser exited before accepting connections: %v", exitErr)
		default:
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("browser did not open debug endpoint %s: %w", opts.Endpoint(), err)
		}
		if pauseErr := Pause(ctx, 250*time.Millisecond); pauseErr != nil {
			return nil, pauseErr
		}
	}
}

func launchArgs(opts Options, profileDir string) []string {
	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", opts.DebugPort),
		"--user-data-dir=" + profileDir,
		fmt.Sprintf("--window-size=%d,%d", opts.Viewport.Width, opts.Viewport.Height),
		"--disable-gpu",
		"--no-first-run",
		"--no-default-browser-check",
	}
	if opts.UserAgent != "" {
		args = append(args, "--user-agent="+opts.UserAgent)
	}
	if opts.Headless {
		args = append(args, "--headless=new")
	}
	return append(args, "about:blank")
}

func cdpURL(opts Options) string {
	return "http://" + opts.Endpoint()
}

// firstPage returns the first open page of the default context, opening one if needed.
func firstPage(browser playwright.Browser, opts Options) (playwright.Page, error) {
	var bctx playwright.BrowserContext
	if contexts := browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		created, err := browser.NewContext()
		if err != nil {
			return nil, fmt.Errorf("failed to create context: %w", err)
		}
		bctx = created
	}

	var page playwright.Page
	if pages := bctx.Pages(); len(pages) > 0 {
		page = pages[0]
	} else {
		created, err := bctx.NewPage()
		if err != nil {
			return nil, fmt.Errorf("failed to create page: %w", err)
		}
		page = created
	}

	page.SetDefaultTimeout(float64(opts.Timeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(opts.NavigationTimeout.Milliseconds()))
	return page, nil
}

type playwrightHandle struct {
	launcher *PlaywrightLauncher
	browser  playwright.Browser
	page     *playwrightPage
	process  *os.Process
}

func (h *playwrightHandle) Page() Page {
	return h.page
}

func (h *playwrightHandle) Disconnect() error {
	return h.launcher.stop()
}

func (h *playwrightHandle) Terminate() error {
	_ = h.browser.Close() // Ignore errors, continue cleanup
	if h.process != nil {
		if err := h.process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return fmt.Errorf("failed to kill browser process: %w", err)
		}
	}
	return h.launcher.stop()
}

type playwrightPage struct {
	page       playwright.Page
	navTimeout float64
}

func newPlaywrightPage(page playwright.Page, opts Options) *playwrightPage {
	return &playwrightPage{
		page:       page,
		navTimeout: float64(opts.NavigationTimeout.Milliseconds()),
	}
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   &p.navTimeout,
	})
	if err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   &p.navTimeout,
	})
	if err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return nil
}

func (p *playwrightPage) URL() string {
	return p.page.URL()
}

func (p *playwrightPage) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}

func (p *playwrightPage) Find(ctx context.Context, s Strategy, cond Condition, timeout time.Duration) (Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms := float64(timeout.Milliseconds())
	state := playwright.WaitForSelectorStateVisible
	if cond == Attached {
		state = playwright.WaitForSelectorStateAttached
	}

	loc := p.page.Locator(s.String()).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{State: state, Timeout: &ms}); err != nil {
		return nil, err
	}

	if cond == Visible {
		enabled, err := loc.IsEnabled(playwright.LocatorIsEnabledOptions{Timeout: &ms})
		if err != nil {
			return nil, err
		}
		if !enabled {
			return nil, fmt.Errorf("%s is disabled", s)
		}
	}

	return &playwrightElement{loc: loc, timeout: ms}, nil
}

type playwrightElement struct {
	loc     playwright.Locator
	timeout float64
}

func (e *playwrightElement) Click(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.loc.Click(playwright.LocatorClickOptions{Timeout: &e.timeout}); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.loc.Clear(playwright.LocatorClearOptions{Timeout: &e.timeout}); err != nil {
		return fmt.Errorf("clear failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) TypeSlowly(ctx context.Context, text string, delay time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms := float64(delay.Milliseconds())
	if err := e.loc.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{Delay: &ms}); err != nil {
		return fmt.Errorf("typing failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) Fill(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.loc.Fill(text, playwright.LocatorFillOptions{Timeout: &e.timeout}); err != nil {
		return fmt.Errorf("fill failed: %w", err)
	}
	return nil
}

func (e *playwrightElement) SetFile(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.loc.SetInputFiles(path, playwright.LocatorSetInputFilesOptions{Timeout: &e.timeout}); err != nil {
		return fmt.Errorf("file upload failed: %w", err)
	}
	return nil
}

// replaceTextScript clears the editable region and sets its text, then emits
// an input event so the editor picks up the change.
const replaceTextScript = `(el, text) => {
	el.innerHTML = '';
	el.textContent = text;
	el.dispatchEvent(new Event('input', { bubbles: true }));
}`

func (e *playwrightElement) ReplaceText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := e.loc.Evaluate(replaceTextScript, text); err != nil {
		return fmt.Errorf("set content failed: %w", err)
	}
	return nil
}
