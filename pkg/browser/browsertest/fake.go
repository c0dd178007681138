// Package browsertest provides an in-memory browser.Page for exercising the
// orchestration layer without a real browser.
package browsertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/entrhq/notepost/pkg/browser"
)

// Page is a simulated DOM keyed by strategy. Elements are present when added
// and absent otherwise.
type Page struct {
	mu sync.Mutex

	url      string
	elements map[browser.Strategy]*Element

	// Redirects maps a Goto target to the URL the page ends up on
	Redirects map[string]string

	// ReloadURL, when set, becomes the current URL after Reload
	ReloadURL string

	// Content is returned by HTML
	Content string

	// GotoErr fails every navigation
	GotoErr error

	// WaitOnMiss makes a failed Find block for its full timeout, like a real browser
	WaitOnMiss bool

	Gotos   []string
	Reloads int
	Finds   []browser.Strategy

	// Events records interactions in order, e.g. "click:send-code"
	Events []string
}

// NewPage creates an empty page at url.
func NewPage(url string) *Page {
	return &Page{
		url:       url,
		elements:  make(map[browser.Strategy]*Element),
		Redirects: make(map[string]string),
	}
}

// Add makes an element matched by s present on the page.
func (p *Page) Add(s browser.Strategy, name string) *Element {
	p.mu.Lock()
	defer p.mu.Unlock()

	el := &Element{Name: name, page: p}
	p.elements[s] = el
	return el
}

// Remove makes the element matched by s absent.
func (p *Page) Remove(s browser.Strategy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.elements, s)
}

// SetURL changes the current URL.
func (p *Page) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url = url
}

func (p *Page) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, event)
}

// EventLog returns a copy of the recorded events.
func (p *Page) EventLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.Events...)
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Gotos = append(p.Gotos, url)
	if p.GotoErr != nil {
		return p.GotoErr
	}
	if target, ok := p.Redirects[url]; ok {
		p.url = target
	} else {
		p.url = url
	}
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.Reloads++
	if p.ReloadURL != "" {
		p.url = p.ReloadURL
	}
	return nil
}

func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) HTML(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Content, nil
}

func (p *Page) Find(ctx context.Context, s browser.Strategy, cond browser.Condition, timeout time.Duration) (browser.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.Finds = append(p.Finds, s)
	el, ok := p.elements[s]
	wait := p.WaitOnMiss
	p.mu.Unlock()

	if ok && (cond == browser.Attached || !el.Hidden) {
		return el, nil
	}

	if wait {
		if err := browser.Pause(ctx, timeout); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("timeout %s exceeded waiting for %s to be %s", timeout, s, cond)
}

// Element is a simulated element that records interactions.
type Element struct {
	Name string

	// Hidden elements only satisfy browser.Attached lookups
	Hidden bool

	ClickErr   error
	SetFileErr error

	// OnClick runs after a successful click, e.g. to change the page URL
	OnClick func()

	mu     sync.Mutex
	Clicks int
	Clears int
	Typed  []string
	Delays []time.Duration
	Filled []string
	Files  []string
	Text   string
	page   *Page
}

func (e *Element) Click(ctx context.Context) error {
	if e.ClickErr != nil {
		return e.ClickErr
	}
	e.mu.Lock()
	e.Clicks++
	e.mu.Unlock()

	e.page.record("click:" + e.Name)
	if e.OnClick != nil {
		e.OnClick()
	}
	return nil
}

func (e *Element) Clear(ctx context.Context) error {
	e.mu.Lock()
	e.Clears++
	e.Text = ""
	e.mu.Unlock()

	e.page.record("clear:" + e.Name)
	return nil
}

func (e *Element) TypeSlowly(ctx context.Context, text string, delay time.Duration) error {
	e.mu.Lock()
	e.Typed = append(e.Typed, text)
	e.Delays = append(e.Delays, delay)
	e.Text += text
	e.mu.Unlock()

	e.page.record("type:" + e.Name + "=" + text)
	return nil
}

func (e *Element) Fill(ctx context.Context, text string) error {
	e.mu.Lock()
	e.Filled = append(e.Filled, text)
	e.Text = text
	e.mu.Unlock()

	e.page.record("fill:" + e.Name + "=" + text)
	return nil
}

func (e *Element) SetFile(ctx context.Context, path string) error {
	if e.SetFileErr != nil {
		return e.SetFileErr
	}
	e.mu.Lock()
	e.Files = append(e.Files, path)
	e.mu.Unlock()

	e.page.record("file:" + e.Name + "=" + path)
	return nil
}

func (e *Element) ReplaceText(ctx context.Context, text string) error {
	e.mu.Lock()
	e.Text = text
	e.mu.Unlock()

	e.page.record("replace:" + e.Name)
	return nil
}
