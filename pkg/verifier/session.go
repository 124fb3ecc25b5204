package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Page is the browser tab a plan drives
type Page interface {
	// Navigate loads url and returns once the network has been idle
	Navigate(ctx context.Context, url string) error
	Screenshot(ctx context.Context) ([]byte, error)
	Has(ctx context.Context, selector string) (bool, error)
	Click(ctx context.Context, selector string) error
}

// Session is a running browser
type Session interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Opener acquires a browser session
type Opener func(ctx context.Context) (Session, error)

// WithSession opens a session, runs fn and closes the session on every path
func WithSession(ctx context.Context, open Opener, fn func(Session) error) (err error) {
	s, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
	}()

	return fn(s)
}

// BrowserOptions configures the rod backed session
type BrowserOptions struct {
	// Bin is the Chrome binary. Empty lets the launcher find one.
	Bin string
	// ControlURL connects to an already running browser instead of launching.
	ControlURL string
	Headless   bool
	Stealth    bool
	// ActionTimeout bounds every navigation, query and click. Default: 30s.
	ActionTimeout time.Duration
	// IdleWindow is how long the network must be quiet. Default: 500ms.
	IdleWindow time.Duration
}

// DefaultBrowserOptions returns headless options with default timeouts
func DefaultBrowserOptions() BrowserOptions {
	return BrowserOptions{
		Headless:      true,
		ActionTimeout: 30 * time.Second,
		IdleWindow:    500 * time.Millisecond,
	}
}

func (o *BrowserOptions) defaults() {
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = 30 * time.Second
	}
	if o.IdleWindow <= 0 {
		o.IdleWindow = 500 * time.Millisecond
	}
}

// RodOpener returns an Opener that launches Chrome through rod
func RodOpener(opts BrowserOptions) Opener {
	opts.defaults()
	return func(ctx context.Context) (Session, error) {
		s, err := launchRod(ctx, opts)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

type rodSession struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	opts    BrowserOptions
	pages   []*rod.Page
}

func launchRod(ctx context.Context, opts BrowserOptions) (*rodSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := &rodSession{opts: opts}

	controlURL := opts.ControlURL
	if controlURL == "" {
		l := launcher.New()
		if opts.Bin != "" {
			l = l.Bin(opts.Bin)
		}
		l = l.Headless(opts.Headless)

		// Container friendly flags
		l = l.Set("no-sandbox")
		l = l.Set("disable-gpu")
		l = l.Set("disable-dev-shm-usage")

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch browser: %w", err)
		}
		controlURL = u
		s.lnch = l
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		if s.lnch != nil {
			s.lnch.Kill()
			s.lnch.Cleanup()
		}
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	s.browser = browser

	return s, nil
}

func (s *rodSession) NewPage(ctx context.Context) (Page, error) {
	var (
		page *rod.Page
		err  error
	)
	if s.opts.Stealth {
		page, err = stealth.Page(s.browser)
	} else {
		page, err = s.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	s.pages = append(s.pages, page)

	return &rodPage{page: page, timeout: s.opts.ActionTimeout, idle: s.opts.IdleWindow}, nil
}

// Close shuts down a browser this session launched. A browser reached
// through ControlURL is shared, so only the pages opened here are closed.
func (s *rodSession) Close() error {
	if s.lnch == nil {
		var errs []error
		for _, page := range s.pages {
			if err := page.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		s.pages = nil
		return errors.Join(errs...)
	}

	err := s.browser.Close()
	if err != nil {
		s.lnch.Kill()
	}
	// Waits for the process to exit and removes the profile dir
	s.lnch.Cleanup()
	return err
}

type rodPage struct {
	page    *rod.Page
	timeout time.Duration
	idle    time.Duration
}

func (p *rodPage) bounded(ctx context.Context) (*rod.Page, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	return p.page.Context(ctx), cancel
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page, cancel := p.bounded(ctx)
	defer cancel()

	waitIdle := page.WaitRequestIdle(p.idle, nil, nil, nil)

	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}

	waitIdle()
	if err := page.GetContext().Err(); err != nil {
		return fmt.Errorf("timed out waiting for network idle on %s: %w", url, err)
	}

	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("failed waiting for load on %s: %w", url, err)
	}
	return nil
}

func (p *rodPage) Screenshot(ctx context.Context) ([]byte, error) {
	page, cancel := p.bounded(ctx)
	defer cancel()

	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return data, nil
}

func (p *rodPage) Has(ctx context.Context, selector string) (bool, error) {
	page, cancel := p.bounded(ctx)
	defer cancel()

	has, _, err := page.Has(selector)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", selector, err)
	}
	return has, nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	page, cancel := p.bounded(ctx)
	defer cancel()

	elem, err := page.Element(selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := elem.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("failed to click %s: %w", selector, err)
	}
	return nil
}
