// Package browser adapts playwright-go to the navigation verifier and the
// page probes the runner needs.
package browser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/obs"
	"github.com/kuitang/lp-linkcheck/internal/ratelimit"
)

// Viewport is the browser window size.
type Viewport struct {
	Width  int
	Height int
}

// DefaultViewport matches a common desktop layout, which is where the
// sidebars under test are shown.
var DefaultViewport = Viewport{Width: 1280, Height: 720}

// ParseViewport parses "WIDTHxHEIGHT".
func ParseViewport(s string) (Viewport, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Viewport{}, fmt.Errorf("viewport %q: want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Viewport{}, fmt.Errorf("viewport %q: bad width", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Viewport{}, fmt.Errorf("viewport %q: bad height", s)
	}
	return Viewport{Width: width, Height: height}, nil
}

func (v Viewport) String() string {
	return fmt.Sprintf("%dx%d", v.Width, v.Height)
}

// Options configure Launch.
type Options struct {
	Headless bool
	Viewport Viewport
	// DefaultTimeout applies to every Playwright action that has no explicit bound.
	DefaultTimeout time.Duration
}

// Browser owns the Playwright driver, one Chromium instance and one context.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    Options
}

// Launch starts Playwright and Chromium. A missing driver or browser is
// reported as errs.Unavailable.
func Launch(opts Options) (*Browser, error) {
	if opts.Viewport.Width == 0 || opts.Viewport.Height == 0 {
		opts.Viewport = DefaultViewport
	}
	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = 15 * time.Second
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "start playwright", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "launch chromium", err)
	}
	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: opts.Viewport.Width, Height: opts.Viewport.Height},
	})
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, errs.Wrap(errs.Unavailable, "create browser context", err)
	}
	ms := float64(opts.DefaultTimeout.Milliseconds())
	bctx.SetDefaultTimeout(ms)
	bctx.SetDefaultNavigationTimeout(ms)

	obs.Pkg("browser").Info("browser launched", "headless", opts.Headless, "viewport", opts.Viewport.String())
	return &Browser{pw: pw, browser: browser, context: bctx, opts: opts}, nil
}

// NewSession opens a fresh tab. pacer may be nil.
func (b *Browser) NewSession(pacer *ratelimit.Pacer) (*Session, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, errs.Wrap(errs.Unavailable, "new page", err)
	}
	return NewSession(page, pacer), nil
}

// Close shuts down the context, the browser and the driver.
func (b *Browser) Close() error {
	var firstErr error
	if err := b.context.Close(); err != nil {
		firstErr = err
	}
	if err := b.browser.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := b.pw.Stop(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// timeoutMS converts a context deadline into a Playwright timeout, capped at
// fallback. Playwright treats 0 as "no timeout", so the result is at least 1ms.
func timeoutMS(ctx context.Context, fallback time.Duration) *float64 {
	d := fallback
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); d <= 0 || left < d {
			d = left
		}
	}
	if d < time.Millisecond {
		d = time.Millisecond
	}
	return playwright.Float(float64(d.Milliseconds()))
}
