package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/lp-linkcheck/internal/navverify"
	"github.com/kuitang/lp-linkcheck/internal/obs"
	"github.com/kuitang/lp-linkcheck/internal/ratelimit"
)

const navigationTimeout = 30 * time.Second

// Session is one tab plus the context it lives in. It implements
// navverify.Session.
type Session struct {
	page  playwright.Page
	pacer *ratelimit.Pacer
}

var _ navverify.Session = (*Session)(nil)

// NewSession wraps an existing tab. pacer may be nil.
func NewSession(page playwright.Page, pacer *ratelimit.Pacer) *Session {
	return &Session{page: page, pacer: pacer}
}

// Page returns the underlying Playwright tab.
func (s *Session) Page() playwright.Page {
	return s.page
}

func (s *Session) URL() string {
	return s.page.URL()
}

// WatchNewPage registers a context-level "page" listener. The listener is
// removed once ctx is done; tabs that open after that are closed.
func (s *Session) WatchNewPage(ctx context.Context) (<-chan navverify.Page, error) {
	ch := make(chan navverify.Page, 8)
	bctx := s.page.Context()

	handler := func(p playwright.Page) {
		if ctx.Err() != nil {
			go p.Close()
			return
		}
		select {
		case ch <- &Tab{page: p}:
		default:
			go p.Close()
		}
	}
	bctx.On("page", handler)
	go func() {
		<-ctx.Done()
		bctx.RemoveListener("page", handler)
	}()
	return ch, nil
}

// WatchURL registers a main-frame navigation listener that delivers URLs for
// which match returns true. Same-document navigations (hash changes,
// history.pushState) are included.
func (s *Session) WatchURL(ctx context.Context, match func(string) bool) (<-chan string, error) {
	ch := make(chan string, 8)
	main := s.page.MainFrame()

	handler := func(f playwright.Frame) {
		if f != main || ctx.Err() != nil {
			return
		}
		u := f.URL()
		if !match(u) {
			return
		}
		select {
		case ch <- u:
		default:
		}
	}
	s.page.On("framenavigated", handler)
	go func() {
		<-ctx.Done()
		s.page.RemoveListener("framenavigated", handler)
	}()
	return ch, nil
}

// Navigate loads url in the tab and waits for DOMContentLoaded.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if s.pacer != nil {
		if err := s.pacer.Wait(ctx, url); err != nil {
			return err
		}
	}
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMS(ctx, navigationTimeout),
	})
	if err != nil {
		return err
	}
	obs.From(ctx).Debug("navigated", "url", url)
	return nil
}

// GoBack moves the tab back one history entry.
func (s *Session) GoBack(ctx context.Context) error {
	_, err := s.page.GoBack(playwright.PageGoBackOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   timeoutMS(ctx, navigationTimeout),
	})
	return err
}

// Close closes the tab.
func (s *Session) Close() error {
	return s.page.Close()
}

// Title returns the tab's document title.
func (s *Session) Title() (string, error) {
	return s.page.Title()
}

// Content returns the tab's serialized DOM.
func (s *Session) Content() (string, error) {
	return s.page.Content()
}

// Tab is a tab opened by a click. It implements navverify.Page.
type Tab struct {
	page playwright.Page
}

var _ navverify.Page = (*Tab)(nil)

func (t *Tab) URL() string {
	return t.page.URL()
}

func (t *Tab) WaitReady(ctx context.Context) error {
	return t.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateDomcontentloaded,
		Timeout: timeoutMS(ctx, navigationTimeout),
	})
}

func (t *Tab) Close() error {
	return t.page.Close()
}
