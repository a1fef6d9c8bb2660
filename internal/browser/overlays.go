package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/lp-linkcheck/internal/obs"
)

// ttrKiller removes the injected promotion popup and its backdrop as soon as
// they appear. It is installed as an init script so it runs on every document
// the tab loads.
const ttrKiller = `(() => {
  const kill = () => {
    document.querySelectorAll('[data-ttr="ep"], [data-ttr="backdrop"]').forEach((el) => el.remove());
  };
  const start = () => {
    kill();
    new MutationObserver(kill).observe(document.documentElement, { childList: true, subtree: true });
    setInterval(kill, 300);
  };
  if (document.documentElement) {
    start();
  } else {
    document.addEventListener('DOMContentLoaded', start, { once: true });
  }
})();`

const instantScrollCSS = `html { scroll-behavior: auto !important; }`

// InstallTTRKiller keeps the promotion popup off every page this tab loads.
func (s *Session) InstallTTRKiller() error {
	return s.page.AddInitScript(playwright.Script{Content: playwright.String(ttrKiller)})
}

// RemoveTTR removes the promotion popup from the current document.
func (s *Session) RemoveTTR() error {
	_, err := s.page.Evaluate(`() => document.querySelectorAll('[data-ttr="ep"], [data-ttr="backdrop"]').forEach((el) => el.remove())`)
	return err
}

// DismissSPC closes the quick-search overlay if it is showing. The overlay
// intercepts pointer events on the links beneath it.
func (s *Session) DismissSPC(ctx context.Context) error {
	overlay := s.page.Locator("#spc__overlay.is-visible")
	n, err := overlay.Count()
	if err != nil || n == 0 {
		return err
	}
	if err := overlay.First().Click(playwright.LocatorClickOptions{
		Force:   playwright.Bool(true),
		Timeout: timeoutMS(ctx, 5*time.Second),
	}); err != nil {
		obs.From(ctx).Debug("spc overlay click failed", "error", err)
	}
	return s.page.Locator("#spc__overlay").First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateHidden,
		Timeout: timeoutMS(ctx, 5*time.Second),
	})
}

// DisableSmoothScroll makes anchor jumps land immediately.
func (s *Session) DisableSmoothScroll() error {
	_, err := s.page.AddStyleTag(playwright.PageAddStyleTagOptions{Content: playwright.String(instantScrollCSS)})
	return err
}
