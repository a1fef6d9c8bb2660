package browser

import (
	"context"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/lp-linkcheck/internal/navverify"
)

const actionTimeout = 15 * time.Second

// Link locates an element in the session's tab. nth picks among matches and
// hasText, when set, filters them by text first.
func (s *Session) Link(selector string, nth int, hasText string) *Target {
	loc := s.page.Locator(selector)
	if hasText != "" {
		loc = loc.Filter(playwright.LocatorFilterOptions{HasText: hasText})
	}
	return &Target{loc: loc.Nth(nth)}
}

// Count returns how many elements match selector, filtered by hasText when set.
func (s *Session) Count(selector, hasText string) (int, error) {
	loc := s.page.Locator(selector)
	if hasText != "" {
		loc = loc.Filter(playwright.LocatorFilterOptions{HasText: hasText})
	}
	return loc.Count()
}

// Target is a clickable element. It implements navverify.Target.
type Target struct {
	loc playwright.Locator
}

var _ navverify.Target = (*Target)(nil)

func (t *Target) WaitVisible(ctx context.Context) error {
	return t.loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: timeoutMS(ctx, actionTimeout),
	})
}

// Reference returns the href attribute, or "" when it is missing.
func (t *Target) Reference(ctx context.Context) (string, error) {
	return t.loc.GetAttribute("href", playwright.LocatorGetAttributeOptions{
		Timeout: timeoutMS(ctx, actionTimeout),
	})
}

// Click scrolls the element into view and clicks without waiting for the
// navigation it starts.
func (t *Target) Click(ctx context.Context, force bool) error {
	// Scrolling is best effort; the click scrolls again if it has to.
	_ = t.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: timeoutMS(ctx, 5*time.Second),
	})
	return t.loc.Click(playwright.LocatorClickOptions{
		NoWaitAfter: playwright.Bool(true),
		Force:       playwright.Bool(force),
		Timeout:     timeoutMS(ctx, actionTimeout),
	})
}

// ScrollIntoView scrolls the element into the viewport.
func (t *Target) ScrollIntoView(ctx context.Context) error {
	return t.loc.ScrollIntoViewIfNeeded(playwright.LocatorScrollIntoViewIfNeededOptions{
		Timeout: timeoutMS(ctx, actionTimeout),
	})
}

// Hover moves the pointer over the element, opening hover menus.
func (t *Target) Hover(ctx context.Context) error {
	return t.loc.Hover(playwright.LocatorHoverOptions{
		Timeout: timeoutMS(ctx, actionTimeout),
	})
}

// Text returns the element's text content.
func (t *Target) Text(ctx context.Context) (string, error) {
	return t.loc.TextContent(playwright.LocatorTextContentOptions{
		Timeout: timeoutMS(ctx, actionTimeout),
	})
}

// HasClass reports whether the element's class list contains class.
func (t *Target) HasClass(ctx context.Context, class string) (bool, error) {
	v, err := t.loc.Evaluate(`(el, c) => el.classList.contains(c)`, class,
		playwright.LocatorEvaluateOptions{Timeout: timeoutMS(ctx, actionTimeout)})
	if err != nil {
		return false, err
	}
	b, _ := v.(bool)
	return b, nil
}

// Top returns the element's rounded viewport top in CSS pixels.
func (t *Target) Top(ctx context.Context) (int, error) {
	v, err := t.loc.Evaluate(`el => Math.round(el.getBoundingClientRect().top)`, nil,
		playwright.LocatorEvaluateOptions{Timeout: timeoutMS(ctx, actionTimeout)})
	if err != nil {
		return 0, err
	}
	return int(toFloat(v)), nil
}

// SelectLabel selects the <option> with the given label.
func (t *Target) SelectLabel(ctx context.Context, label string) error {
	_, err := t.loc.SelectOption(playwright.SelectOptionValues{Labels: &[]string{label}},
		playwright.LocatorSelectOptionOptions{Timeout: timeoutMS(ctx, actionTimeout)})
	return err
}
