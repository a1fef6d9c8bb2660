package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/catalog"
	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/logutil"
	"github.com/kuitang/lp-linkcheck/internal/pagecheck"
)

const (
	pollInterval = 200 * time.Millisecond
	// Sidebar anchors only appear once the page has scrolled past the hero.
	anchorWheelStep     = 700
	anchorWheelAttempts = 8
	lazyLoadBound       = 30 * time.Second
	maxDetails          = 10
)

// poll calls cond every pollInterval until it reports true, it errors, or
// timeout expires. It reports whether cond became true.
func poll(ctx context.Context, timeout time.Duration, cond func() (bool, error)) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		ok, err := cond()
		if err != nil || ok {
			return ok, err
		}
		if err := browser.Sleep(ctx, pollInterval); err != nil {
			return false, nil
		}
	}
}

// checkAnchorScroll clicks an in-page link and expects its section near the
// top of the viewport, or the page at the very top for check_top.
func (r *Runner) checkAnchorScroll(ctx context.Context, sess *browser.Session, _ catalog.Suite, ch catalog.Check) ([]string, error) {
	selector := fmt.Sprintf(`a[href=%q]:visible`, ch.Href)
	visible := 0
	for attempt := 0; attempt < anchorWheelAttempts; attempt++ {
		n, err := sess.Count(selector, "")
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", selector, err)
		}
		if n > 0 {
			visible = n
			break
		}
		if err := sess.Wheel(anchorWheelStep); err != nil {
			return nil, fmt.Errorf("wheel: %w", err)
		}
		if err := browser.Sleep(ctx, 300*time.Millisecond); err != nil {
			return nil, err
		}
	}
	if visible == 0 {
		return nil, fail(errs.ElementNotVisible, "no visible link to %s after scrolling", ch.Href)
	}

	if err := sess.Link(selector, 0, "").Click(ctx, false); err != nil {
		return nil, fail(errs.ElementNotVisible, "click %s: %v", ch.Href, err)
	}
	timeout := ch.TimeoutOr(r.opts.Timeout)
	settleCtx, cancel := context.WithTimeout(ctx, timeout)
	err := sess.WaitScrollSettled(settleCtx)
	cancel()
	if err != nil && ctx.Err() == nil && settleCtx.Err() == nil {
		return nil, fmt.Errorf("read scroll position: %w", err)
	}

	if ch.CheckTop {
		var y float64
		ok, err := poll(ctx, timeout, func() (bool, error) {
			var err error
			y, err = sess.ScrollY()
			return pagecheck.AtTop(y), err
		})
		if err != nil {
			return nil, fmt.Errorf("read scroll position: %w", err)
		}
		if !ok {
			return nil, fail(errs.ScrollMismatch, "page did not return to the top").
				want(fmt.Sprintf("scrollY<=%d", pagecheck.TopTolerance), fmt.Sprintf("scrollY=%.0f", y))
		}
		return []string{fmt.Sprintf("scrollY=%.0f", y)}, nil
	}

	rng := ch.NearTopRange(pagecheck.DefaultNearTopMin, pagecheck.DefaultNearTopMax)
	section := sess.Link(ch.Target, 0, "")
	var top int
	ok, err := poll(ctx, timeout, func() (bool, error) {
		var err error
		top, err = section.Top(ctx)
		return pagecheck.NearTop(top, rng.Min, rng.Max), err
	})
	if err != nil {
		return nil, fail(errs.ElementNotVisible, "section %s: %v", ch.Target, err)
	}
	if !ok {
		return nil, fail(errs.ScrollMismatch, "section %s is not near the top of the viewport", ch.Target).
			want(fmt.Sprintf("top in [%d, %d]", rng.Min, rng.Max), fmt.Sprintf("top=%d", top))
	}
	return []string{fmt.Sprintf("top=%d", top)}, nil
}

// loadImages waits for the network to quiet down, swaps in lazy-load sources
// and samples every image.
func (r *Runner) loadImages(ctx context.Context, sess *browser.Session, ch catalog.Check) ([]pagecheck.ImageSample, error) {
	timeout := ch.TimeoutOr(r.opts.Timeout)
	sess.WaitNetworkIdle(ctx, timeout)
	bound := min(timeout, lazyLoadBound)
	if err := sess.ForceLazyLoad(bound); err != nil {
		return nil, err
	}
	return sess.CollectImages()
}

func (r *Runner) checkImagesLoaded(ctx context.Context, sess *browser.Session, _ catalog.Suite, ch catalog.Check) ([]string, error) {
	samples, err := r.loadImages(ctx, sess, ch)
	if err != nil {
		return nil, err
	}
	audit := pagecheck.ClassifyLoaded(samples)
	summary := fmt.Sprintf("%d images, %d checked, %d loaded (%.1f%%), skipped %s",
		audit.Total, audit.Checked, audit.Loaded, audit.SuccessRate(), formatSkipped(audit.Skipped))
	if audit.Total == 0 {
		return nil, fail(errs.ImageNotLoaded, "page has no images")
	}
	if !audit.OK() {
		details := []string{summary}
		for i, src := range audit.Failed {
			if i == maxDetails {
				details = append(details, fmt.Sprintf("... and %d more", len(audit.Failed)-maxDetails))
				break
			}
			details = append(details, "not loaded: "+logutil.RedactURLForLog(src))
		}
		return nil, fail(errs.ImageNotLoaded, "%d of %d images failed to load", len(audit.Failed), audit.Checked).
			want(fmt.Sprintf("%d loaded", audit.Checked), fmt.Sprintf("%d loaded", audit.Loaded)).
			with(details)
	}
	return []string{summary}, nil
}

func (r *Runner) checkImageAspect(ctx context.Context, sess *browser.Session, _ catalog.Suite, ch catalog.Check) ([]string, error) {
	samples, err := r.loadImages(ctx, sess, ch)
	if err != nil {
		return nil, err
	}
	audit := pagecheck.ClassifyAspect(samples, ch.Tolerance)
	summary := fmt.Sprintf("%d images, %d valid, %d not applicable, skipped %s",
		audit.Total, audit.Valid, audit.NotApplicable, formatSkipped(audit.Skipped))
	if audit.Total == 0 {
		return nil, fail(errs.AspectDistorted, "page has no images")
	}
	if !audit.OK() {
		details := []string{summary}
		for i, d := range audit.Distorted {
			if i == maxDetails {
				details = append(details, fmt.Sprintf("... and %d more", len(audit.Distorted)-maxDetails))
				break
			}
			details = append(details, fmt.Sprintf("%s natural %.0fx%.0f shown %.0fx%.0f (%.1f%% off, object-fit %s)",
				logutil.RedactURLForLog(d.Src), d.NaturalW, d.NaturalH, d.BoxW, d.BoxH, d.RelDiff*100, d.ObjectFit))
		}
		return nil, fail(errs.AspectDistorted, "%d images are stretched beyond tolerance", len(audit.Distorted)).
			with(details)
	}
	return []string{summary}, nil
}

// checkOverlayVisible clicks a trigger and expects the overlay to show with
// its is-visible class.
func (r *Runner) checkOverlayVisible(ctx context.Context, sess *browser.Session, s catalog.Suite, ch catalog.Check) ([]string, error) {
	trigger := sess.Link(ch.Selector, ch.Nth, ch.HasText)
	visibleCtx, cancel := context.WithTimeout(ctx, r.opts.VisibleTimeout)
	err := trigger.WaitVisible(visibleCtx)
	cancel()
	if err != nil {
		return nil, fail(errs.ElementNotVisible, "trigger %s not visible: %v", ch.Selector, err)
	}
	if err := trigger.Click(ctx, false); err != nil {
		if err := trigger.Click(ctx, true); err != nil {
			return nil, fail(errs.ElementNotVisible, "click %s: %v", ch.Selector, err)
		}
	}

	overlay := sess.Link(ch.Target, 0, "")
	ok, err := poll(ctx, ch.TimeoutOr(r.opts.VisibleTimeout), func() (bool, error) {
		return overlay.HasClass(ctx, "is-visible")
	})
	if err != nil || !ok {
		return nil, fail(errs.AssertionFailed, "overlay %s did not open", ch.Target).
			want("class is-visible", "absent")
	}
	visibleCtx, cancel = context.WithTimeout(ctx, r.opts.VisibleTimeout)
	err = overlay.WaitVisible(visibleCtx)
	cancel()
	if err != nil {
		return nil, fail(errs.AssertionFailed, "overlay %s has is-visible but is not shown: %v", ch.Target, err)
	}

	r.dismiss(ctx, sess, s)
	return nil, nil
}

// checkTextFollows selects an option and expects another element's text to
// follow the selection.
func (r *Runner) checkTextFollows(ctx context.Context, sess *browser.Session, _ catalog.Suite, ch catalog.Check) ([]string, error) {
	if err := sess.Link(ch.Selector, ch.Nth, "").SelectLabel(ctx, ch.Label); err != nil {
		return nil, fail(errs.ElementNotVisible, "select %q in %s: %v", ch.Label, ch.Selector, err)
	}
	target := sess.Link(ch.Target, 0, "")
	var text string
	ok, err := poll(ctx, ch.TimeoutOr(r.opts.VisibleTimeout), func() (bool, error) {
		var err error
		text, err = target.Text(ctx)
		return strings.Contains(text, ch.Text), err
	})
	if err != nil {
		return nil, fail(errs.ElementNotVisible, "read %s: %v", ch.Target, err)
	}
	if !ok {
		return nil, fail(errs.AssertionFailed, "%s does not show %q after selecting %q", ch.Target, ch.Text, ch.Label).
			want(ch.Text, logutil.TruncateForLog(strings.Join(strings.Fields(text), " "), 200))
	}
	return nil, nil
}

// checkLinkInventory audits every link under the check's selector in the
// current DOM snapshot.
func (r *Runner) checkLinkInventory(_ context.Context, sess *browser.Session, _ catalog.Suite, ch catalog.Check) ([]string, error) {
	html, err := sess.Content()
	if err != nil {
		return nil, fmt.Errorf("read page content: %w", err)
	}
	links, err := pagecheck.InventoryLinks(html, sess.URL(), ch.Selector)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("%d links under %s", len(links), ch.Selector)
	if len(links) < ch.Min {
		return nil, fail(errs.AssertionFailed, "expected at least %d links under %s", ch.Min, ch.Selector).
			want(fmt.Sprintf(">=%d", ch.Min), fmt.Sprintf("%d", len(links)))
	}
	if broken := pagecheck.Broken(links); len(broken) > 0 {
		details := []string{summary}
		for i, l := range broken {
			if i == maxDetails {
				details = append(details, fmt.Sprintf("... and %d more", len(broken)-maxDetails))
				break
			}
			details = append(details, fmt.Sprintf("%q href=%q: %s", l.Text, l.Href, l.Problem))
		}
		return nil, fail(errs.MissingReference, "%d of %d links have no usable destination", len(broken), len(links)).
			with(details)
	}
	return []string{summary}, nil
}

func formatSkipped(skipped map[pagecheck.SkipReason]int) string {
	if len(skipped) == 0 {
		return "none"
	}
	reasons := []pagecheck.SkipReason{
		pagecheck.SkipEmptySrc, pagecheck.SkipTracking, pagecheck.SkipNotRendered,
		pagecheck.SkipZeroSize, pagecheck.SkipPlaceholder, pagecheck.SkipDuplicate,
		pagecheck.SkipNotLoaded, pagecheck.SkipNoNatural, pagecheck.SkipObjectFit,
	}
	var parts []string
	for _, r := range reasons {
		if n := skipped[r]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", r, n))
		}
	}
	return strings.Join(parts, " ")
}
