package runner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/catalog"
	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/navverify"
	"github.com/kuitang/lp-linkcheck/internal/obs"
	"github.com/kuitang/lp-linkcheck/internal/report"
	"github.com/kuitang/lp-linkcheck/internal/urlutil"
)

// checkNavigation verifies the Nth match of the check's selector or, with
// Each, every match in turn.
func (r *Runner) checkNavigation(ctx context.Context, sess *browser.Session, s catalog.Suite, ch catalog.Check) ([]report.CheckResult, error) {
	if !ch.Each {
		res, err := r.verifyLink(ctx, sess, s, ch, ch.Name, ch.Nth)
		if err != nil {
			return nil, err
		}
		return []report.CheckResult{res}, nil
	}

	if ch.Hover != "" {
		r.hover(ctx, sess, ch)
	}
	n, err := sess.Count(ch.Selector, ch.HasText)
	if err != nil {
		return nil, fmt.Errorf("count %q: %w", ch.Selector, err)
	}
	if n == 0 {
		return []report.CheckResult{failedResult(ch.Name,
			fail(errs.ElementNotVisible, "no element matches %q", ch.Selector))}, nil
	}

	results := make([]report.CheckResult, 0, n)
	for i := 0; i < n; i++ {
		res, err := r.verifyLink(ctx, sess, s, ch, eachName(ch.Name, i, n), i)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func eachName(name string, i, n int) string {
	return fmt.Sprintf("%s [%d/%d]", name, i+1, n)
}

// verifyLink runs the optional href assertions, paces the destination host
// and hands the click to the verifier.
func (r *Runner) verifyLink(ctx context.Context, sess *browser.Session, s catalog.Suite, ch catalog.Check, name string, nth int) (report.CheckResult, error) {
	target := sess.Link(ch.Selector, nth, ch.HasText)
	policy := ch.ComparisonPolicy()

	if ch.Hover != "" {
		r.hover(ctx, sess, ch)
	}
	if f := r.assertHref(ctx, sess, target, ch, policy); f != nil {
		res := failedResult(name, f)
		res.Policy = policy.String()
		return res, nil
	}

	opts := navverify.Options{
		Timeout:        ch.TimeoutOr(r.opts.Timeout),
		VisibleTimeout: r.opts.VisibleTimeout,
		SettleWindow:   r.opts.SettleWindow,
		ReturnToOrigin: ch.ReturnToOrigin,
		RestoreURL:     ch.RestoreURL,
		ForceClick:     ch.Force,
		Label:          name,
		BeforeClick: func(ctx context.Context) error {
			r.dismiss(ctx, sess, s)
			if ch.Hover != "" {
				r.hover(ctx, sess, ch)
			}
			return nil
		},
	}
	res, err := r.verifier.Verify(ctx, sess, target, policy, opts)
	if err != nil {
		return report.CheckResult{}, err
	}
	return fromVerify(name, res), nil
}

// assertHref checks the declared href against the catalog before clicking and
// waits for the destination host's pacing slot. A nil result means the click
// may proceed; href problems the verifier reports itself are left to it.
func (r *Runner) assertHref(ctx context.Context, sess *browser.Session, target *browser.Target, ch catalog.Check, policy urlutil.Policy) *failure {
	if ch.ExpectedHref == "" && ch.HrefContains == "" && r.pacer == nil {
		return nil
	}
	refCtx, cancel := context.WithTimeout(ctx, r.opts.VisibleTimeout)
	href, err := target.Reference(refCtx)
	cancel()
	if err != nil || strings.TrimSpace(href) == "" {
		return nil
	}
	resolved, err := urlutil.Resolve(sess.URL(), href)
	if err != nil {
		return nil
	}

	if ch.HrefContains != "" && !strings.Contains(href, ch.HrefContains) {
		return fail(errs.AssertionFailed, "href does not contain %q", ch.HrefContains).
			want("*"+ch.HrefContains+"*", href)
	}
	if ch.ExpectedHref != "" {
		want, err := urlutil.Resolve(sess.URL(), ch.ExpectedHref)
		if err != nil {
			return fail(errs.AssertionFailed, "expected_href %q cannot be resolved: %v", ch.ExpectedHref, err)
		}
		if policy.KeyOrRaw(want) != policy.KeyOrRaw(resolved) {
			return fail(errs.AssertionFailed, "declared href differs from the catalog").
				want(policy.KeyOrRaw(want), policy.KeyOrRaw(resolved))
		}
	}

	if r.pacer != nil {
		// Cancellation surfaces from the verifier.
		_ = r.pacer.Wait(ctx, resolved)
	}
	return nil
}

func (r *Runner) hover(ctx context.Context, sess *browser.Session, ch catalog.Check) {
	if err := sess.Link(ch.Hover, 0, "").Hover(ctx); err != nil {
		obs.From(ctx).Debug("hover failed", "pkg", "runner", "selector", ch.Hover, "error", err)
	}
}
