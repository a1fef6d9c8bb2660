package navverify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/logutil"
	"github.com/kuitang/lp-linkcheck/internal/obs"
	"github.com/kuitang/lp-linkcheck/internal/urlutil"
)

// Verifier runs navigation verifications. The zero value is ready to use.
type Verifier struct {
	// PollInterval is how often a new tab's URL is re-read while it settles
	// through redirects. Default 100ms.
	PollInterval time.Duration
}

// NewVerifier returns a Verifier with default settings.
func NewVerifier() *Verifier {
	return &Verifier{PollInterval: 100 * time.Millisecond}
}

// Verify clicks target and checks that the browser lands on the target's
// declared destination under policy.
//
// Expected failures are returned as a Fail result with a nil error. The error
// is non-nil only when the session itself is unusable or ctx was cancelled.
func (v *Verifier) Verify(ctx context.Context, sess Session, target Target, policy urlutil.Policy, opts Options) (Result, error) {
	opts = opts.withDefaults()
	start := time.Now()
	logger := obs.From(obs.WithCheck(ctx, opts.Label)).With("pkg", "navverify", "policy", policy.String())

	res := Result{
		Label:     opts.Label,
		Policy:    policy.String(),
		OriginURL: sess.URL(),
	}
	finish := func(r Result) (Result, error) {
		r.Duration = time.Since(start)
		logResult(logger, r)
		return r, nil
	}

	visibleCtx, cancelVisible := context.WithTimeout(ctx, opts.VisibleTimeout)
	err := target.WaitVisible(visibleCtx)
	cancelVisible()
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return finish(res.fail(errs.ElementNotVisible,
			fmt.Sprintf("link not visible within %s: %v", opts.VisibleTimeout, err)))
	}

	ref, err := target.Reference(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		// Live pages re-render links between the visibility wait and the read.
		return finish(res.fail(errs.ElementNotVisible, fmt.Sprintf("link reference could not be read: %v", err)))
	}
	res.Reference = ref
	if strings.TrimSpace(ref) == "" {
		return finish(res.fail(errs.MissingReference, "link has no destination reference"))
	}

	expectedURL, err := urlutil.Resolve(res.OriginURL, ref)
	if err != nil {
		return finish(res.fail(errs.MissingReference, fmt.Sprintf("reference %q cannot be resolved: %v", ref, err)))
	}
	expectedKey, err := policy.Key(expectedURL)
	if err != nil {
		return finish(res.fail(errs.MissingReference, fmt.Sprintf("reference %q has no comparable key: %v", ref, err)))
	}
	res.ExpectedURL = expectedURL
	res.Expected = expectedKey

	watchCtx, cancelWatch := context.WithTimeout(ctx, opts.Timeout)
	defer cancelWatch()

	// Both watchers must be armed before the click.
	pages, err := sess.WatchNewPage(watchCtx)
	if err != nil {
		return res, errs.Wrap(errs.Unavailable, "arm new-page watcher", err)
	}
	moved, err := sess.WatchURL(watchCtx, func(u string) bool {
		return policy.KeyOrRaw(u) == expectedKey
	})
	if err != nil {
		return res, errs.Wrap(errs.Unavailable, "arm same-tab watcher", err)
	}

	if err := v.click(watchCtx, target, opts, logger); err != nil {
		if ctx.Err() != nil {
			res.Cleanup = v.restore(ctx, sess, opts, res.OriginURL, drainNow(pages, moved), logger)
			return res, ctx.Err()
		}
		// A click that errors may still have navigated.
		seen := drainNow(pages, moved)
		if !seen.any() {
			return finish(res.fail(errs.ElementNotVisible, fmt.Sprintf("click could not be dispatched: %v", err)))
		}
		return v.conclude(ctx, sess, policy, opts, res, seen, logger, finish)
	}

	seen := race(watchCtx, pages, moved, opts.SettleWindow)
	if ctx.Err() != nil {
		res.Cleanup = v.restore(ctx, sess, opts, res.OriginURL, seen, logger)
		return res, ctx.Err()
	}
	return v.conclude(ctx, sess, policy, opts, res, seen, logger, finish)
}

// conclude turns the observed navigations into a verdict, then restores the
// session.
func (v *Verifier) conclude(
	ctx context.Context,
	sess Session,
	policy urlutil.Policy,
	opts Options,
	res Result,
	seen observation,
	logger *slog.Logger,
	finish func(Result) (Result, error),
) (Result, error) {
	expectedKey := res.Expected

	// The same-tab watcher only reports matching URLs. A main tab that left
	// the origin anyway landed somewhere else.
	if !seen.any() {
		if current := sess.URL(); current != res.OriginURL {
			seen.sameURL, seen.sameOK = current, true
		}
	}

	var (
		newURL   string
		newKey   string
		newMatch bool
	)
	if seen.page != nil {
		newURL = v.settlePage(ctx, seen.page, policy, expectedKey, opts.ReadyTimeout, logger)
		newKey = policy.KeyOrRaw(newURL)
		newMatch = newKey == expectedKey
	}
	sameKey := ""
	sameMatch := false
	if seen.sameOK {
		sameKey = policy.KeyOrRaw(seen.sameURL)
		sameMatch = sameKey == expectedKey
	}

	switch {
	case seen.page != nil && seen.sameOK:
		res.Warning = errs.AmbiguousOutcome
		switch {
		case sameMatch:
			res = res.pass(Outcome{Kind: SameTab, URL: seen.sameURL}, sameKey)
		case newMatch:
			res = res.pass(Outcome{Kind: NewTab, URL: newURL}, newKey)
		default:
			res = res.mismatch(Outcome{Kind: NewTab, URL: newURL}, newKey, "both a new tab and a same-tab navigation were observed and neither matched")
		}
	case seen.sameOK:
		if sameMatch {
			res = res.pass(Outcome{Kind: SameTab, URL: seen.sameURL}, sameKey)
		} else {
			res = res.mismatch(Outcome{Kind: SameTab, URL: seen.sameURL}, sameKey, "same-tab navigation landed elsewhere")
		}
	case seen.page != nil:
		if newMatch {
			res = res.pass(Outcome{Kind: NewTab, URL: newURL}, newKey)
		} else {
			res = res.mismatch(Outcome{Kind: NewTab, URL: newURL}, newKey, "new tab landed elsewhere")
		}
	default:
		current := sess.URL()
		res.Outcome = Outcome{Kind: NoNavigation}
		res.ActualURL = current
		res.Actual = policy.KeyOrRaw(current)
		res = res.fail(errs.NoNavigationDetected, fmt.Sprintf(
			"clicked but did not navigate within %s (expected=%s, current=%s, policy=%s)",
			opts.Timeout, res.Expected, res.Actual, res.Policy))
	}

	res.Cleanup = v.restore(ctx, sess, opts, res.OriginURL, seen, logger)
	return finish(res)
}

func (v *Verifier) click(ctx context.Context, target Target, opts Options, logger *slog.Logger) error {
	beforeClick := func() {
		if opts.BeforeClick == nil {
			return
		}
		if err := opts.BeforeClick(ctx); err != nil {
			logger.Debug("before-click hook failed", "error", err)
		}
	}

	beforeClick()
	if !opts.ForceClick {
		err := target.Click(ctx, false)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return err
		}
		logger.Info("click failed, retrying with forced dispatch", "error", err)
		beforeClick()
	}
	return target.Click(ctx, true)
}

// settlePage waits for a new tab to load, then polls its URL until it keys to
// expectedKey or the ready bound expires. Redirect chains often change the URL
// after DOMContentLoaded. The last URL seen is returned.
func (v *Verifier) settlePage(ctx context.Context, page Page, policy urlutil.Policy, expectedKey string, bound time.Duration, logger *slog.Logger) string {
	readyCtx, cancel := context.WithTimeout(ctx, bound)
	defer cancel()

	if err := page.WaitReady(readyCtx); err != nil {
		logger.Debug("new tab did not reach DOMContentLoaded", "error", err)
	}

	interval := v.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	current := page.URL()
	for policy.KeyOrRaw(current) != expectedKey {
		select {
		case <-readyCtx.Done():
			return current
		case <-ticker.C:
			current = page.URL()
		}
	}
	return current
}

func (r Result) pass(outcome Outcome, actualKey string) Result {
	r.Status = Pass
	r.Reason = ""
	r.Message = ""
	r.Outcome = outcome
	r.ActualURL = outcome.URL
	r.Actual = actualKey
	return r
}

func (r Result) mismatch(outcome Outcome, actualKey, what string) Result {
	r.Outcome = outcome
	r.ActualURL = outcome.URL
	r.Actual = actualKey
	return r.fail(errs.ComparisonMismatch, fmt.Sprintf(
		"%s (expected=%s, actual=%s, policy=%s)", what, r.Expected, r.Actual, r.Policy))
}

func (r Result) fail(reason errs.Code, message string) Result {
	r.Status = Fail
	r.Reason = reason
	r.Message = message
	return r
}

func logResult(logger *slog.Logger, r Result) {
	attrs := []any{
		"status", string(r.Status),
		"outcome", r.Outcome.Kind.String(),
		"expected", logutil.RedactURLForLog(r.Expected),
		"actual", logutil.RedactURLForLog(r.Actual),
		"duration_ms", r.Duration.Milliseconds(),
	}
	if r.Warning != "" {
		attrs = append(attrs, "warning", string(r.Warning))
	}
	if r.Status == Pass {
		logger.Info("navigation verified", attrs...)
		return
	}
	attrs = append(attrs, "reason", string(r.Reason), "message", logutil.TruncateForLog(r.Message, 512))
	logger.Warn("navigation verification failed", attrs...)
}
