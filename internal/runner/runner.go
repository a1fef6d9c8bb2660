// Package runner executes catalog suites in a browser and collects the
// verdicts into a report.
package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/catalog"
	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/logutil"
	"github.com/kuitang/lp-linkcheck/internal/navverify"
	"github.com/kuitang/lp-linkcheck/internal/obs"
	"github.com/kuitang/lp-linkcheck/internal/ratelimit"
	"github.com/kuitang/lp-linkcheck/internal/report"
)

// SessionOpener opens a fresh tab. *browser.Browser implements it.
type SessionOpener interface {
	NewSession(pacer *ratelimit.Pacer) (*browser.Session, error)
}

// Options tune a run.
type Options struct {
	// RunID identifies the run in logs and artifacts. Generated when empty.
	RunID          string
	Timeout        time.Duration
	VisibleTimeout time.Duration
	SettleWindow   time.Duration
	// ScreenshotDir receives a screenshot per failed check. Empty disables them.
	ScreenshotDir string
}

// Runner runs suites one after another, each in its own tab of a shared
// browser context.
type Runner struct {
	opener   SessionOpener
	pacer    *ratelimit.Pacer
	verifier *navverify.Verifier
	opts     Options
}

// New creates a Runner. pacer may be nil.
func New(opener SessionOpener, pacer *ratelimit.Pacer, opts Options) *Runner {
	if opts.Timeout <= 0 {
		opts.Timeout = navverify.DefaultTimeout
	}
	if opts.VisibleTimeout <= 0 {
		opts.VisibleTimeout = navverify.DefaultVisibleTimeout
	}
	return &Runner{
		opener:   opener,
		pacer:    pacer,
		verifier: navverify.NewVerifier(),
		opts:     opts,
	}
}

// Run executes suites in order. A suite that breaks is recorded with its
// error and the run moves on to the next suite in a fresh tab. Run never
// returns a nil report; suites skipped because ctx was cancelled are marked
// as such.
func (r *Runner) Run(ctx context.Context, suites []catalog.Suite) *report.Run {
	run := &report.Run{ID: r.opts.RunID, StartedAt: time.Now().UTC()}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: run.ID})
	logger := obs.From(ctx).With("pkg", "runner")
	logger.Info("run started", "suites", len(suites), "checks", catalog.TotalChecks(suites))

	for _, s := range suites {
		if ctx.Err() != nil {
			run.Suites = append(run.Suites, report.SuiteResult{
				ID: s.ID, Name: s.Name, Page: s.StartURL, Description: s.Description,
				Error: "not run: " + ctx.Err().Error(),
			})
			continue
		}
		run.Suites = append(run.Suites, r.runSuite(ctx, s))
	}

	run.FinishedAt = time.Now().UTC()
	c := run.Counts()
	logger.Info("run finished",
		"passed", c.Passed, "failed", c.Failed, "errored", c.Errored,
		"failed_suites", c.FailedSuites, "duration_ms", run.Duration().Milliseconds())
	return run
}

func (r *Runner) runSuite(ctx context.Context, s catalog.Suite) report.SuiteResult {
	ctx = obs.WithCorrelation(ctx, obs.Correlation{Suite: s.Name, PageURL: s.StartURL})
	logger := obs.From(ctx).With("pkg", "runner")
	start := time.Now()
	res := report.SuiteResult{ID: s.ID, Name: s.Name, Page: s.StartURL, Description: s.Description}

	sess, err := r.opener.NewSession(r.pacer)
	if err != nil {
		res.Error = "open tab: " + errs.MessageOf(err)
		logger.Error("open tab failed", "error", err)
		return res
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Debug("close tab failed", "error", err)
		}
	}()

	if err := r.openPage(ctx, sess, s); err != nil {
		res.Error = fmt.Sprintf("prepare page: %v", err)
		logger.Error("prepare page failed", "error", err)
		return res
	}

	for i, ch := range s.Checks {
		if ctx.Err() != nil {
			res.Error = "cancelled: " + ctx.Err().Error()
			break
		}
		checkCtx := obs.WithCheck(ctx, ch.Name)
		results, err := r.runCheck(checkCtx, sess, s, ch)
		for j := range results {
			if results[j].Status == report.StatusFailed {
				results[j].Screenshot = r.screenshot(checkCtx, sess, s, i, j)
			}
		}
		res.Checks = append(res.Checks, results...)
		if err != nil {
			res.Checks = append(res.Checks, report.CheckResult{
				Name:    ch.Name,
				Kind:    string(ch.Kind),
				Status:  report.StatusError,
				Reason:  string(errs.CodeOf(err)),
				Message: errs.MessageOf(err),
			})
			res.Error = fmt.Sprintf("[%s] %s", ch.Name, errs.MessageOf(err))
			logger.Error("check aborted suite", "check", ch.Name, "error", err)
			break
		}
	}

	logger.Info("suite finished",
		"passed", res.Passed(), "checks", len(res.Checks), "failed", len(res.Failed()),
		"duration_ms", time.Since(start).Milliseconds())
	return res
}

// runCheck dispatches ch to its executor. A returned error means the suite
// cannot continue; check failures are reported in the results.
func (r *Runner) runCheck(ctx context.Context, sess *browser.Session, s catalog.Suite, ch catalog.Check) ([]report.CheckResult, error) {
	start := time.Now()
	var (
		results []report.CheckResult
		err     error
	)
	switch ch.Kind {
	case catalog.KindNavigation:
		results, err = r.checkNavigation(ctx, sess, s, ch)
	default:
		var details []string
		details, err = r.pageCheck(ch.Kind)(ctx, sess, s, ch)
		results, err = single(ch, details, err)
	}
	if len(results) == 1 && results[0].Duration == 0 {
		results[0].Duration = time.Since(start)
	}
	for _, res := range results {
		logCheck(ctx, res)
	}
	return results, err
}

type pageCheckFunc func(ctx context.Context, sess *browser.Session, s catalog.Suite, ch catalog.Check) ([]string, error)

func (r *Runner) pageCheck(kind catalog.Kind) pageCheckFunc {
	switch kind {
	case catalog.KindAnchorScroll:
		return r.checkAnchorScroll
	case catalog.KindImagesLoaded:
		return r.checkImagesLoaded
	case catalog.KindImageAspect:
		return r.checkImageAspect
	case catalog.KindOverlayVisible:
		return r.checkOverlayVisible
	case catalog.KindTextFollows:
		return r.checkTextFollows
	case catalog.KindLinkInventory:
		return r.checkLinkInventory
	default:
		return func(context.Context, *browser.Session, catalog.Suite, catalog.Check) ([]string, error) {
			return nil, fmt.Errorf("unsupported check kind %q", kind)
		}
	}
}

func (r *Runner) screenshot(ctx context.Context, sess *browser.Session, s catalog.Suite, checkIdx, sub int) string {
	if r.opts.ScreenshotDir == "" {
		return ""
	}
	path := filepath.Join(r.opts.ScreenshotDir, screenshotName(s.ID, checkIdx, sub))
	if _, err := sess.Screenshot(path); err != nil {
		obs.From(ctx).Warn("screenshot failed", "pkg", "runner", "path", path, "error", err)
		return ""
	}
	return path
}

func screenshotName(suiteID, checkIdx, sub int) string {
	return fmt.Sprintf("suite%02d-check%02d-%02d.png", suiteID, checkIdx+1, sub+1)
}

func logCheck(ctx context.Context, res report.CheckResult) {
	logger := obs.From(ctx).With("pkg", "runner", "kind", res.Kind, "status", string(res.Status),
		"duration_ms", res.Duration.Milliseconds())
	if res.Status == report.StatusPassed {
		logger.Info("check passed", "name", res.Name)
		return
	}
	logger.Warn("check failed", "name", res.Name, "reason", res.Reason,
		"message", logutil.TruncateForLog(res.Message, 512))
}
