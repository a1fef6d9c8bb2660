package runner

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/catalog"
	"github.com/kuitang/lp-linkcheck/internal/obs"
)

// openPage loads the suite's start page with its overlays handled and runs
// the prepare steps.
func (r *Runner) openPage(ctx context.Context, sess *browser.Session, s catalog.Suite) error {
	if slices.Contains(s.Dismiss, catalog.OverlayTTR) {
		if err := sess.InstallTTRKiller(); err != nil {
			return fmt.Errorf("install popup killer: %w", err)
		}
	}
	if err := sess.Navigate(ctx, s.StartURL); err != nil {
		return fmt.Errorf("open %s: %w", s.StartURL, err)
	}
	if s.InstantScroll {
		if err := sess.DisableSmoothScroll(); err != nil {
			return fmt.Errorf("disable smooth scroll: %w", err)
		}
	}
	r.dismiss(ctx, sess, s)

	for i, step := range s.Prepare {
		if err := r.runStep(ctx, sess, step); err != nil {
			return fmt.Errorf("prepare step %d (%s): %w", i+1, step.Action, err)
		}
	}
	return nil
}

func (r *Runner) runStep(ctx context.Context, sess *browser.Session, step catalog.Step) error {
	switch step.Action {
	case catalog.StepSelectOption:
		return sess.Link(step.Selector, 0, "").SelectLabel(ctx, step.Label)
	case catalog.StepWheel:
		if err := sess.Wheel(step.DY); err != nil {
			return err
		}
		return browser.Sleep(ctx, 300*time.Millisecond)
	case catalog.StepScrollIntoView:
		return sess.Link(step.Selector, 0, "").ScrollIntoView(ctx)
	case catalog.StepClick:
		return sess.Link(step.Selector, 0, "").Click(ctx, false)
	case catalog.StepWait:
		return browser.Sleep(ctx, time.Duration(step.MS)*time.Millisecond)
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}
}

// dismiss removes the suite's overlays from the current document. Failures
// are logged only; a click that is still intercepted is retried forced.
func (r *Runner) dismiss(ctx context.Context, sess *browser.Session, s catalog.Suite) {
	logger := obs.From(ctx).With("pkg", "runner")
	for _, kind := range s.Dismiss {
		var err error
		switch kind {
		case catalog.OverlaySPC:
			err = sess.DismissSPC(ctx)
		case catalog.OverlayTTR:
			err = sess.RemoveTTR()
		}
		if err != nil {
			logger.Debug("dismiss overlay failed", "overlay", kind, "error", err)
		}
	}
}
