package navverify

import (
	"context"
	"log/slog"
)

// restore puts the session back where the verification found it. Each step is
// attempted once; failures are recorded and logged but never change the
// verdict.
func (v *Verifier) restore(ctx context.Context, sess Session, opts Options, originURL string, seen observation, logger *slog.Logger) []Cleanup {
	var steps []Cleanup

	for _, p := range append([]Page{seen.page}, seen.extra...) {
		if p == nil {
			continue
		}
		step := Cleanup{Action: CleanupCloseTab, Target: p.URL()}
		if err := p.Close(); err != nil {
			step.Err = err
			logger.Warn("close new tab failed", "error", err)
		}
		steps = append(steps, step)
	}

	if !*opts.ReturnToOrigin {
		return steps
	}
	// A failed same-tab match can still have moved the main tab.
	if !seen.sameOK && sess.URL() == originURL {
		return steps
	}

	// Restoration must run even if the caller's ctx was cancelled mid-check.
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.CleanupTimeout)
	defer cancel()

	if opts.RestoreURL != "" {
		step := Cleanup{Action: CleanupNavigate, Target: opts.RestoreURL}
		if err := sess.Navigate(stepCtx, opts.RestoreURL); err != nil {
			step.Err = err
			logger.Warn("restore navigation failed", "target", opts.RestoreURL, "error", err)
		}
		return append(steps, step)
	}

	step := Cleanup{Action: CleanupGoBack, Target: originURL}
	if err := sess.GoBack(stepCtx); err != nil {
		step.Err = err
		logger.Warn("go back failed", "error", err)
	}
	return append(steps, step)
}
