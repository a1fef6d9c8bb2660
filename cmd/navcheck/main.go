// Command navcheck opens the catalog's landing pages in Chromium, verifies
// that their links, anchors, images and overlays behave, and reports failures.
//
// Usage:
//
//	navcheck [--catalog file.yaml] [--suite name-or-id,...] [--report failed_tests.yaml] [--screenshots dir] [--test]
//
// Exit status is 0 when every check passed, 1 when a check failed, 2 on a
// configuration error and 3 when the run could not complete.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/catalog"
	"github.com/kuitang/lp-linkcheck/internal/config"
	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/notify"
	"github.com/kuitang/lp-linkcheck/internal/obs"
	"github.com/kuitang/lp-linkcheck/internal/ratelimit"
	"github.com/kuitang/lp-linkcheck/internal/report"
	"github.com/kuitang/lp-linkcheck/internal/runner"
	"github.com/kuitang/lp-linkcheck/internal/s3client"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// setup is everything resolved before the browser starts.
type setup struct {
	cfg      *config.Config
	suites   []catalog.Suite
	store    *s3client.Store
	notifier notify.Notifier
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	obs.Init()
	logger := obs.Pkg("navcheck")

	st, code := load(ctx, args, stderr)
	if st == nil {
		return code
	}
	cfg := st.cfg

	b, err := browser.Launch(browser.Options{
		Headless:       cfg.Headless,
		Viewport:       cfg.Viewport,
		DefaultTimeout: cfg.Timeout,
	})
	if err != nil {
		logger.Error("browser unavailable", "error", err)
		fmt.Fprintf(stderr, "navcheck: %s\n", errs.MessageOf(err))
		return errs.ExitCode(errs.CodeOf(err))
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Warn("browser shutdown failed", "error", err)
		}
	}()

	pacer := ratelimit.NewPacer(cfg.RateLimitConfig)
	defer pacer.Stop()

	result := runner.New(b, pacer, runner.Options{
		Timeout:        cfg.Timeout,
		VisibleTimeout: cfg.VisibleTimeout,
		SettleWindow:   cfg.SettleWindow,
		ScreenshotDir:  cfg.ScreenshotDir,
	}).Run(ctx, st.suites)
	logger.Debug("run paced", "hosts", pacer.Len())

	return finish(context.WithoutCancel(ctx), st, result, stdout, stderr)
}

// load parses flags, configuration and the catalog, and builds the outside
// services. A nil setup comes with the exit code to return.
func load(ctx context.Context, args []string, stderr io.Writer) (*setup, int) {
	flags, err := config.ParseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errs.ExitOK
		}
		fmt.Fprintf(stderr, "navcheck: %v\n", err)
		return nil, errs.ExitConfig
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintf(stderr, "navcheck: %v\n", err)
		return nil, errs.ExitConfig
	}
	obs.SetLevel(obs.ParseLevel(cfg.LogLevel))

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		fmt.Fprintf(stderr, "navcheck: %v\n", err)
		return nil, errs.ExitConfig
	}
	suites, err := cat.Select(cfg.Suites)
	if err != nil {
		fmt.Fprintf(stderr, "navcheck: %v\n", err)
		return nil, errs.ExitConfig
	}
	cfg.PrintStartupSummary(stderr)

	st := &setup{cfg: cfg, suites: suites}
	if !cfg.NoS3 {
		st.store, err = s3client.New(ctx, s3client.Config{
			Endpoint:        cfg.AWSEndpointS3,
			Region:          cfg.AWSRegion,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			Bucket:          cfg.AWSBucketName,
			PublicURL:       cfg.AWSPublicURL,
		})
		if err != nil {
			fmt.Fprintf(stderr, "navcheck: %v\n", err)
			return nil, errs.ExitConfig
		}
	}
	if cfg.NoEmail {
		st.notifier = notify.NewMock(cfg.MockOutboxDir)
	} else {
		st.notifier = notify.NewResend(cfg.ResendAPIKey, cfg.ResendFromEmail)
	}
	return st, errs.ExitOK
}

// finish publishes the run: artifacts first so the written report carries
// their public URLs, then the local report, the summary and the email.
func finish(ctx context.Context, st *setup, result *report.Run, stdout, stderr io.Writer) int {
	ctx = obs.WithCorrelation(ctx, obs.Correlation{RunID: result.ID})
	logger := obs.From(ctx).With("pkg", "navcheck")

	if st.store != nil {
		if _, err := st.store.UploadRun(ctx, result); err != nil {
			logger.Warn("artifact upload failed", "error", err)
		}
	}
	if err := report.WriteFile(st.cfg.ReportPath, result); err != nil {
		logger.Error("write report failed", "path", st.cfg.ReportPath, "error", err)
		fmt.Fprintf(stderr, "navcheck: %v\n", err)
		return errs.ExitFatal
	}
	fmt.Fprint(stdout, report.Markdown(result))

	if !result.Passed() {
		notifyFailure(ctx, st, result)
	}
	return exitCode(result)
}

func notifyFailure(ctx context.Context, st *setup, result *report.Run) {
	logger := obs.From(ctx).With("pkg", "navcheck")
	if len(st.cfg.NotifyTo) == 0 {
		logger.Info("no recipients configured, skipping failure email")
		return
	}
	html, err := report.HTML(result)
	if err != nil {
		logger.Warn("render failure email failed", "error", err)
		return
	}
	err = st.notifier.Send(ctx, notify.Message{
		To:      st.cfg.NotifyTo,
		Subject: report.Title(result),
		HTML:    html,
	})
	if err != nil {
		logger.Warn("failure email not sent", "error", err)
	}
}

// exitCode maps a finished run to the process status. A run with aborted
// suites is incomplete, which outranks failed checks.
func exitCode(r *report.Run) int {
	switch {
	case r.HasErrors():
		return errs.ExitFatal
	case !r.Passed():
		return errs.ExitCheckFailed
	default:
		return errs.ExitOK
	}
}
