package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/lp-linkcheck/internal/config"
	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/notify"
	"github.com/kuitang/lp-linkcheck/internal/report"
	"github.com/kuitang/lp-linkcheck/internal/s3client"
)

func TestRun_ConfigErrorsExitTwo(t *testing.T) {
	t.Setenv("NAVCHECK_VIEWPORT", "")
	cases := map[string][]string{
		"unknown flag":    {"--bogus"},
		"unknown suite":   {"--test", "--suite", "no-such-suite"},
		"missing catalog": {"--test", "--catalog", filepath.Join(t.TempDir(), "missing.yaml")},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), args, &stdout, &stderr)
			assert.Equal(t, errs.ExitConfig, code, stderr.String())
		})
	}
}

func TestRun_HelpExitsZero(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, errs.ExitOK, run(context.Background(), []string{"-h"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "-suite")
}

func TestRun_InvalidCatalogExitsTwo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suites:\n  - name: x\n    start_url: ftp://nope\n"), 0o644))
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--test", "--catalog", path}, &stdout, &stderr)
	assert.Equal(t, errs.ExitConfig, code)
	assert.Contains(t, stderr.String(), "start_url")
}

func TestExitCode(t *testing.T) {
	passed := &report.Run{Suites: []report.SuiteResult{{Checks: []report.CheckResult{{Status: report.StatusPassed}}}}}
	failed := &report.Run{Suites: []report.SuiteResult{{Checks: []report.CheckResult{{Status: report.StatusFailed}}}}}
	aborted := &report.Run{Suites: []report.SuiteResult{
		{Checks: []report.CheckResult{{Status: report.StatusFailed}}},
		{Error: "browser closed"},
	}}
	assert.Equal(t, errs.ExitOK, exitCode(passed))
	assert.Equal(t, errs.ExitCheckFailed, exitCode(failed))
	assert.Equal(t, errs.ExitFatal, exitCode(aborted))
}

func failedRun() *report.Run {
	return &report.Run{
		ID: "run-main",
		Suites: []report.SuiteResult{{
			ID: 8, Name: "web-sidebar-jump", Page: "https://turkish.jp/",
			Checks: []report.CheckResult{{Name: "お気に入り", Kind: "navigation", Status: report.StatusFailed, Reason: "comparison_mismatch"}},
		}},
	}
}

func TestFinish_WritesReportUploadsAndNotifies(t *testing.T) {
	dir := t.TempDir()
	mock := notify.NewMock("")
	st := &setup{
		cfg: &config.Config{
			ReportPath: filepath.Join(dir, "failed_tests.yaml"),
			NotifyTo:   []string{"ops@example.com"},
		},
		store:    s3client.NewFake(t, "artifacts"),
		notifier: mock,
	}
	result := failedRun()

	var stdout, stderr bytes.Buffer
	code := finish(context.Background(), st, result, &stdout, &stderr)
	assert.Equal(t, errs.ExitCheckFailed, code)

	data, err := os.ReadFile(st.cfg.ReportPath)
	require.NoError(t, err)
	var parsed report.FailedReport
	require.NoError(t, yaml.Unmarshal(data, &parsed))
	assert.Equal(t, 1, parsed.TotalFailed)

	assert.NotEmpty(t, result.ReportURL)
	assert.Contains(t, stdout.String(), "web-sidebar-jump")

	require.Equal(t, 1, mock.Count())
	assert.Equal(t, report.Title(result), mock.Last().Subject)
	assert.Contains(t, mock.Last().HTML, result.ReportURL)
}

func TestFinish_PassedRunSendsNothing(t *testing.T) {
	mock := notify.NewMock("")
	st := &setup{
		cfg:      &config.Config{ReportPath: filepath.Join(t.TempDir(), "r.yaml"), NotifyTo: []string{"ops@example.com"}},
		notifier: mock,
	}
	result := &report.Run{ID: "ok", Suites: []report.SuiteResult{{ID: 1, Name: "one", Checks: []report.CheckResult{{Status: report.StatusPassed}}}}}

	var stdout, stderr bytes.Buffer
	assert.Equal(t, errs.ExitOK, finish(context.Background(), st, result, &stdout, &stderr))
	assert.Zero(t, mock.Count())
}
