package runner

import (
	"errors"
	"fmt"

	"github.com/kuitang/lp-linkcheck/internal/catalog"
	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/navverify"
	"github.com/kuitang/lp-linkcheck/internal/report"
)

// failure is an expected check failure. Any other error returned by an
// executor is fatal for the suite.
type failure struct {
	code     errs.Code
	message  string
	expected string
	actual   string
	details  []string
}

func (f *failure) Error() string {
	return fmt.Sprintf("%s: %s", f.code, f.message)
}

func fail(code errs.Code, format string, args ...any) *failure {
	return &failure{code: code, message: fmt.Sprintf(format, args...)}
}

func (f *failure) want(expected, actual string) *failure {
	f.expected, f.actual = expected, actual
	return f
}

func (f *failure) with(details []string) *failure {
	f.details = details
	return f
}

// single turns an executor's outcome into one check result. Fatal errors are
// passed through.
func single(ch catalog.Check, details []string, err error) ([]report.CheckResult, error) {
	res := report.CheckResult{Name: ch.Name, Kind: string(ch.Kind), Details: details}
	if err == nil {
		res.Status = report.StatusPassed
		return []report.CheckResult{res}, nil
	}
	var f *failure
	if !errors.As(err, &f) {
		return nil, err
	}
	res.Status = report.StatusFailed
	res.Reason = string(f.code)
	res.Message = f.message
	res.Expected = f.expected
	res.Actual = f.actual
	if len(f.details) > 0 {
		res.Details = f.details
	}
	return []report.CheckResult{res}, nil
}

// failedResult reports a navigation check that failed before a click.
func failedResult(name string, f *failure) report.CheckResult {
	return report.CheckResult{
		Name:     name,
		Kind:     string(catalog.KindNavigation),
		Status:   report.StatusFailed,
		Reason:   string(f.code),
		Message:  f.message,
		Expected: f.expected,
		Actual:   f.actual,
		Details:  f.details,
	}
}

// fromVerify converts a navigation verdict into a check result. Cleanup
// problems are kept as details; they never change the status.
func fromVerify(name string, res navverify.Result) report.CheckResult {
	out := report.CheckResult{
		Name:     name,
		Kind:     string(catalog.KindNavigation),
		Status:   report.StatusPassed,
		Policy:   res.Policy,
		Expected: res.Expected,
		Actual:   res.Actual,
		Outcome:  res.Outcome.Kind.String(),
		Warning:  string(res.Warning),
		Duration: res.Duration,
	}
	if !res.Passed() {
		out.Status = report.StatusFailed
		out.Reason = string(res.Reason)
		out.Message = res.Message
	}
	if res.Warning == errs.AmbiguousOutcome {
		out.Details = append(out.Details, "both a new tab and a same-tab navigation were observed")
	}
	for _, c := range res.Cleanup {
		if c.Err != nil {
			out.Details = append(out.Details, fmt.Sprintf("cleanup %s %s failed: %v", c.Action, c.Target, c.Err))
		}
	}
	return out
}
