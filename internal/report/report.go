// Package report holds the result of a check run and renders it for CI, for
// humans and for email.
package report

import (
	"time"
)

// Status is the verdict of one check.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	// StatusError means the check could not run, e.g. the browser went away.
	StatusError Status = "error"
)

// CheckResult is the outcome of one check.
type CheckResult struct {
	Name     string        `yaml:"name"`
	Kind     string        `yaml:"kind"`
	Status   Status        `yaml:"status"`
	Reason   string        `yaml:"reason,omitempty"`
	Message  string        `yaml:"message,omitempty"`
	Policy   string        `yaml:"policy,omitempty"`
	Expected string        `yaml:"expected,omitempty"`
	Actual   string        `yaml:"actual,omitempty"`
	Outcome  string        `yaml:"outcome,omitempty"`
	Warning  string        `yaml:"warning,omitempty"`
	Details  []string      `yaml:"details,omitempty"`
	Duration time.Duration `yaml:"duration"`
	// Screenshot is a local path or, once uploaded, a public URL.
	Screenshot string `yaml:"screenshot,omitempty"`
}

// Passed reports whether the check passed.
func (c CheckResult) Passed() bool {
	return c.Status == StatusPassed
}

// SuiteResult collects the checks run against one page.
type SuiteResult struct {
	ID          int           `yaml:"id"`
	Name        string        `yaml:"name"`
	Page        string        `yaml:"page"`
	Description string        `yaml:"description,omitempty"`
	Checks      []CheckResult `yaml:"checks"`
	// Error is set when the suite aborted before all checks ran.
	Error string `yaml:"error,omitempty"`
}

// Failed returns the checks that did not pass.
func (s SuiteResult) Failed() []CheckResult {
	var out []CheckResult
	for _, c := range s.Checks {
		if !c.Passed() {
			out = append(out, c)
		}
	}
	return out
}

// Passed reports whether every check in the suite passed and the suite ran to
// completion.
func (s SuiteResult) Passed() bool {
	return s.Error == "" && len(s.Failed()) == 0
}

// Run is a complete check run.
type Run struct {
	ID         string        `yaml:"id"`
	StartedAt  time.Time     `yaml:"started_at"`
	FinishedAt time.Time     `yaml:"finished_at"`
	Suites     []SuiteResult `yaml:"suites"`
	// ReportURL is where the uploaded report can be read, if it was uploaded.
	ReportURL string `yaml:"report_url,omitempty"`
}

// Counts summarizes a run.
type Counts struct {
	Suites       int
	FailedSuites int
	Checks       int
	Passed       int
	Failed       int
	Errored      int
}

// Counts tallies suites and checks by verdict.
func (r *Run) Counts() Counts {
	var c Counts
	for _, s := range r.Suites {
		c.Suites++
		if !s.Passed() {
			c.FailedSuites++
		}
		for _, ch := range s.Checks {
			c.Checks++
			switch ch.Status {
			case StatusPassed:
				c.Passed++
			case StatusError:
				c.Errored++
			default:
				c.Failed++
			}
		}
	}
	return c
}

// Passed reports whether every suite passed.
func (r *Run) Passed() bool {
	for _, s := range r.Suites {
		if !s.Passed() {
			return false
		}
	}
	return true
}

// HasErrors reports whether any suite aborted or any check could not run.
func (r *Run) HasErrors() bool {
	for _, s := range r.Suites {
		if s.Error != "" {
			return true
		}
		for _, c := range s.Checks {
			if c.Status == StatusError {
				return true
			}
		}
	}
	return false
}

// Duration is the wall time of the run.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
