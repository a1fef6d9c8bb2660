package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

const (
	maxErrorChars = 500
	maxStepChars  = 200
)

// FailedTest is one entry of the CI failure report.
type FailedTest struct {
	ID          int      `yaml:"id"`
	Name        string   `yaml:"name"`
	Page        string   `yaml:"page"`
	Description string   `yaml:"description"`
	Error       string   `yaml:"error"`
	Steps       []string `yaml:"steps,omitempty"`
}

// FailedReport is the document CI reads to decide what to notify about.
type FailedReport struct {
	FailedTests []FailedTest `yaml:"failed_tests"`
	TotalFailed int          `yaml:"total_failed"`
	TotalTests  int          `yaml:"total_tests"`
}

// Failures builds the CI failure report. Each failed suite is one entry; its
// error is the first failure and its steps name every failed check.
func Failures(r *Run) FailedReport {
	out := FailedReport{FailedTests: []FailedTest{}, TotalTests: len(r.Suites)}
	for _, s := range r.Suites {
		if s.Passed() {
			continue
		}
		ft := FailedTest{
			ID:          s.ID,
			Name:        s.Name,
			Page:        s.Page,
			Description: s.Description,
		}
		var messages []string
		if s.Error != "" {
			messages = append(messages, s.Error)
		}
		for _, c := range s.Failed() {
			messages = append(messages, fmt.Sprintf("[%s] %s", c.Name, c.Message))
			ft.Steps = append(ft.Steps, truncate(fmt.Sprintf("%s: %s", c.Name, reasonOrStatus(c)), maxStepChars))
		}
		ft.Error = truncate(strings.Join(messages, "\n"), maxErrorChars)
		out.FailedTests = append(out.FailedTests, ft)
	}
	out.TotalFailed = len(out.FailedTests)
	return out
}

// FailedYAML renders the CI failure report.
func FailedYAML(r *Run) ([]byte, error) {
	return yaml.Marshal(Failures(r))
}

// FullYAML renders the whole run, every check included.
func FullYAML(r *Run) ([]byte, error) {
	return yaml.Marshal(r)
}

// WriteFile writes the CI failure report to path, creating parent directories.
func WriteFile(path string, r *Run) error {
	data, err := FailedYAML(r)
	if err != nil {
		return fmt.Errorf("encode failure report: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

func reasonOrStatus(c CheckResult) string {
	if c.Reason != "" {
		return c.Reason
	}
	return string(c.Status)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
