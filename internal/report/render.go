package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const emailTemplate = `<!DOCTYPE html>
<html lang="ja">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.5; color: #1a1a1a; max-width: 900px; margin: 0 auto; padding: 1rem; }
        table { border-collapse: collapse; width: 100%; }
        th, td { border: 1px solid #e0e0e0; padding: 0.3rem 0.5rem; text-align: left; vertical-align: top; }
        code { background: #f5f5f5; padding: 0 0.2rem; }
    </style>
</head>
<body>
{{.Content}}
</body>
</html>`

var emailTmpl = template.Must(template.New("email").Parse(emailTemplate))

// Title is the one-line headline of a run.
func Title(r *Run) string {
	c := r.Counts()
	if r.Passed() {
		return fmt.Sprintf("Link check passed: %d/%d checks", c.Passed, c.Checks)
	}
	return fmt.Sprintf("Link check failed: %d of %d suites", c.FailedSuites, c.Suites)
}

// Markdown renders a human-readable summary of the run.
func Markdown(r *Run) string {
	var b strings.Builder
	c := r.Counts()

	fmt.Fprintf(&b, "# %s\n\n", Title(r))
	fmt.Fprintf(&b, "- Run: `%s`\n", r.ID)
	fmt.Fprintf(&b, "- Started: %s\n", r.StartedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", r.Duration().Round(time.Second))
	fmt.Fprintf(&b, "- Checks: %d passed, %d failed, %d errored\n", c.Passed, c.Failed, c.Errored)
	if r.ReportURL != "" {
		fmt.Fprintf(&b, "- Report: [%s](%s)\n", r.ReportURL, r.ReportURL)
	}

	b.WriteString("\n## Suites\n\n")
	b.WriteString("| ID | Suite | Page | Result |\n|---|---|---|---|\n")
	for _, s := range r.Suites {
		result := "✅ passed"
		if !s.Passed() {
			result = fmt.Sprintf("❌ %d failed", len(s.Failed()))
			if s.Error != "" {
				result = "❌ aborted"
			}
		}
		fmt.Fprintf(&b, "| %d | %s | %s | %s |\n", s.ID, cell(s.Name), cell(s.Page), result)
	}

	if r.Passed() {
		return b.String()
	}

	b.WriteString("\n## Failures\n")
	for _, s := range r.Suites {
		if s.Passed() {
			continue
		}
		fmt.Fprintf(&b, "\n### %d. %s\n\n", s.ID, s.Name)
		if s.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", s.Description)
		}
		if s.Error != "" {
			fmt.Fprintf(&b, "- **suite aborted**: %s\n", inline(s.Error))
		}
		for _, ch := range s.Failed() {
			fmt.Fprintf(&b, "- **%s** (`%s`): %s\n", inline(ch.Name), reasonOrStatus(ch), inline(ch.Message))
			if ch.Expected != "" || ch.Actual != "" {
				fmt.Fprintf(&b, "  - expected `%s`, actual `%s` under `%s`\n", ch.Expected, ch.Actual, ch.Policy)
			}
			for _, d := range ch.Details {
				fmt.Fprintf(&b, "  - %s\n", inline(d))
			}
			if ch.Screenshot != "" {
				fmt.Fprintf(&b, "  - [screenshot](%s)\n", ch.Screenshot)
			}
		}
	}
	return b.String()
}

// HTML renders the Markdown summary as a sanitized, self-contained HTML
// document suitable for an email body. URLs and messages come from live pages,
// so the rendered fragment goes through bluemonday before it is embedded.
func HTML(r *Run) (string, error) {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(Markdown(r)))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank})
	fragment := bluemonday.UGCPolicy().SanitizeBytes(markdown.Render(doc, renderer))

	var buf bytes.Buffer
	err := emailTmpl.Execute(&buf, struct {
		Title   string
		Content template.HTML
	}{
		Title:   Title(r),
		Content: template.HTML(fragment),
	})
	if err != nil {
		return "", fmt.Errorf("render report html: %w", err)
	}
	return buf.String(), nil
}

func cell(s string) string {
	return strings.ReplaceAll(inline(s), "|", `\|`)
}

func inline(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
