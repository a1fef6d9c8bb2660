package s3client

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/kuitang/lp-linkcheck/internal/obs"
	"github.com/kuitang/lp-linkcheck/internal/report"
)

const (
	contentTypeYAML = "application/yaml"
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypePNG  = "image/png"
)

// Artifacts lists the public URLs of an uploaded run.
type Artifacts struct {
	SummaryURL string
	FailedURL  string
	FullURL    string
	// Screenshots maps the local screenshot path to its public URL.
	Screenshots map[string]string
}

// RunPrefix is the key prefix every artifact of a run is stored under.
func RunPrefix(runID string) string {
	return "runs/" + runID + "/"
}

// UploadRun stores the run's screenshots and reports under RunPrefix(run.ID).
// Screenshot paths in run are rewritten to their public URLs and
// run.ReportURL is set to the HTML summary, so the uploaded documents link to
// each other. A screenshot that cannot be read is left as a local path.
func (s *Store) UploadRun(ctx context.Context, run *report.Run) (Artifacts, error) {
	if run.ID == "" {
		return Artifacts{}, fmt.Errorf("s3client: run has no id")
	}
	logger := obs.From(ctx).With("pkg", "s3client")
	out := Artifacts{Screenshots: map[string]string{}}

	for si := range run.Suites {
		checks := run.Suites[si].Checks
		for ci := range checks {
			local := checks[ci].Screenshot
			if local == "" || isURL(local) {
				continue
			}
			if u, ok := out.Screenshots[local]; ok {
				checks[ci].Screenshot = u
				continue
			}
			data, err := os.ReadFile(local)
			if err != nil {
				logger.Warn("skip unreadable screenshot", "path", local, "error", err)
				continue
			}
			u, err := s.put(ctx, run.ID, artifact{
				name:         "screenshots/" + path.Base(filepath.ToSlash(local)),
				contentType:  contentTypePNG,
				cacheControl: cacheImmutable,
				body:         data,
			})
			if err != nil {
				return out, err
			}
			out.Screenshots[local] = u
			checks[ci].Screenshot = u
		}
	}

	run.ReportURL = s.URL(RunPrefix(run.ID) + "summary.html")

	html, err := report.HTML(run)
	if err != nil {
		return out, err
	}
	failed, err := report.FailedYAML(run)
	if err != nil {
		return out, fmt.Errorf("s3client: encode failure report: %w", err)
	}
	full, err := report.FullYAML(run)
	if err != nil {
		return out, fmt.Errorf("s3client: encode full report: %w", err)
	}

	reports := []struct {
		artifact
		url *string
	}{
		{artifact{name: "failed.yaml", contentType: contentTypeYAML, body: failed}, &out.FailedURL},
		{artifact{name: "report.yaml", contentType: contentTypeYAML, body: full}, &out.FullURL},
		{artifact{name: "summary.html", contentType: contentTypeHTML, body: []byte(html)}, &out.SummaryURL},
	}
	for _, r := range reports {
		r.cacheControl = cacheReport
		u, err := s.put(ctx, run.ID, r.artifact)
		if err != nil {
			return out, err
		}
		*r.url = u
	}

	logger.Info("run artifacts uploaded", "run_id", run.ID, "screenshots", len(out.Screenshots), "summary", out.SummaryURL)
	return out, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
