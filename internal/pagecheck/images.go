// Package pagecheck holds the pure classifiers behind the page-level checks.
// The browser collects raw samples; everything here is deterministic.
package pagecheck

import (
	"math"
	"regexp"
	"strings"
)

// SkipReason says why an image was left out of an audit.
type SkipReason string

const (
	SkipNone        SkipReason = ""
	SkipEmptySrc    SkipReason = "empty_src"
	SkipTracking    SkipReason = "tracking"
	SkipNotRendered SkipReason = "not_rendered"
	SkipZeroSize    SkipReason = "zero_size"
	SkipPlaceholder SkipReason = "placeholder"
	SkipDuplicate   SkipReason = "duplicate"
	SkipNotLoaded   SkipReason = "not_loaded"
	SkipNoNatural   SkipReason = "no_natural_size"
	SkipObjectFit   SkipReason = "object_fit"
)

// ImageSample is what the browser reports about one <img>.
type ImageSample struct {
	Src       string  `json:"src"`
	Complete  bool    `json:"complete"`
	NaturalW  float64 `json:"naturalW"`
	NaturalH  float64 `json:"naturalH"`
	BoxW      float64 `json:"boxW"`
	BoxH      float64 `json:"boxH"`
	ObjectFit string  `json:"objectFit"`
}

// Loaded reports whether the browser decoded the image.
func (s ImageSample) Loaded() bool {
	return s.Complete && s.NaturalW > 0
}

var trackingPattern = regexp.MustCompile(`(?i)bat\.bing\.com/action/0|google-analytics|googletagmanager|doubleclick`)

// IsTracking reports whether src is a measurement pixel.
func IsTracking(src string) bool {
	return trackingPattern.MatchString(src)
}

// LoadAudit is the result of ClassifyLoaded.
type LoadAudit struct {
	Total   int
	Checked int
	Loaded  int
	Failed  []string
	Skipped map[SkipReason]int
}

// OK reports whether at least one image was present and none failed.
func (a LoadAudit) OK() bool {
	return a.Total > 0 && len(a.Failed) == 0
}

// SuccessRate is the loaded share of checked images, in percent.
func (a LoadAudit) SuccessRate() float64 {
	if a.Checked == 0 {
		return 0
	}
	return float64(a.Loaded) / float64(a.Checked) * 100
}

// ClassifyLoaded audits that every rendered, non-tracking image loaded.
func ClassifyLoaded(samples []ImageSample) LoadAudit {
	audit := LoadAudit{Total: len(samples), Skipped: map[SkipReason]int{}}
	for _, s := range samples {
		if reason := loadSkip(s); reason != SkipNone {
			audit.Skipped[reason]++
			continue
		}
		audit.Checked++
		if s.Loaded() {
			audit.Loaded++
		} else {
			audit.Failed = append(audit.Failed, s.Src)
		}
	}
	return audit
}

func loadSkip(s ImageSample) SkipReason {
	switch {
	case strings.TrimSpace(s.Src) == "":
		return SkipEmptySrc
	case IsTracking(s.Src):
		return SkipTracking
	case s.BoxW == 0 && s.BoxH == 0:
		return SkipNotRendered
	case s.BoxW == 0 || s.BoxH == 0:
		return SkipZeroSize
	default:
		return SkipNone
	}
}

// DefaultAspectTolerance is the relative aspect-ratio drift allowed for fill images.
const DefaultAspectTolerance = 0.05

// Distortion describes one image whose rendered box stretches it.
type Distortion struct {
	Src       string
	NaturalW  float64
	NaturalH  float64
	BoxW      float64
	BoxH      float64
	RelDiff   float64
	ObjectFit string
}

// AspectAudit is the result of ClassifyAspect.
type AspectAudit struct {
	Total         int
	Valid         int
	Distorted     []Distortion
	NotApplicable int
	Skipped       map[SkipReason]int
	Checked       []string
}

// OK reports whether at least one image was present and none was distorted.
func (a AspectAudit) OK() bool {
	return a.Total > 0 && len(a.Distorted) == 0
}

// ClassifyAspect audits that images rendered with object-fit fill keep their
// natural aspect ratio within tolerance. A non-positive tolerance uses
// DefaultAspectTolerance.
func ClassifyAspect(samples []ImageSample, tolerance float64) AspectAudit {
	if tolerance <= 0 {
		tolerance = DefaultAspectTolerance
	}
	audit := AspectAudit{Total: len(samples), Skipped: map[SkipReason]int{}}
	seen := make(map[string]bool, len(samples))

	for _, s := range samples {
		switch {
		case IsTracking(s.Src):
			audit.Skipped[SkipTracking]++
			continue
		case strings.HasPrefix(s.Src, "data:image/svg+xml"):
			audit.Skipped[SkipPlaceholder]++
			continue
		case s.Src != "" && seen[s.Src]:
			audit.Skipped[SkipDuplicate]++
			continue
		}
		if s.Src != "" {
			seen[s.Src] = true
		}

		switch {
		case s.BoxW == 0 || s.BoxH == 0:
			audit.Skipped[SkipZeroSize]++
			continue
		case !s.Loaded():
			audit.Skipped[SkipNotLoaded]++
			continue
		case s.NaturalW == 0 || s.NaturalH == 0:
			audit.Skipped[SkipNoNatural]++
			continue
		case isFitted(s.ObjectFit):
			audit.NotApplicable++
			continue
		}

		audit.Checked = append(audit.Checked, s.Src)
		diff := RelativeAspectDiff(s.NaturalW, s.NaturalH, s.BoxW, s.BoxH)
		if diff > tolerance {
			audit.Distorted = append(audit.Distorted, Distortion{
				Src:       s.Src,
				NaturalW:  s.NaturalW,
				NaturalH:  s.NaturalH,
				BoxW:      s.BoxW,
				BoxH:      s.BoxH,
				RelDiff:   diff,
				ObjectFit: s.ObjectFit,
			})
			continue
		}
		audit.Valid++
	}
	return audit
}

// RelativeAspectDiff is |natural AR - box AR| / natural AR.
func RelativeAspectDiff(naturalW, naturalH, boxW, boxH float64) float64 {
	natural := naturalW / naturalH
	box := boxW / boxH
	return math.Abs(natural-box) / natural
}

// cover, contain and scale-down never match the box aspect by construction.
func isFitted(objectFit string) bool {
	switch strings.ToLower(strings.TrimSpace(objectFit)) {
	case "cover", "contain", "scale-down":
		return true
	}
	return false
}
