// Package catalog loads the YAML check catalog: which pages to open, how to
// prepare them, and which checks to run against them.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kuitang/lp-linkcheck/internal/urlutil"
)

//go:embed turkish.yaml
var defaultCatalog []byte

// Kind names a check type.
type Kind string

const (
	KindNavigation     Kind = "navigation"
	KindAnchorScroll   Kind = "anchor_scroll"
	KindImagesLoaded   Kind = "images_loaded"
	KindImageAspect    Kind = "image_aspect"
	KindOverlayVisible Kind = "overlay_visible"
	KindTextFollows    Kind = "text_follows"
	KindLinkInventory  Kind = "link_inventory"
)

// StepAction names a page preparation step.
type StepAction string

const (
	StepSelectOption   StepAction = "select_option"
	StepWheel          StepAction = "wheel"
	StepScrollIntoView StepAction = "scroll_into_view"
	StepClick          StepAction = "click"
	StepWait           StepAction = "wait"
)

// Overlay kinds that can be dismissed before clicks.
const (
	OverlaySPC = "spc" // quick-search overlay that intercepts pointer events
	OverlayTTR = "ttr" // injected promotion popup
)

// Catalog is the parsed check catalog.
type Catalog struct {
	Suites []Suite `yaml:"suites"`
}

// Suite is one page under test and the checks run against it.
type Suite struct {
	ID          int    `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	StartURL    string `yaml:"start_url"`
	// Dismiss lists overlay kinds removed before every click.
	Dismiss []string `yaml:"dismiss"`
	// InstantScroll disables smooth scrolling so anchor jumps land at once.
	InstantScroll bool    `yaml:"instant_scroll"`
	Prepare       []Step  `yaml:"prepare"`
	Checks        []Check `yaml:"checks"`
}

// Step prepares the page before checks run.
type Step struct {
	Action   StepAction `yaml:"action"`
	Selector string     `yaml:"selector"`
	Label    string     `yaml:"label"`
	DY       float64    `yaml:"dy"`
	MS       int        `yaml:"ms"`
}

// Range bounds a pixel offset.
type Range struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// Check is one assertion against a suite's page. Which fields apply depends
// on Kind.
type Check struct {
	Name string `yaml:"name"`
	Kind Kind   `yaml:"kind"`

	// navigation, overlay_visible, text_follows, link_inventory
	Selector string `yaml:"selector"`
	Nth      int    `yaml:"nth"`
	HasText  string `yaml:"has_text"`

	// navigation
	// Each verifies every match of Selector instead of the Nth one.
	Each           bool   `yaml:"each"`
	// Hover is hovered before each click, for links inside hover menus.
	Hover          string `yaml:"hover"`
	ExpectedHref   string `yaml:"expected_href"`
	HrefContains   string `yaml:"href_contains"`
	Policy         string `yaml:"policy"`
	ReturnToOrigin *bool  `yaml:"return_to_origin"`
	RestoreURL     string `yaml:"restore_url"`
	Force          bool   `yaml:"force"`

	// anchor_scroll
	Href     string `yaml:"href"`
	NearTop  *Range `yaml:"near_top"`
	CheckTop bool   `yaml:"check_top"`

	// anchor_scroll, overlay_visible, text_follows
	Target string `yaml:"target"`

	// text_follows
	Label string `yaml:"label"`
	Text  string `yaml:"text"`

	// image_aspect
	Tolerance float64 `yaml:"tolerance"`

	// link_inventory
	Min int `yaml:"min"`

	// Timeout overrides the run-wide check timeout, e.g. "30s".
	Timeout string `yaml:"timeout"`
}

// ValidationError reports every problem found in a catalog.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("catalog validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Load reads a catalog from path, or the embedded one when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a catalog. Unknown fields are rejected.
func Parse(data []byte) (*Catalog, error) {
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the catalog for structural problems.
func (c *Catalog) Validate() error {
	var errs []string
	if len(c.Suites) == 0 {
		errs = append(errs, "catalog has no suites")
	}

	ids := map[int]bool{}
	for i, s := range c.Suites {
		where := fmt.Sprintf("suite[%d] %q", i, s.Name)
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Sprintf("suite[%d]: name is required", i))
		}
		if s.ID != 0 {
			if ids[s.ID] {
				errs = append(errs, fmt.Sprintf("%s: duplicate id %d", where, s.ID))
			}
			ids[s.ID] = true
		}
		if !urlutil.IsHTTP(s.StartURL) {
			errs = append(errs, fmt.Sprintf("%s: start_url must be an absolute http(s) URL", where))
		}
		for _, d := range s.Dismiss {
			if d != OverlaySPC && d != OverlayTTR {
				errs = append(errs, fmt.Sprintf("%s: unknown overlay %q", where, d))
			}
		}
		for j, step := range s.Prepare {
			errs = append(errs, step.validate(fmt.Sprintf("%s prepare[%d]", where, j))...)
		}
		if len(s.Checks) == 0 {
			errs = append(errs, fmt.Sprintf("%s: no checks", where))
		}
		for j, ch := range s.Checks {
			errs = append(errs, ch.validate(fmt.Sprintf("%s check[%d] %q", where, j, ch.Name))...)
		}
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

func (s Step) validate(where string) []string {
	var errs []string
	switch s.Action {
	case StepSelectOption:
		if s.Selector == "" || s.Label == "" {
			errs = append(errs, where+": select_option needs selector and label")
		}
	case StepScrollIntoView, StepClick:
		if s.Selector == "" {
			errs = append(errs, fmt.Sprintf("%s: %s needs selector", where, s.Action))
		}
	case StepWheel:
		if s.DY == 0 {
			errs = append(errs, where+": wheel needs a non-zero dy")
		}
	case StepWait:
		if s.MS <= 0 {
			errs = append(errs, where+": wait needs positive ms")
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown action %q", where, s.Action))
	}
	return errs
}

func (c Check) validate(where string) []string {
	var errs []string
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, where+": name is required")
	}
	if c.Timeout != "" {
		if d, err := time.ParseDuration(c.Timeout); err != nil || d <= 0 {
			errs = append(errs, fmt.Sprintf("%s: invalid timeout %q", where, c.Timeout))
		}
	}

	switch c.Kind {
	case KindNavigation:
		if c.Selector == "" {
			errs = append(errs, where+": navigation needs selector")
		}
		if c.Nth < 0 {
			errs = append(errs, where+": nth must not be negative")
		}
		if c.Each && (c.Nth != 0 || c.ExpectedHref != "") {
			errs = append(errs, where+": each cannot be combined with nth or expected_href")
		}
		if _, err := urlutil.ParsePolicy(c.Policy); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", where, err))
		}
		if c.RestoreURL != "" && !urlutil.IsHTTP(c.RestoreURL) {
			errs = append(errs, where+": restore_url must be an absolute http(s) URL")
		}
	case KindAnchorScroll:
		if c.Href == "" || !strings.HasPrefix(c.Href, "#") {
			errs = append(errs, where+": anchor_scroll needs an in-page href such as #ranking")
		}
		if !c.CheckTop && c.Target == "" {
			errs = append(errs, where+": anchor_scroll needs target unless check_top is set")
		}
		if c.NearTop != nil && c.NearTop.Min > c.NearTop.Max {
			errs = append(errs, where+": near_top min exceeds max")
		}
	case KindImagesLoaded:
	case KindImageAspect:
		if c.Tolerance < 0 || c.Tolerance >= 1 {
			errs = append(errs, where+": tolerance must be in [0, 1)")
		}
	case KindOverlayVisible:
		if c.Selector == "" || c.Target == "" {
			errs = append(errs, where+": overlay_visible needs selector and target")
		}
	case KindTextFollows:
		if c.Selector == "" || c.Label == "" || c.Target == "" || c.Text == "" {
			errs = append(errs, where+": text_follows needs selector, label, target and text")
		}
	case KindLinkInventory:
		if c.Selector == "" {
			errs = append(errs, where+": link_inventory needs selector")
		}
		if c.Min < 0 {
			errs = append(errs, where+": min must not be negative")
		}
	default:
		errs = append(errs, fmt.Sprintf("%s: unknown kind %q", where, c.Kind))
	}
	return errs
}

// ComparisonPolicy returns the parsed comparison policy of a navigation check.
func (c Check) ComparisonPolicy() urlutil.Policy {
	p, err := urlutil.ParsePolicy(c.Policy)
	if err != nil {
		return urlutil.OriginPath()
	}
	return p
}

// TimeoutOr returns the check's timeout override, or fallback.
func (c Check) TimeoutOr(fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		return d
	}
	return fallback
}

// NearTopRange returns the accepted top-edge window for an anchor jump.
func (c Check) NearTopRange(defaultMin, defaultMax int) Range {
	if c.NearTop == nil {
		return Range{Min: defaultMin, Max: defaultMax}
	}
	return *c.NearTop
}

// Select returns the suites whose name or id matches one of keys, in catalog
// order. No keys selects every suite. Unknown keys are an error.
func (c *Catalog) Select(keys []string) ([]Suite, error) {
	if len(keys) == 0 {
		return c.Suites, nil
	}

	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			want[k] = true
		}
	}

	var out []Suite
	for _, s := range c.Suites {
		id := strconv.Itoa(s.ID)
		if want[s.Name] || want[id] {
			out = append(out, s)
			delete(want, s.Name)
			delete(want, id)
		}
	}
	if len(want) > 0 {
		missing := make([]string, 0, len(want))
		for k := range want {
			missing = append(missing, k)
		}
		sort.Strings(missing)
		return nil, fmt.Errorf("unknown suites: %s", strings.Join(missing, ", "))
	}
	return out, nil
}

// TotalChecks counts the checks across suites.
func TotalChecks(suites []Suite) int {
	n := 0
	for _, s := range suites {
		n += len(s.Checks)
	}
	return n
}
