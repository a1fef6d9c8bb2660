// Package navverify checks that activating a link lands the browser on the
// destination the link declares.
//
// A verification reads the declared reference, arms a new-tab watcher and a
// same-tab URL watcher, clicks, and lets whichever watcher fires first decide
// the outcome. Both watchers are armed before the click is dispatched; arming
// after the click loses navigations that complete quickly.
package navverify

import (
	"context"
	"fmt"
	"time"

	"github.com/kuitang/lp-linkcheck/internal/errs"
)

// Page is a browser tab opened as a side effect of a click.
type Page interface {
	URL() string
	// WaitReady blocks until the page has reached DOMContentLoaded.
	WaitReady(ctx context.Context) error
	Close() error
}

// Session is the browsing context a verification runs in. Implementations
// must register watchers before the Watch methods return.
type Session interface {
	// URL returns the current URL of the session's main tab.
	URL() string
	// WatchNewPage delivers tabs opened in the context until ctx is done.
	WatchNewPage(ctx context.Context) (<-chan Page, error)
	// WatchURL delivers main-tab URLs for which match returns true, until ctx is done.
	WatchURL(ctx context.Context, match func(url string) bool) (<-chan string, error)
	Navigate(ctx context.Context, url string) error
	GoBack(ctx context.Context) error
}

// Target is the clickable element under test.
type Target interface {
	// WaitVisible blocks until the element is attached and visible.
	WaitVisible(ctx context.Context) error
	// Reference returns the declared destination, or "" when the element has none.
	Reference(ctx context.Context) (string, error)
	// Click dispatches a click without waiting for the navigation it triggers.
	// force skips actionability checks such as pointer interception.
	Click(ctx context.Context, force bool) error
}

// OutcomeKind says how a click changed the browsing location.
type OutcomeKind int

const (
	NoNavigation OutcomeKind = iota
	SameTab
	NewTab
)

func (k OutcomeKind) String() string {
	switch k {
	case SameTab:
		return "same_tab"
	case NewTab:
		return "new_tab"
	default:
		return "no_navigation"
	}
}

// Outcome is the navigation a click produced.
type Outcome struct {
	Kind OutcomeKind
	URL  string
}

// Status is the verdict of a verification.
type Status string

const (
	Pass Status = "pass"
	Fail Status = "fail"
)

// CleanupAction names a restoration step run after a verification.
type CleanupAction string

const (
	CleanupNavigate CleanupAction = "navigate"
	CleanupGoBack   CleanupAction = "go_back"
	CleanupCloseTab CleanupAction = "close_tab"
)

// Cleanup records a single best-effort restoration step. Err is kept for
// auditing; it never changes the verdict.
type Cleanup struct {
	Action CleanupAction
	Target string
	Err    error
}

// Result is the typed verdict of Verify. Expected and Actual hold canonical
// keys under Policy; ExpectedURL and ActualURL hold the raw URLs.
type Result struct {
	Label       string
	Status      Status
	Reason      errs.Code
	Message     string
	Policy      string
	Reference   string
	ExpectedURL string
	Expected    string
	ActualURL   string
	Actual      string
	OriginURL   string
	Outcome     Outcome
	// Warning is set when something noteworthy but non-failing was observed,
	// such as both a new tab and a same-tab navigation.
	Warning  errs.Code
	Cleanup  []Cleanup
	Duration time.Duration
}

// Passed reports whether the verification passed.
func (r Result) Passed() bool {
	return r.Status == Pass
}

// Err returns the failure as a coded error, or nil on pass.
func (r Result) Err() error {
	if r.Status != Fail {
		return nil
	}
	return errs.New(r.Reason, r.Message)
}

func (r Result) String() string {
	if r.Status == Pass {
		return fmt.Sprintf("[%s] pass (%s, %s=%s)", r.Label, r.Outcome.Kind, r.Policy, r.Actual)
	}
	return fmt.Sprintf("[%s] %s: %s", r.Label, r.Reason, r.Message)
}

// Options tune one verification.
type Options struct {
	// Timeout bounds both watchers together. Default 15s.
	Timeout time.Duration
	// VisibleTimeout bounds the wait for the target to become visible. Default 5s.
	VisibleTimeout time.Duration
	// ReadyTimeout bounds the wait for a new tab to load and settle. Default Timeout.
	ReadyTimeout time.Duration
	// SettleWindow is how long the losing watcher may still fire after the
	// first one did. Default 500ms.
	SettleWindow time.Duration
	// CleanupTimeout bounds each restoration step. Default 10s.
	CleanupTimeout time.Duration
	// ReturnToOrigin restores the main tab after a same-tab navigation.
	// Nil means true.
	ReturnToOrigin *bool
	// RestoreURL is navigated to instead of going back when set.
	RestoreURL string
	// ForceClick skips the regular click and dispatches a forced one directly.
	ForceClick bool
	// BeforeClick runs before each click attempt, typically to dismiss
	// overlays. Its error is logged and ignored.
	BeforeClick func(ctx context.Context) error
	Label       string
}

const (
	DefaultTimeout        = 15 * time.Second
	DefaultVisibleTimeout = 5 * time.Second
	DefaultSettleWindow   = 500 * time.Millisecond
	DefaultCleanupTimeout = 10 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.VisibleTimeout <= 0 {
		o.VisibleTimeout = DefaultVisibleTimeout
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = o.Timeout
	}
	if o.SettleWindow < 0 {
		o.SettleWindow = 0
	} else if o.SettleWindow == 0 {
		o.SettleWindow = DefaultSettleWindow
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = DefaultCleanupTimeout
	}
	if o.ReturnToOrigin == nil {
		o.ReturnToOrigin = Bool(true)
	}
	return o
}

// Bool returns a pointer to b.
func Bool(b bool) *bool {
	return &b
}
