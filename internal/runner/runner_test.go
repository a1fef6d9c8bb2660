package runner

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/catalog"
	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/navverify"
	"github.com/kuitang/lp-linkcheck/internal/pagecheck"
	"github.com/kuitang/lp-linkcheck/internal/ratelimit"
	"github.com/kuitang/lp-linkcheck/internal/report"
)

type failingOpener struct {
	calls int
}

func (o *failingOpener) NewSession(*ratelimit.Pacer) (*browser.Session, error) {
	o.calls++
	return nil, errs.Wrap(errs.Unavailable, "new page", errors.New("browser has gone away"))
}

func testSuites() []catalog.Suite {
	return []catalog.Suite{
		{ID: 1, Name: "one", StartURL: "https://example.com/", Checks: []catalog.Check{{Name: "a", Kind: catalog.KindImagesLoaded}}},
		{ID: 2, Name: "two", StartURL: "https://example.com/b", Checks: []catalog.Check{{Name: "b", Kind: catalog.KindImagesLoaded}}},
	}
}

func TestRun_OpenFailureIsRecordedPerSuite(t *testing.T) {
	opener := &failingOpener{}
	r := New(opener, nil, Options{RunID: "run-test"})

	run := r.Run(context.Background(), testSuites())
	require.Len(t, run.Suites, 2)
	assert.Equal(t, 2, opener.calls, "every suite gets its own tab")
	assert.Equal(t, "run-test", run.ID)
	for _, s := range run.Suites {
		assert.Contains(t, s.Error, "open tab")
		assert.Contains(t, s.Error, "browser has gone away", "the cause is kept")
		assert.False(t, s.Passed())
	}
	assert.False(t, run.Passed())
	assert.True(t, run.HasErrors())
	assert.False(t, run.FinishedAt.Before(run.StartedAt))
}

func TestRun_CancelledContextSkipsSuites(t *testing.T) {
	opener := &failingOpener{}
	r := New(opener, nil, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	run := r.Run(ctx, testSuites())

	assert.Zero(t, opener.calls)
	require.Len(t, run.Suites, 2)
	assert.True(t, strings.HasPrefix(run.Suites[0].Error, "not run"))
	assert.Len(t, run.ID, 36, "generated run ids are uuids")
}

func TestNew_AppliesDefaults(t *testing.T) {
	r := New(&failingOpener{}, nil, Options{})
	assert.Equal(t, navverify.DefaultTimeout, r.opts.Timeout)
	assert.Equal(t, navverify.DefaultVisibleTimeout, r.opts.VisibleTimeout)
}

func TestSingle(t *testing.T) {
	ch := catalog.Check{Name: "ranking", Kind: catalog.KindAnchorScroll}

	res, err := single(ch, []string{"top=12"}, nil)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, report.StatusPassed, res[0].Status)
	assert.Equal(t, []string{"top=12"}, res[0].Details)

	res, err = single(ch, nil, fail(errs.ScrollMismatch, "section #ranking is not near the top").
		want("top in [0, 260]", "top=900").with([]string{"d"}))
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, report.StatusFailed, res[0].Status)
	assert.Equal(t, string(errs.ScrollMismatch), res[0].Reason)
	assert.Equal(t, "top in [0, 260]", res[0].Expected)
	assert.Equal(t, "top=900", res[0].Actual)
	assert.Equal(t, []string{"d"}, res[0].Details)

	fatal := errors.New("target closed")
	res, err = single(ch, nil, fatal)
	assert.ErrorIs(t, err, fatal)
	assert.Nil(t, res)
}

func TestFromVerify(t *testing.T) {
	pass := navverify.Result{
		Status:   navverify.Pass,
		Policy:   "origin_path",
		Expected: "https://turkish.jp/tour/",
		Actual:   "https://turkish.jp/tour/",
		Outcome:  navverify.Outcome{Kind: navverify.NewTab, URL: "https://turkish.jp/tour/?utm=x"},
		Warning:  errs.AmbiguousOutcome,
		Cleanup: []navverify.Cleanup{
			{Action: navverify.CleanupCloseTab, Target: "https://turkish.jp/tour/"},
			{Action: navverify.CleanupNavigate, Target: "https://turkish.jp/", Err: errors.New("timeout")},
		},
		Duration: time.Second,
	}
	got := fromVerify("card", pass)
	assert.Equal(t, report.StatusPassed, got.Status)
	assert.Equal(t, "new_tab", got.Outcome)
	assert.Equal(t, string(errs.AmbiguousOutcome), got.Warning)
	assert.Equal(t, time.Second, got.Duration)
	require.Len(t, got.Details, 2)
	assert.Contains(t, got.Details[1], "cleanup navigate https://turkish.jp/ failed: timeout")

	failed := navverify.Result{
		Status:  navverify.Fail,
		Reason:  errs.NoNavigationDetected,
		Message: "clicked but did not navigate",
		Outcome: navverify.Outcome{Kind: navverify.NoNavigation},
	}
	got = fromVerify("card", failed)
	assert.Equal(t, report.StatusFailed, got.Status)
	assert.Equal(t, string(errs.NoNavigationDetected), got.Reason)
	assert.Equal(t, "no_navigation", got.Outcome)
	assert.Empty(t, got.Details)
}

func TestFailedResult_IsNavigation(t *testing.T) {
	got := failedResult("x", fail(errs.AssertionFailed, "href does not contain %q", "tourpoint").want("*tourpoint*", "/aboutus/"))
	assert.Equal(t, "navigation", got.Kind)
	assert.Equal(t, `href does not contain "tourpoint"`, got.Message)
	assert.Equal(t, "/aboutus/", got.Actual)
}

func testScreenshotName_Unique(t *rapid.T) {
	a := [3]int{rapid.IntRange(0, 99).Draw(t, "s1"), rapid.IntRange(0, 98).Draw(t, "c1"), rapid.IntRange(0, 98).Draw(t, "x1")}
	b := [3]int{rapid.IntRange(0, 99).Draw(t, "s2"), rapid.IntRange(0, 98).Draw(t, "c2"), rapid.IntRange(0, 98).Draw(t, "x2")}
	na, nb := screenshotName(a[0], a[1], a[2]), screenshotName(b[0], b[1], b[2])
	if (a == b) != (na == nb) {
		t.Fatalf("name collision: %v -> %q, %v -> %q", a, na, b, nb)
	}
	if !strings.HasSuffix(na, ".png") {
		t.Fatalf("not a png name: %q", na)
	}
}

func TestScreenshotName_Unique(t *testing.T) {
	rapid.Check(t, testScreenshotName_Unique)
}

func TestEachName(t *testing.T) {
	assert.Equal(t, "セクション1 [2/5]", eachName("セクション1", 1, 5))
}

func TestFormatSkipped(t *testing.T) {
	assert.Equal(t, "none", formatSkipped(nil))
	assert.Equal(t, "tracking=2 object_fit=1", formatSkipped(map[pagecheck.SkipReason]int{
		pagecheck.SkipObjectFit: 1,
		pagecheck.SkipTracking:  2,
	}))
}

func TestPoll(t *testing.T) {
	calls := 0
	ok, err := poll(context.Background(), time.Second, func() (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 3, calls)

	ok, err = poll(context.Background(), 50*time.Millisecond, func() (bool, error) { return false, nil })
	require.NoError(t, err)
	assert.False(t, ok)

	boom := errors.New("boom")
	_, err = poll(context.Background(), time.Second, func() (bool, error) { return false, boom })
	assert.ErrorIs(t, err, boom)
}

func TestPageCheck_UnknownKindIsFatal(t *testing.T) {
	r := New(&failingOpener{}, nil, Options{})
	_, err := r.pageCheck("teleport")(context.Background(), nil, catalog.Suite{}, catalog.Check{})
	assert.ErrorContains(t, err, "unsupported check kind")
}
