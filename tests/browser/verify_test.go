package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/lp-linkcheck/internal/errs"
	"github.com/kuitang/lp-linkcheck/internal/navverify"
	"github.com/kuitang/lp-linkcheck/internal/urlutil"
)

func quickVerifyOptions() navverify.Options {
	return navverify.Options{
		Timeout:        3 * time.Second,
		VisibleTimeout: 2 * time.Second,
		SettleWindow:   300 * time.Millisecond,
		CleanupTimeout: browserMaxTimeout,
	}
}

func TestVerify_SameTabPassAndRestore(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	sess := env.OpenSession(t, "/")

	res, err := navverify.NewVerifier().Verify(context.Background(), sess, sess.Link("#same", 0, ""), urlutil.OriginPath(), quickVerifyOptions())
	require.NoError(t, err)
	assert.True(t, res.Passed(), res.String())
	assert.Equal(t, navverify.SameTab, res.Outcome.Kind)
	assert.Equal(t, env.BaseURL+"/tour/", res.ActualURL)

	require.NotEmpty(t, res.Cleanup)
	assert.Equal(t, navverify.CleanupGoBack, res.Cleanup[len(res.Cleanup)-1].Action)
	assert.Equal(t, env.BaseURL+"/", sess.URL())
	WaitForSelector(t, sess.Page(), "#links a#same")
}

func TestVerify_NewTabPassClosesTab(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	sess := env.OpenSession(t, "/")

	res, err := navverify.NewVerifier().Verify(context.Background(), sess, sess.Link("#blank", 0, ""), urlutil.OriginPath(), quickVerifyOptions())
	require.NoError(t, err)
	assert.True(t, res.Passed(), res.String())
	assert.Equal(t, navverify.NewTab, res.Outcome.Kind)

	assert.Len(t, env.Context.Pages(), 1, "the opened tab is closed")
	assert.Equal(t, env.BaseURL+"/", sess.URL())
}

func TestVerify_NewTabRedirectChainSettles(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	sess := env.OpenSession(t, "/")

	res, err := navverify.NewVerifier().Verify(context.Background(), sess, sess.Link("#redirect", 0, ""), urlutil.OriginPath(), quickVerifyOptions())
	require.NoError(t, err)
	assert.True(t, res.Passed(), res.String())
	assert.Contains(t, res.ActualURL, "utm_source=1")

	res, err = navverify.NewVerifier().Verify(context.Background(), sess, sess.Link("#redirect", 0, ""), urlutil.Exact(), quickVerifyOptions())
	require.NoError(t, err)
	assert.False(t, res.Passed())
	assert.Equal(t, errs.ComparisonMismatch, res.Reason)
}

func TestVerify_HijackedLinkFailsAndRestores(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	sess := env.OpenSession(t, "/")

	opts := quickVerifyOptions()
	opts.RestoreURL = env.BaseURL + "/"
	res, err := navverify.NewVerifier().Verify(context.Background(), sess, sess.Link("#hijack", 0, ""), urlutil.OriginPath(), opts)
	require.NoError(t, err)
	assert.False(t, res.Passed())
	assert.Equal(t, errs.ComparisonMismatch, res.Reason)
	assert.Equal(t, navverify.SameTab, res.Outcome.Kind)
	assert.Equal(t, env.BaseURL+"/wrong/", res.ActualURL)
	assert.Equal(t, env.BaseURL+"/", sess.URL())
}

func TestVerify_DeadLinkAndMissingHref(t *testing.T) {
	env := SetupBrowserTestEnv(t)
	sess := env.OpenSession(t, "/")
	v := navverify.NewVerifier()

	res, err := v.Verify(context.Background(), sess, sess.Link("#dead", 0, ""), urlutil.OriginPath(), quickVerifyOptions())
	require.NoError(t, err)
	assert.Equal(t, errs.NoNavigationDetected, res.Reason)
	assert.Equal(t, navverify.NoNavigation, res.Outcome.Kind)

	res, err = v.Verify(context.Background(), sess, sess.Link("#nohref", 0, ""), urlutil.OriginPath(), quickVerifyOptions())
	require.NoError(t, err)
	assert.Equal(t, errs.MissingReference, res.Reason)

	res, err = v.Verify(context.Background(), sess, sess.Link("#does-not-exist", 0, ""), urlutil.OriginPath(), quickVerifyOptions())
	require.NoError(t, err)
	assert.Equal(t, errs.ElementNotVisible, res.Reason)
}
