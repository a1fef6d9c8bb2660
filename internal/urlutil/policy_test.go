package urlutil

import (
	"fmt"
	"net/url"
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func mustKey(t testing.TB, p Policy, raw string) string {
	t.Helper()
	key, err := p.Key(raw)
	if err != nil {
		t.Fatalf("%s.Key(%s) error: %v", p, raw, err)
	}
	return key
}

func TestOriginPath_IgnoresQueryAndFragment(t *testing.T) {
	t.Parallel()
	p := OriginPath()
	a := mustKey(t, p, "https://x/y?a=1#frag")
	b := mustKey(t, p, "https://x/y")
	if a != b {
		t.Fatalf("OriginPath keys differ: %s vs %s", a, b)
	}
	if a != "https://x/y" {
		t.Fatalf("unexpected OriginPath key: %s", a)
	}
}

func TestOriginPath_EmptyPathIsRoot(t *testing.T) {
	t.Parallel()
	if got := mustKey(t, OriginPath(), "https://turkish.jp"); got != "https://turkish.jp/" {
		t.Fatalf("got %s", got)
	}
}

func TestSelectedParams_OrderAndNoiseIndependent(t *testing.T) {
	t.Parallel()
	p := OriginPathSelectedParams("ranking-tab")
	a := mustKey(t, p, "https://x/y?ranking-tab=narita&utm_src=abc")
	b := mustKey(t, p, "https://x/y?utm_src=zzz&ranking-tab=narita")
	if a != b {
		t.Fatalf("selected-param keys differ: %s vs %s", a, b)
	}
	if a != "https://x/y?ranking-tab=narita" {
		t.Fatalf("unexpected key: %s", a)
	}
}

func TestSelectedParams_UsesGivenNameOrder(t *testing.T) {
	t.Parallel()
	p := OriginPathSelectedParams("b", "a", "missing")
	got := mustKey(t, p, "https://x/y?a=1&z=9&b=2")
	if got != "https://x/y?b=2&a=1" {
		t.Fatalf("got %s", got)
	}
	if got := mustKey(t, p, "https://x/y?z=9"); got != "https://x/y" {
		t.Fatalf("no selected params present should drop the query entirely, got %s", got)
	}
}

func TestOriginPathQuery_KeepsQueryVerbatim(t *testing.T) {
	t.Parallel()
	p := OriginPathQuery()
	if got := mustKey(t, p, "https://x/y?b=2&a=1#f"); got != "https://x/y?b=2&a=1" {
		t.Fatalf("got %s", got)
	}
	if mustKey(t, p, "https://x/y?a=1&b=2") == mustKey(t, p, "https://x/y?b=2&a=1") {
		t.Fatal("OriginPathQuery must be sensitive to parameter order")
	}
	if got := mustKey(t, p, "https://x/y"); got != "https://x/y" {
		t.Fatalf("empty query should not add '?', got %s", got)
	}
}

func TestExact_NormalizesCaseAndTrailingSlash(t *testing.T) {
	t.Parallel()
	p := Exact()
	if mustKey(t, p, "HTTPS://X.test/tour/?a=1#s") != mustKey(t, p, "https://x.test/tour?a=1#s") {
		t.Fatal("Exact should normalize scheme/host case and trailing slash")
	}
	if mustKey(t, p, "https://x.test/tour?a=1") == mustKey(t, p, "https://x.test/tour?a=2") {
		t.Fatal("Exact must distinguish query values")
	}
	if mustKey(t, p, "https://x.test/tour#a") == mustKey(t, p, "https://x.test/tour#b") {
		t.Fatal("Exact must distinguish fragments")
	}
	if got := mustKey(t, p, "https://x.test/"); got != "https://x.test/" {
		t.Fatalf("root path must survive trailing-slash trimming, got %s", got)
	}
}

func TestExact_SharesOriginNormalization(t *testing.T) {
	t.Parallel()
	p := Exact()
	if got := mustKey(t, p, "https://X.test:443/tour/?a=1"); got != "https://x.test/tour?a=1" {
		t.Fatalf("default port and host case should normalize, got %s", got)
	}
	if mustKey(t, p, "https://x.test:8443/tour") == mustKey(t, p, "https://x.test/tour") {
		t.Fatal("Exact must keep a non-default port")
	}
}

func TestKey_RejectsRelativeURL(t *testing.T) {
	t.Parallel()
	for _, p := range []Policy{OriginPath(), OriginPathQuery(), Exact(), OriginPathSelectedParams("a")} {
		if _, err := p.Key("/tour/"); err == nil {
			t.Fatalf("%s.Key should reject a relative URL", p)
		}
		if got := p.KeyOrRaw("/tour/"); got != "/tour/" {
			t.Fatalf("%s.KeyOrRaw should fall back to raw, got %s", p, got)
		}
	}
}

func TestParsePolicy_RoundTripsString(t *testing.T) {
	t.Parallel()
	for _, p := range []Policy{OriginPath(), OriginPathQuery(), Exact(), OriginPathSelectedParams("ranking-tab", "dep")} {
		parsed, err := ParsePolicy(p.String())
		if err != nil {
			t.Fatalf("ParsePolicy(%s) error: %v", p, err)
		}
		if parsed.String() != p.String() {
			t.Fatalf("ParsePolicy(%s) = %s", p, parsed)
		}
	}
	if p, err := ParsePolicy(""); err != nil || p.String() != "origin_path" {
		t.Fatalf("empty policy should default to origin_path, got %s, %v", p, err)
	}
	for _, bad := range []string{"fuzzy", "params:", "params: , ", "ORIGIN"} {
		if _, err := ParsePolicy(bad); err == nil {
			t.Fatalf("ParsePolicy(%q) should fail", bad)
		}
	}
}

func TestZeroPolicyIsOriginPath(t *testing.T) {
	t.Parallel()
	var p Policy
	if p.String() != "origin_path" {
		t.Fatalf("zero policy = %s", p)
	}
}

// For any declared reference and any tracking noise appended to the landing URL,
// the key of the resolved reference equals the key of the landing URL.
func testPolicies_IgnoreUnnamedNoise(t *rapid.T) {
	host := rapid.StringMatching(`[a-z]{3,10}\.(jp|co\.jp|test)`).Draw(t, "host")
	path := "/" + rapid.StringMatching(`[a-z0-9_-]{1,12}(/[a-z0-9_-]{1,12}){0,2}/?`).Draw(t, "path")
	tab := rapid.StringMatching(`[a-z]{2,8}`).Draw(t, "tab")
	ref := fmt.Sprintf("%s?ranking-tab=%s", path, tab)

	noise := url.Values{}
	for i, n := 0, rapid.IntRange(0, 4).Draw(t, "noiseCount"); i < n; i++ {
		noise.Add(
			rapid.SampledFrom([]string{"utm_source", "utm_medium", "gclid", "_ga", "fbclid"}).Draw(t, "noiseName"),
			rapid.StringMatching(`[A-Za-z0-9]{1,10}`).Draw(t, "noiseValue"),
		)
	}
	noiseFirst := rapid.Bool().Draw(t, "noiseFirst")
	query := "ranking-tab=" + tab
	if encoded := noise.Encode(); encoded != "" {
		if noiseFirst {
			query = encoded + "&" + query
		} else {
			query = query + "&" + encoded
		}
	}
	actual := fmt.Sprintf("https://%s%s?%s#%s", host, path, query, rapid.StringMatching(`[a-z]{0,6}`).Draw(t, "frag"))

	expected, err := Resolve("https://"+host+"/a/", ref)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	for _, p := range []Policy{OriginPath(), OriginPathSelectedParams("ranking-tab")} {
		want, err := p.Key(expected)
		if err != nil {
			t.Fatalf("%s.Key(expected): %v", p, err)
		}
		got, err := p.Key(actual)
		if err != nil {
			t.Fatalf("%s.Key(actual): %v", p, err)
		}
		if got != want {
			t.Fatalf("%s keys differ:\n expected=%s -> %s\n actual=%s -> %s", p, expected, want, actual, got)
		}
	}
}

func TestPolicies_IgnoreUnnamedNoise(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testPolicies_IgnoreUnnamedNoise)
}

func testKeys_AreIdempotent(t *rapid.T) {
	raw := fmt.Sprintf(
		"%s://%s/%s?%s#%s",
		rapid.SampledFrom([]string{"http", "https", "HTTPS"}).Draw(t, "scheme"),
		rapid.StringMatching(`[A-Za-z]{3,10}\.jp`).Draw(t, "host"),
		rapid.StringMatching(`[a-z0-9/_-]{0,20}`).Draw(t, "path"),
		rapid.StringMatching(`([a-z]{1,4}=[a-z0-9]{0,4}&?){0,3}`).Draw(t, "query"),
		rapid.StringMatching(`[a-z]{0,6}`).Draw(t, "frag"),
	)
	p := rapid.SampledFrom([]Policy{OriginPath(), OriginPathQuery(), Exact(), OriginPathSelectedParams("a", "b")}).Draw(t, "policy")

	first, err := p.Key(raw)
	if err != nil {
		t.Fatalf("%s.Key(%s): %v", p, raw, err)
	}
	second, err := p.Key(first)
	if err != nil {
		t.Fatalf("%s.Key(%s): %v", p, first, err)
	}
	if first != second {
		t.Fatalf("%s key not idempotent: %s -> %s", p, first, second)
	}
	if !strings.HasPrefix(first, strings.ToLower(strings.SplitN(raw, ":", 2)[0])+"://") {
		t.Fatalf("key should start with lower-case scheme: %s", first)
	}
}

func TestKeys_AreIdempotent(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testKeys_AreIdempotent)
}
