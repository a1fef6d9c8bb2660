// Package browser holds the Playwright integration tests. They run the
// verifier and the runner against FakeSite, a small travel landing page served
// by httptest, and skip when Playwright is not installed.
package browser

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	lpbrowser "github.com/kuitang/lp-linkcheck/internal/browser"
	"github.com/kuitang/lp-linkcheck/internal/ratelimit"
)

const (
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second
)

var (
	browserMu     sync.Mutex
	sharedPW      *playwright.Playwright
	sharedBrowser playwright.Browser
)

// BrowserTestEnv is a fake site plus a browser context to drive it.
type BrowserTestEnv struct {
	Server  *httptest.Server
	BaseURL string
	Context playwright.BrowserContext
}

// SetupBrowserTestEnv starts the fake site and opens a fresh browser context.
// The test is skipped when Playwright or Chromium is unavailable.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	server := httptest.NewServer(FakeSite())
	t.Cleanup(server.Close)

	b := InitBrowser(t)
	bctx, err := b.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: 1280, Height: 720},
	})
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	bctx.SetDefaultTimeout(browserMaxTimeoutMS)
	bctx.SetDefaultNavigationTimeout(browserMaxTimeoutMS)
	t.Cleanup(func() { _ = bctx.Close() })

	return &BrowserTestEnv{Server: server, BaseURL: server.URL, Context: bctx}
}

// InitBrowser starts the shared Chromium instance once per test binary.
func InitBrowser(t *testing.T) playwright.Browser {
	t.Helper()

	browserMu.Lock()
	defer browserMu.Unlock()

	if sharedBrowser != nil {
		return sharedBrowser
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	sharedPW = pw
	sharedBrowser = b
	return b
}

// NewSession opens a tab in the env's context. It implements
// runner.SessionOpener.
func (env *BrowserTestEnv) NewSession(pacer *ratelimit.Pacer) (*lpbrowser.Session, error) {
	page, err := env.Context.NewPage()
	if err != nil {
		return nil, err
	}
	return lpbrowser.NewSession(page, pacer), nil
}

// OpenSession opens a tab and loads path on the fake site.
func (env *BrowserTestEnv) OpenSession(t *testing.T, path string) *lpbrowser.Session {
	t.Helper()

	sess, err := env.NewSession(nil)
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	Navigate(t, sess.Page(), env.BaseURL, path)
	return sess
}

// Navigate loads baseURL+path and waits for DOMContentLoaded.
func Navigate(t *testing.T, page playwright.Page, baseURL, path string) {
	t.Helper()

	if _, err := page.Goto(baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(browserMaxTimeoutMS),
	}); err != nil {
		t.Fatalf("Failed to navigate to %s: %v", path, err)
	}
}

// WaitForSelector waits for selector to be visible, logging the page on failure.
func WaitForSelector(t *testing.T, page playwright.Page, selector string) playwright.Locator {
	t.Helper()

	first := page.Locator(selector).First()
	err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		title, _ := page.Title()
		content, _ := page.Content()
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		t.Logf("Current URL: %s", page.URL())
		t.Logf("Current title: %s", title)
		t.Logf("Content preview: %s", content)
		t.Fatalf("Failed to wait for selector %s: %v", selector, err)
	}
	return first
}

// FakeSite serves a landing page with the link patterns the checker audits:
// same-tab and new-tab links, a redirecting link, links that go nowhere or
// somewhere else, a sidebar of in-page anchors, images, a quick-search
// overlay and a departure select.
func FakeSite() http.Handler {
	wide := pngOf(200, 100)
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		writeHTML(w, homePage)
	})
	for _, p := range []string{"/tour/", "/b-special/", "/favorite/", "/wrong/", "/history/"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			// Tracking hops keep the path and swap the query, like ad redirects.
			if r.URL.Query().Has("from") {
				http.Redirect(w, r, p+"?hop=1", http.StatusFound)
				return
			}
			if r.URL.Query().Has("hop") {
				http.Redirect(w, r, p+"?utm_source="+r.URL.Query().Get("hop"), http.StatusFound)
				return
			}
			writeHTML(w, fmt.Sprintf(`<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1></body></html>`, p, p))
		})
	}
	mux.HandleFunc("/images/ok", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, imagesPage(false))
	})
	mux.HandleFunc("/images/bad", func(w http.ResponseWriter, r *http.Request) {
		writeHTML(w, imagesPage(true))
	})
	mux.HandleFunc("/img/wide.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(wide)
	})
	return mux
}

func writeHTML(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func pngOf(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 30, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	_ = png.Encode(&buf, img)
	return buf.Bytes()
}

func imagesPage(broken bool) string {
	extra := ""
	if broken {
		extra = `<img id="stretched" src="/img/wide.png?v=stretched" style="width:200px;height:200px">
<img id="missing" src="/img/missing.png" style="width:100px;height:100px">`
	}
	return `<!DOCTYPE html><html><head><title>images</title></head><body>
<img id="wide" src="/img/wide.png" style="width:200px;height:100px">
<img id="cover" src="/img/wide.png" style="width:100px;height:100px;object-fit:cover">
<img id="lazy" data-src="/img/wide.png" style="width:100px;height:50px">
<img src="https://bat.bing.com/action/0?ti=1" width="1" height="1">
` + extra + `</body></html>`
}

const homePage = `<!DOCTYPE html>
<html lang="ja">
<head>
<meta charset="UTF-8">
<title>トルコ旅行</title>
<style>
  body { margin: 0; font-family: sans-serif; }
  header { height: 60px; }
  #side_navigation { position: fixed; right: 0; top: 80px; width: 200px; display: none; }
  #side_navigation.shown { display: block; }
  section { height: 1400px; border-top: 1px solid #ccc; }
  #spc__overlay { display: none; position: fixed; inset: 0; background: rgba(0,0,0,.4); }
  #spc__overlay.is-visible { display: block; }
</style>
</head>
<body>
<header id="top">
  <select id="departure">
    <option>羽田 発</option>
    <option>成田 発</option>
    <option>関空 発</option>
  </select>
  <div id="spc">羽田発のツアーを検索</div>
</header>

<nav id="links">
  <a id="same" href="/tour/">ツアー一覧</a>
  <a id="blank" href="/b-special/" target="_blank">ビジネスクラス</a>
  <a id="redirect" href="/tour/?from=sidebar" target="_blank">ツアー（リダイレクト）</a>
  <a id="hijack" href="/favorite/" onclick="event.preventDefault(); location.href='/wrong/';">お気に入り</a>
  <a id="dead" href="/history/" onclick="event.preventDefault();">チェックしたツアー</a>
  <a id="nohref">リンクなし</a>
</nav>

<aside id="side_navigation">
  <a href="#ranking">人気ランキング</a>
  <a href="#point">こだわり</a>
  <a href="#top">トップへ</a>
  <a href="/tour/">ツアー一覧</a>
  <a href="javascript:void(0)" onclick="document.getElementById('spc__overlay').classList.add('is-visible')">かんたん検索</a>
</aside>

<div id="spc__overlay" onclick="this.classList.remove('is-visible')"></div>

<section id="intro">intro</section>
<section id="ranking">ranking</section>
<section id="point">point</section>

<script>
  window.addEventListener('scroll', () => {
    document.getElementById('side_navigation').classList.toggle('shown', window.scrollY > 400);
  });
  document.getElementById('departure').addEventListener('change', (e) => {
    const code = e.target.value.replace(' 発', '').replace('関空', '関西');
    document.getElementById('spc').textContent = code + '発のツアーを検索';
  });
</script>
</body>
</html>`
