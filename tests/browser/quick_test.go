package browser

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/lp-linkcheck/internal/pagecheck"
)

// These tests exercise the fake site over plain HTTP and need no browser.

func fetch(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestQuick_SidebarInventory(t *testing.T) {
	server := httptest.NewServer(FakeSite())
	defer server.Close()

	_, html := fetch(t, server.URL+"/")
	links, err := pagecheck.InventoryLinks(html, server.URL+"/", "#side_navigation")
	require.NoError(t, err)
	require.Len(t, links, 5)
	assert.Equal(t, server.URL+"/#ranking", links[0].Resolved)

	broken := pagecheck.Broken(links)
	require.Len(t, broken, 1)
	assert.Equal(t, "かんたん検索", broken[0].Text)
}

func TestQuick_TrackingRedirectKeepsPath(t *testing.T) {
	server := httptest.NewServer(FakeSite())
	defer server.Close()

	resp, _ := fetch(t, server.URL+"/tour/?from=sidebar")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/tour/", resp.Request.URL.Path)
	assert.Equal(t, "utm_source=1", resp.Request.URL.RawQuery)
}

func TestQuick_ImageServed(t *testing.T) {
	server := httptest.NewServer(FakeSite())
	defer server.Close()

	resp, body := fetch(t, server.URL+"/img/wide.png")
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, body)

	resp, _ = fetch(t, server.URL+"/nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
