package pagecheck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sidebarHTML = `<html><body>
<nav id="side_navigation">
  <a href="https://turkish.jp/tour/">トルコツアー一覧</a>
  <a href="/history/" target="_blank"> チェックした
     ツアー </a>
  <a href="#ranking">ランキング</a>
  <a>no href</a>
  <a href="javascript:void(0)">script</a>
  <a href="mailto:info@turkish.jp">mail</a>
</nav>
<footer><a href="/company/">会社概要</a></footer>
</body></html>`

func TestInventoryLinks(t *testing.T) {
	links, err := InventoryLinks(sidebarHTML, "https://turkish.jp/", "#side_navigation")
	require.NoError(t, err)
	require.Len(t, links, 6)

	assert.Equal(t, "https://turkish.jp/tour/", links[0].Resolved)
	assert.Equal(t, "https://turkish.jp/history/", links[1].Resolved)
	assert.Equal(t, "チェックした ツアー", links[1].Text)
	assert.Equal(t, "_blank", links[1].Target)
	assert.Equal(t, "https://turkish.jp/#ranking", links[2].Resolved)

	broken := Broken(links)
	require.Len(t, broken, 3)
	assert.Equal(t, "missing href", broken[0].Problem)
	assert.Equal(t, "script href", broken[1].Problem)
	assert.Equal(t, "not an http(s) destination", broken[2].Problem)
}

func TestInventoryLinks_DefaultsToBody(t *testing.T) {
	links, err := InventoryLinks(sidebarHTML, "https://turkish.jp/", "")
	require.NoError(t, err)
	assert.Len(t, links, 7)
}
