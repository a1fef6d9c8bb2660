package pagecheck

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/kuitang/lp-linkcheck/internal/urlutil"
)

// Link is one anchor found in a page snapshot.
type Link struct {
	Text     string
	Href     string
	Resolved string
	Target   string
	// Problem is empty for a usable link.
	Problem string
}

// InventoryLinks lists every <a> under selector in html. Each link's href is
// resolved against base; links without a usable http(s) destination carry a
// Problem. In-page anchors ("#id") are resolved too and count as usable.
func InventoryLinks(html, base, selector string) ([]Link, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if strings.TrimSpace(selector) == "" {
		selector = "body"
	}

	var links []Link
	doc.Find(selector).Find("a").Each(func(_ int, s *goquery.Selection) {
		link := Link{
			Text:   strings.Join(strings.Fields(s.Text()), " "),
			Target: s.AttrOr("target", ""),
		}
		href, ok := s.Attr("href")
		link.Href = href
		switch {
		case !ok || strings.TrimSpace(href) == "":
			link.Problem = "missing href"
		case strings.HasPrefix(strings.ToLower(strings.TrimSpace(href)), "javascript:"):
			link.Problem = "script href"
		default:
			resolved, err := urlutil.Resolve(base, href)
			switch {
			case err != nil:
				link.Problem = err.Error()
			case !urlutil.IsHTTP(resolved):
				link.Problem = "not an http(s) destination"
			default:
				link.Resolved = resolved
			}
		}
		links = append(links, link)
	})
	return links, nil
}

// Broken returns the links that carry a Problem.
func Broken(links []Link) []Link {
	var out []Link
	for _, l := range links {
		if l.Problem != "" {
			out = append(out, l)
		}
	}
	return out
}
