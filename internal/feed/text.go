package feed

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText strips markup from a feed fragment and collapses whitespace.
// maxChars > 0 truncates the result on a rune boundary.
func HTMLToText(fragment string, maxChars int) string {
	fragment = strings.TrimSpace(fragment)
	if fragment == "" {
		return ""
	}
	text := fragment
	if strings.ContainsAny(fragment, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
		if err == nil {
			doc.Find("script, style, noscript, iframe").Remove()
			text = doc.Text()
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if maxChars > 0 {
		r := []rune(text)
		if len(r) > maxChars {
			text = strings.TrimSpace(string(r[:maxChars])) + "…"
		}
	}
	return text
}
