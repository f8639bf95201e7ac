// CLAUDE:SUMMARY Table-cell and text extraction helpers over goquery and x/net/html used by the AIPO search and detail parsers.
// Package extract pulls plain text out of HTML fragments returned by the
// AIPO search service: table cells of a result list, whitespace-normalised
// node text, and attribute lookups.
package extract

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Cells returns the normalised text of every <td> element in document order.
// A fragment without a table yields an empty slice, not an error.
func Cells(r io.Reader) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("extract: parse html: %w", err)
	}
	sel := doc.Find("td")
	cells := make([]string, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		var text string
		if len(s.Nodes) > 0 {
			text = Text(s.Nodes[0])
		}
		cells = append(cells, text)
	})
	return cells, nil
}

// Text collects the text content of n and its descendants, collapsing runs
// of whitespace to a single space and trimming the ends.
func Text(n *html.Node) string {
	var b strings.Builder
	collectText(n, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style":
			return
		case "br":
			b.WriteByte(' ')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
}

// Attr returns the value of attribute key on n, or "".
func Attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// HasAttr reports whether n carries attribute key, even with an empty value.
func HasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}
