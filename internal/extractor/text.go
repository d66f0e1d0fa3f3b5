package extractor

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	reWhitespace  = regexp.MustCompile(`\s+`)
	reDisplayNone = regexp.MustCompile(`(?i)display\s*:\s*none|visibility\s*:\s*hidden`)
)

// invisible holds elements whose content never renders as text.
var invisible = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// VisibleText returns the whitespace-normalized text a reader would see in
// the selection. Script-like elements and elements hidden with the hidden
// attribute, aria-hidden or an inline display:none style are left out.
func VisibleText(s *goquery.Selection) string {
	var b strings.Builder
	for _, n := range s.Nodes {
		collectText(n, &b)
	}
	return normalizeText(b.String())
}

func collectText(n *html.Node, b *strings.Builder) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if hidden(n) {
			return
		}
		if n.Data == "br" {
			b.WriteByte(' ')
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, b)
	}
	if n.Type == html.ElementNode && isBlock(n.Data) {
		b.WriteByte(' ')
	}
}

func hidden(n *html.Node) bool {
	if invisible[n.Data] {
		return true
	}
	for _, a := range n.Attr {
		switch a.Key {
		case "hidden":
			return true
		case "aria-hidden":
			if strings.EqualFold(a.Val, "true") {
				return true
			}
		case "style":
			if reDisplayNone.MatchString(a.Val) {
				return true
			}
		}
	}
	return false
}

func isBlock(tag string) bool {
	switch tag {
	case "div", "p", "li", "td", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "section", "article", "header", "footer":
		return true
	}
	return false
}

func normalizeText(text string) string {
	text = reWhitespace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// textLen counts characters, not bytes: Cyrillic headlines are two bytes
// per letter.
func textLen(s string) int {
	return utf8.RuneCountInString(s)
}
