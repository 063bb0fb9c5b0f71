package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// blockElements start a new line in extracted text.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "fieldset": true, "figcaption": true,
	"figure": true, "footer": true, "form": true, "h1": true, "h2": true, "h3": true,
	"h4": true, "h5": true, "h6": true, "header": true, "hr": true, "li": true,
	"main": true, "nav": true, "ol": true, "p": true, "pre": true, "section": true,
	"table": true, "tr": true, "ul": true, "title": true,
}

// cellElements are separated by a space rather than a line break.
var cellElements = map[string]bool{"td": true, "th": true}

func plainText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		walkText(&b, n)
	}
	return normalizeWhitespace(b.String())
}

func walkText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.CommentNode, html.DoctypeNode:
		return
	}
	isBlock := n.Type == html.ElementNode && blockElements[n.Data]
	isCell := n.Type == html.ElementNode && cellElements[n.Data]
	if isBlock {
		b.WriteByte('\n')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkText(b, c)
	}
	switch {
	case isBlock:
		b.WriteByte('\n')
	case isCell:
		b.WriteByte(' ')
	}
}

// normalizeWhitespace collapses runs of spaces within lines and drops blank lines.
func normalizeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if collapsed := collapseSpaces(line); collapsed != "" {
			out = append(out, collapsed)
		}
	}
	return strings.Join(out, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
