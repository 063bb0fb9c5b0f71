// Package parser turns fetched HTML into crawler.PageData: title, meta
// description, readable text and the canonical set of outgoing links.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

// TextFormat selects how page text is rendered for tokenization.
type TextFormat string

// Supported text formats.
const (
	TextPlain    TextFormat = "plain"
	TextMarkdown TextFormat = "markdown"
)

// ParseTextFormat validates a configured text format.
func ParseTextFormat(s string) (TextFormat, error) {
	switch TextFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", TextPlain:
		return TextPlain, nil
	case TextMarkdown:
		return TextMarkdown, nil
	default:
		return "", fmt.Errorf("unknown text format %q", s)
	}
}

// nonContentSelectors never contribute readable text.
var nonContentSelectors = []string{
	"script", "style", "noscript", "template", "svg", "canvas", "iframe", "object",
}

// PageParser extracts PageData from one HTML document. Parsing is total: any
// input, however malformed, produces a parser.
type PageParser struct {
	doc     *goquery.Document
	pageURL string
	format  TextFormat
}

// New parses html fetched from pageURL.
func New(html []byte, pageURL string, format TextFormat) *PageParser {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		// Only reader failures surface here; fall back to an empty document.
		doc, _ = goquery.NewDocumentFromReader(strings.NewReader(""))
	}
	if format == "" {
		format = TextPlain
	}
	return &PageParser{doc: doc, pageURL: pageURL, format: format}
}

// Title returns the document title with whitespace collapsed, or nil when empty.
func (p *PageParser) Title() *string {
	return nonEmpty(collapseSpaces(p.doc.Find("title").First().Text()))
}

// MetaDescription returns the content of the first <meta name="description">.
func (p *PageParser) MetaDescription() *string {
	content, ok := p.doc.Find(`meta[name="description"]`).First().Attr("content")
	if !ok {
		return nil
	}
	return nonEmpty(strings.TrimSpace(content))
}

// Text returns the human-readable body text in the configured format.
func (p *PageParser) Text() string {
	body := p.contentRoot()
	if p.format == TextMarkdown {
		if text, err := markdownText(body); err == nil {
			return text
		}
	}
	return plainText(body)
}

// OutgoingURLs returns canonical http(s) links in first-occurrence order,
// excluding links back to this page and anything that does not parse.
func (p *PageParser) OutgoingURLs() []string {
	seen := make(map[string]struct{})
	urls := make([]string, 0)
	p.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if strings.TrimSpace(href) == "" || !CanParse(href, p.pageURL) {
			return
		}
		analyzer, err := NewURLAnalyzer(href, p.pageURL)
		if err != nil || !analyzer.IsHypertext() || analyzer.IsSamePage(p.pageURL) {
			return
		}
		bareURL := analyzer.BarePageURL()
		if _, dup := seen[bareURL]; dup {
			return
		}
		seen[bareURL] = struct{}{}
		urls = append(urls, bareURL)
	})
	return urls
}

// PageData gathers every extracted field.
func (p *PageParser) PageData() crawler.PageData {
	return crawler.PageData{
		Title:           p.Title(),
		MetaDescription: p.MetaDescription(),
		Text:            p.Text(),
		OutgoingURLs:    p.OutgoingURLs(),
	}
}

// contentRoot is a detached copy of <body> (or the whole document) without
// non-content elements, so link extraction still sees the original tree.
func (p *PageParser) contentRoot() *goquery.Selection {
	root := p.doc.Find("body").First()
	if root.Length() == 0 {
		root = p.doc.Selection
	}
	clone := root.Clone()
	for _, sel := range nonContentSelectors {
		clone.Find(sel).Remove()
	}
	return clone
}

func markdownText(sel *goquery.Selection) (string, error) {
	html, err := sel.Html()
	if err != nil {
		return "", fmt.Errorf("serialize body: %w", err)
	}
	markdown, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("convert html to markdown: %w", err)
	}
	return strings.TrimSpace(markdown), nil
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
