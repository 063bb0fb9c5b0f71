package parser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<!doctype html>
<html>
<head>
  <title>
    Faculty   News
  </title>
  <meta name="description" content=" Latest announcements ">
  <meta name="description" content="second">
  <style>body { color: red }</style>
</head>
<body>
  <h1>Welcome</h1>
  <p>First <b>bold</b> paragraph.</p>
  <script>var hidden = "never shown";</script>
  <ul><li>one</li><li>two</li></ul>
  <a href="/x">x</a>
  <a href="#section">jump</a>
  <a href="mailto:a@b.com">mail</a>
  <a href="https://other.test/y">y</a>
  <a href="/x#again">x again</a>
  <a href="">empty</a>
  <a href="http://[::1">broken</a>
  <a href="https://site.test/p?">self</a>
</body>
</html>`

func TestPageParserOutgoingURLs(t *testing.T) {
	t.Parallel()

	p := New([]byte(samplePage), "https://site.test/p", TextPlain)
	assert.Equal(t, []string{"https://site.test/x", "https://other.test/y"}, p.OutgoingURLs())
}

func TestPageParserTitleAndDescription(t *testing.T) {
	t.Parallel()

	p := New([]byte(samplePage), "https://site.test/p", TextPlain)
	require.NotNil(t, p.Title())
	assert.Equal(t, "Faculty News", *p.Title())
	require.NotNil(t, p.MetaDescription())
	assert.Equal(t, "Latest announcements", *p.MetaDescription())
}

func TestPageParserMissingFields(t *testing.T) {
	t.Parallel()

	p := New([]byte(`<html><head><title>  </title></head><body></body></html>`), "https://site.test/", TextPlain)
	assert.Nil(t, p.Title())
	assert.Nil(t, p.MetaDescription())
	assert.Empty(t, p.Text())
	assert.Empty(t, p.OutgoingURLs())
}

func TestPageParserPlainText(t *testing.T) {
	t.Parallel()

	p := New([]byte(samplePage), "https://site.test/p", TextPlain)
	text := p.Text()

	assert.Contains(t, text, "Welcome\nFirst bold paragraph.\none\ntwo")
	assert.NotContains(t, text, "never shown")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Faculty News")
	for _, line := range strings.Split(text, "\n") {
		assert.Equal(t, strings.TrimSpace(line), line)
		assert.NotEmpty(t, line)
	}
}

func TestPageParserMarkdownText(t *testing.T) {
	t.Parallel()

	p := New([]byte(samplePage), "https://site.test/p", TextMarkdown)
	text := p.Text()

	assert.Contains(t, text, "# Welcome")
	assert.Contains(t, text, "**bold**")
	assert.NotContains(t, text, "never shown")
}

func TestPageParserMalformedHTML(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"<<<>>>",
		"<html><body><p>unclosed <a href='/ok'>link",
		"\x00\xff binary junk <a href=\"javascript:alert(1)\">",
	}
	for _, in := range inputs {
		p := New([]byte(in), "https://site.test/", TextPlain)
		data := p.PageData()
		assert.NotNil(t, data.OutgoingURLs, in)
	}

	p := New([]byte(inputs[2]), "https://site.test/", TextPlain)
	assert.Equal(t, []string{"https://site.test/ok"}, p.OutgoingURLs())
	assert.Equal(t, "unclosed link", p.Text())
}

func TestParseTextFormat(t *testing.T) {
	t.Parallel()

	f, err := ParseTextFormat("")
	require.NoError(t, err)
	assert.Equal(t, TextPlain, f)

	f, err = ParseTextFormat("Markdown")
	require.NoError(t, err)
	assert.Equal(t, TextMarkdown, f)

	_, err = ParseTextFormat("pdf")
	require.Error(t, err)
}
