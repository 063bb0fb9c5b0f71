package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanParse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		raw  string
		base string
		want bool
	}{
		{"relative path", "/x", "https://site.test/p", true},
		{"fragment only", "#section", "https://site.test/p", true},
		{"absolute", "https://other.test/y", "https://site.test/p", true},
		{"mailto", "mailto:a@b.com", "https://site.test/p", true},
		{"broken host", "http://[::1", "https://site.test/p", false},
		{"space in host", "http://a b.test/", "https://site.test/p", false},
		{"bad port", "http://site.test:99999/", "https://site.test/p", false},
		{"relative without base", "/x", "", false},
		{"relative base", "/x", "/p", false},
		{"missing host", "http:///x", "", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CanParse(tc.raw, tc.base))
		})
	}
}

func TestURLAnalyzerIsHypertext(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]bool{
		"https://site.test/a":   true,
		"HTTP://site.test/a":    true,
		"mailto:a@b.com":        false,
		"javascript:void(0)":    false,
		"tel:+380441234567":     false,
		"ftp://files.site.test": false,
	} {
		a, err := NewURLAnalyzer(raw, "https://site.test/")
		require.NoError(t, err, raw)
		assert.Equal(t, want, a.IsHypertext(), raw)
	}
}

func TestURLAnalyzerBarePageURL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		raw  string
		want string
	}{
		{"https://site.test/p#frag", "https://site.test/p"},
		{"HTTPS://Site.TEST:443/P?q=1#x", "https://site.test/P?q=1"},
		{"http://site.test:80", "http://site.test/"},
		{"http://site.test:8080/a/../b", "http://site.test:8080/b"},
		{"https://site.test/p?", "https://site.test/p"},
		{"https://site.test/a b", "https://site.test/a%20b"},
		{"http://[::1]:8080/x", "http://[::1]:8080/x"},
	}

	for _, tc := range testCases {
		a, err := NewURLAnalyzer(tc.raw, "")
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, a.BarePageURL(), tc.raw)
	}
}

func TestURLAnalyzerIsSamePage(t *testing.T) {
	t.Parallel()

	a, err := NewURLAnalyzer("https://site.test/p#top", "")
	require.NoError(t, err)
	b, err := NewURLAnalyzer("https://site.test/p#bottom", "")
	require.NoError(t, err)

	assert.True(t, a.IsSamePage("https://site.test/p#bottom"))
	assert.True(t, b.IsSamePage("https://site.test/p#top"))
	assert.True(t, a.IsSamePage("#elsewhere"))
	assert.False(t, a.IsSamePage("https://site.test/q"))
	assert.False(t, a.IsSamePage("https://site.test/p?x=1"))
	assert.False(t, a.IsSamePage("https://other.test/p"))
	assert.False(t, a.IsSamePage("http://[::1"))
}

func TestCanonicalizeIsIdempotent(t *testing.T) {
	t.Parallel()

	first, err := Canonicalize("HTTPS://Site.Test:443/a/./b?z=2&a=1#frag")
	require.NoError(t, err)
	second, err := Canonicalize(first)
	require.NoError(t, err)
	assert.Equal(t, "https://site.test/a/b?z=2&a=1", first)
	assert.Equal(t, first, second)
}

func FuzzCanonicalize(f *testing.F) {
	for _, seed := range []string{
		"https://site.test/p#x",
		"http://Site.test:80/a/../b?q",
		"https://site.test/%7Euser",
	} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, raw string) {
		first, err := Canonicalize(raw)
		if err != nil {
			return
		}
		second, err := Canonicalize(first)
		if err != nil {
			t.Fatalf("canonical form %q of %q does not parse: %v", first, raw, err)
		}
		if first != second {
			t.Fatalf("Canonicalize not idempotent: %q -> %q -> %q", raw, first, second)
		}
	})
}
