// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/pageindex/internal/crawler"
)

const defaultTimeout = 2 * time.Second

var htmlMediaTypes = map[string]struct{}{
	"text/html":             {},
	"application/xhtml+xml": {},
}

// Config controls collector behavior.
type Config struct {
	UserAgent string
	// Timeout bounds a single fetch including the body read.
	Timeout     time.Duration
	MaxBodySize int
	// Transport overrides the pooled default transport.
	Transport http.RoundTripper
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher. The HTTP backend is shared by every clone, so the
// transport and client timeout are set once here.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	c := colly.NewCollector(colly.Async(false))

	transport := cfg.Transport
	if transport == nil {
		transport = newHTTPTransport()
	}
	c.WithTransport(transport)
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and validates that the response is a
// successful HTML document. Non-2xx statuses and non-HTML content types come
// back as *crawler.InvalidPageError; timeouts wrap crawler.ErrFetchTimeout.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResult, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	var (
		result   crawler.FetchResult
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(fetchCtx)
	f.configureCollectorHooks(collector, start, &result, &fetchErr)

	if err := f.runCollector(fetchCtx, collector, url, &fetchErr); err != nil {
		return crawler.FetchResult{}, err
	}
	if err := validateResponse(result); err != nil {
		return result, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(ctx context.Context) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.Context = ctx
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	// Non-2xx responses still reach OnResponse so the status can be classified.
	collector.ParseHTTPErrorResponse = true
	if f.cfg.MaxBodySize > 0 {
		collector.MaxBodySize = f.cfg.MaxBodySize
	}
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	start time.Time,
	result *crawler.FetchResult,
	fetchErr *error,
) {
	hooks.OnResponse(func(r *colly.Response) {
		var contentType string
		if r.Headers != nil {
			contentType = r.Headers.Get("Content-Type")
		}
		*result = crawler.FetchResult{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Body:        append([]byte(nil), r.Body...),
			Duration:    time.Since(start),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return classifyError(url, ctx.Err())
	case err := <-done:
		if err != nil {
			return classifyError(url, err)
		}
		if *fetchErr != nil {
			return classifyError(url, *fetchErr)
		}
		return nil
	}
}

func classifyError(url string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("fetch %s: %w: %w", url, crawler.ErrFetchTimeout, err)
	}
	return fmt.Errorf("fetch %s: %w", url, err)
}

func validateResponse(res crawler.FetchResult) error {
	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return crawler.Invalidf("unexpected status %d", res.StatusCode)
	}
	if !isHTML(res.ContentType) {
		if res.ContentType == "" {
			return crawler.Invalidf("missing content type")
		}
		return crawler.Invalidf("unsupported content type %q", res.ContentType)
	}
	return nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	_, ok := htmlMediaTypes[strings.ToLower(mediaType)]
	return ok
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
	}
}
