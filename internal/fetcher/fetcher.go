package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/maltedev/amazon-offer-scraper/internal/ratelimit"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Options configures the fetcher's HTTP behavior.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// Fetcher issues rate limited GET requests and turns responses into parsed
// documents. It holds no mutable state beyond the shared limiter.
type Fetcher struct {
	client    *http.Client
	limiter   *ratelimit.Limiter
	userAgent string
	logger    *slog.Logger
}

// New builds a fetcher whose requests are paced by limiter.
func New(limiter *ratelimit.Limiter, opts Options, logger *slog.Logger) *Fetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Fetcher{
		client:    &http.Client{Timeout: opts.Timeout},
		limiter:   limiter,
		userAgent: opts.UserAgent,
		logger:    logger.With("component", "fetcher"),
	}
}

// Limiter exposes the shared limiter so callers can size fan-out to its
// capacity.
func (f *Fetcher) Limiter() *ratelimit.Limiter {
	return f.limiter
}

// Fetch issues exactly one GET for url through the rate limiter and parses
// the response body into a document. Connection failures and non-2xx
// statuses surface as transport errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	var doc *goquery.Document

	err := f.limiter.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return &TransportError{URL: url, Err: err}
		}
		req.Header.Set("User-Agent", f.userAgent)
		req.Header.Set("Accept", "text/html,application/xhtml+xml")

		resp, err := f.client.Do(req)
		if err != nil {
			return &TransportError{URL: url, Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{URL: url, StatusCode: resp.StatusCode}
		}

		doc, err = f.parseBody(resp, url)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// parseBody decodes the response into UTF-8 and parses it. Bodies declared
// as UTF-8 are read raw and only repaired when the declaration turns out to
// be a lie; everything else goes through charset sniffing.
func (f *Fetcher) parseBody(resp *http.Response, url string) (*goquery.Document, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{URL: url, Err: err}
	}

	contentType := resp.Header.Get("Content-Type")
	if declaresUTF8(contentType) {
		if !utf8.Valid(body) {
			f.logger.Warn("response declared charset=UTF-8 but contains invalid byte sequences, converting lossily",
				"url", url)
			body = []byte(strings.ToValidUTF8(string(body), string(utf8.RuneError)))
		}
		return f.parseDocument(bytes.NewReader(body), url)
	}

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, fmt.Errorf("determine charset for %s: %w", url, err)
	}
	return f.parseDocument(reader, url)
}

func (f *Fetcher) parseDocument(r io.Reader, url string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document from %s: %w", url, err)
	}
	return doc, nil
}

func declaresUTF8(contentType string) bool {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.EqualFold(params["charset"], "utf-8")
}
