// Package fetch drives a headless browser to capture conversation pages and
// render cited pages to PDF. It also downloads documents that are already PDFs.
package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 60 * time.Second

// DefaultUserAgent is the user agent string for direct HTTP downloads.
const DefaultUserAgent = "Mozilla/5.0 (compatible; ERCProtestAgent/1.0)"

// MaxDownloadBytes caps direct document downloads.
const MaxDownloadBytes = 50 << 20

// ErrNavigationExhausted is wrapped by the error returned when every
// navigation strategy timed out or failed.
var ErrNavigationExhausted = errors.New("all navigation strategies exhausted")

// ErrNotPDF is returned when a direct download does not carry a PDF body.
var ErrNotPDF = errors.New("response is not a PDF document")

// Error represents an error while loading or rendering a URL.
type Error struct {
	URL      string
	Strategy NavStrategy
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	prefix := fmt.Sprintf("fetch error for %s", e.URL)
	if e.Strategy != "" {
		prefix += fmt.Sprintf(" (%s)", e.Strategy)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// DownloadOptions configures direct retrieval of documents that are already PDFs.
type DownloadOptions struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	Client    *http.Client
}

// DefaultDownloadOptions returns the standard download settings.
func DefaultDownloadOptions() *DownloadOptions {
	return &DownloadOptions{
		Timeout:   DefaultTimeout,
		UserAgent: DefaultUserAgent,
	}
}

func (o *DownloadOptions) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: o.Timeout}
}

// LooksLikePDF reports whether the URL path names a PDF document.
func LooksLikePDF(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(parsed.Path), ".pdf")
}

// DownloadPDF retrieves a cited document that is already a PDF. Browsers hand
// such responses to a download manager, so printing the tab would only
// capture an empty viewer.
func DownloadPDF(ctx context.Context, urlStr string, opts *DownloadOptions) ([]byte, error) {
	if opts == nil {
		opts = DefaultDownloadOptions()
	}
	fail := func(msg string, cause error) error {
		return &Error{URL: urlStr, Message: msg, Cause: cause}
	}

	if u, err := url.Parse(urlStr); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fail("invalid URL", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fail("failed to create request", err)
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := opts.client().Do(req)
	if err != nil {
		return nil, fail("HTTP request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fail(fmt.Sprintf("HTTP status %d", resp.StatusCode), nil)
	}

	doc, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadBytes+1))
	switch {
	case err != nil:
		return nil, fail("failed to read response body", err)
	case len(doc) > MaxDownloadBytes:
		return nil, fail(fmt.Sprintf("document exceeds %d bytes", MaxDownloadBytes), nil)
	case !isPDF(doc):
		return nil, fail("unexpected content type "+resp.Header.Get("Content-Type"), ErrNotPDF)
	}
	return doc, nil
}

// isPDF checks for the PDF header, tolerating leading whitespace some servers emit.
func isPDF(doc []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(doc, "\r\n\t "), []byte("%PDF-"))
}
