// Package source inspects an ingestion source before it is submitted
// to the backend: malformed input is rejected locally instead of
// burning a backend job on it.
package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// ErrNotPDF is returned when uploaded bytes are not a parsable PDF.
var ErrNotPDF = errors.New("file is not a valid PDF")

// PDFInfo summarizes a validated PDF upload.
type PDFInfo struct {
	Pages int
	Size  int64
}

// InspectPDF verifies that the payload is a parsable PDF with at least
// one page.
func InspectPDF(r io.ReaderAt, size int64) (PDFInfo, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return PDFInfo{}, fmt.Errorf("%w: %v", ErrNotPDF, err)
	}
	pages := reader.NumPage()
	if pages < 1 {
		return PDFInfo{}, fmt.Errorf("%w: document has no pages", ErrNotPDF)
	}
	return PDFInfo{Pages: pages, Size: size}, nil
}

// Inspector fetches website metadata for nicer session labels.
type Inspector struct {
	httpClient *http.Client
}

// NewInspector constructs an inspector with a bounded HTTP client.
func NewInspector() *Inspector {
	return &Inspector{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid URL: scheme %q not supported", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.New("invalid URL: missing host")
	}
	return u.String(), nil
}

// WebsiteTitle fetches the page and returns its <title> text. Failures
// are soft: the caller falls back to labeling the session with the URL.
func (i *Inspector) WebsiteTitle(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := i.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch page: %s", resp.Status)
	}
	// Titles live in <head>; 256 KiB is more than enough.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 256<<10))
	if err != nil {
		return "", err
	}
	return ExtractTitle(body)
}

// ExtractTitle parses HTML and returns the first <title> text.
func ExtractTitle(page []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(page))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	title := findTitle(doc)
	if title == "" {
		return "", errors.New("no title element")
	}
	return title, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		var sb strings.Builder
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.TextNode {
				sb.WriteString(c.Data)
			}
		}
		return strings.TrimSpace(sb.String())
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := findTitle(c); title != "" {
			return title
		}
	}
	return ""
}
