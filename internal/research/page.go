// Package research provides the supporting operations around the core
// pipeline: fetching readable text from web pages and producing short topic
// summaries to ingest as sources.
package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ErrFetch reports that a page could not be fetched or yielded no readable
// content.
var ErrFetch = errors.New("page fetch failed")

const (
	// maxPageBytes bounds how much of a response body is read. Pages
	// larger than this are truncated, not rejected.
	maxPageBytes = 4 << 20

	defaultFetchTimeout = 30 * time.Second
	userAgent           = "inkbase/1.0 (+https://github.com/inkbase/inkbase)"
)

// Page is the readable extraction of a fetched URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// PageFetcher retrieves web pages and strips them down to readable text.
type PageFetcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewPageFetcher creates a PageFetcher. A nil client gets a default with a
// 30 second timeout.
func NewPageFetcher(client *http.Client, logger *slog.Logger) *PageFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultFetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PageFetcher{client: client, logger: logger}
}

// Fetch downloads rawURL and extracts its readable text. Navigation, ads,
// and boilerplate are stripped; when extraction finds no article body the
// whole visible text is used instead.
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil || (pageURL.Scheme != "http" && pageURL.Scheme != "https") {
		return nil, fmt.Errorf("%w: invalid URL %q", ErrFetch, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrFetch, pageURL.Host, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetch, err)
	}

	page, err := extract(body, pageURL)
	if err != nil {
		return nil, err
	}
	page.URL = pageURL.String()

	f.logger.Debug("fetched page", "url", page.URL, "title", page.Title, "runes", len([]rune(page.Text)))
	return page, nil
}

func extract(body []byte, pageURL *url.URL) (*Page, error) {
	article, err := readability.FromReader(strings.NewReader(string(body)), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		title := strings.TrimSpace(article.Title)
		if title == "" {
			title = titleFromHTML(body)
		}
		return &Page{Title: title, Text: strings.TrimSpace(article.TextContent)}, nil
	}

	// Readability gives up on sparse or unusual markup. Fall back to the
	// document's visible text so short pages are still ingestable.
	doc, docErr := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if docErr != nil {
		return nil, fmt.Errorf("%w: parsing document: %w", ErrFetch, docErr)
	}
	doc.Find("script, style, noscript").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())
	if text == "" {
		return nil, fmt.Errorf("%w: no readable content at %s", ErrFetch, pageURL)
	}
	return &Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  squeezeWhitespace(text),
	}, nil
}

func titleFromHTML(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// squeezeWhitespace collapses runs of blank lines and indentation that
// survive HTML-to-text conversion.
func squeezeWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
