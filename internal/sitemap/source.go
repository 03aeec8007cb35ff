// Package sitemap reads the paginated sitemap index.
package sitemap

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/antchfx/xmlquery"

	collyfetcher "github.com/JakeFAU/sitemap-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/sitemap-harvester/internal/harvest"
)

// Getter downloads one URL.
type Getter interface {
	Get(ctx context.Context, rawURL string) (collyfetcher.Response, error)
}

// Source serves index pages addressed as base?page=N.
type Source struct {
	base   string
	getter Getter
}

// New returns a Source for the sitemap at base.
func New(base string, getter Getter) *Source {
	return &Source{base: base, getter: getter}
}

// PageURL returns the address of index page n.
func (s *Source) PageURL(page int) string {
	u, err := url.Parse(s.base)
	if err != nil {
		return s.base + "?page=" + strconv.Itoa(page)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// Page downloads index page n and returns the page URLs it lists. A 404 is
// reported as harvest.ErrIndexNotFound.
func (s *Source) Page(ctx context.Context, page int) ([]string, error) {
	pageURL := s.PageURL(page)
	resp, err := s.getter.Get(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch index page %d: %w", page, err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("index page %d: status 404: %w", page, harvest.ErrIndexNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("index page %d: unexpected status %d", page, resp.StatusCode)
	}
	urls, err := ParseURLs(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("index page %d: %w", page, err)
	}
	return urls, nil
}

// ParseURLs extracts every url/loc value from a sitemap urlset in document
// order. Entries with empty locations are skipped.
func ParseURLs(body []byte) ([]string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	doc, err := xmlquery.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse sitemap: %w", err)
	}
	nodes := xmlquery.Find(doc, "//url/loc")
	urls := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if loc := strings.TrimSpace(n.InnerText()); loc != "" {
			urls = append(urls, loc)
		}
	}
	return urls, nil
}
