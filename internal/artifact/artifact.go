// Package artifact names and renders the markdown files written per page.
//
// An artifact is a front-matter block followed by the extracted content:
//
//	---
//	source_url: https://www.scrum.org/resources/blog
//	date_scraped: 2026-01-02T03:04:05Z
//	---
//
//	<content>
package artifact

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/sitemap-harvester/internal/hash/sha256"
)

const (
	// Extension is appended to every derived file name.
	Extension = ".md"
	// ContentType is the media type artifacts are stored with.
	ContentType = "text/markdown; charset=utf-8"
	// Placeholder names the artifact of a site root.
	Placeholder = "index"

	maxNameBytes = 200
	fence        = "---"
)

// ErrNoHeader is returned by Parse when a document lacks the front-matter block.
var ErrNoHeader = errors.New("artifact has no header block")

// Header is the metadata block at the top of an artifact.
type Header struct {
	SourceURL   string
	DateScraped time.Time
}

// FileName derives a stable, filesystem-safe file name from the URL path.
// Separators and punctuation become underscores, the result is lowercased
// and the site root maps to Placeholder.
func FileName(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.EscapedPath()
	}
	path = strings.TrimLeft(path, "/")

	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '%', r == '~':
			return r
		default:
			return '_'
		}
	}, strings.ToLower(path))

	if name == "" || name == "_" {
		name = Placeholder
	}
	if len(name) > maxNameBytes {
		suffix := "_" + sha256.Short([]byte(rawURL), 12)
		name = name[:maxNameBytes-len(suffix)] + suffix
	}
	return name + Extension
}

// Render prepends the header block to content. Content is written verbatim.
func Render(h Header, content string) []byte {
	var b bytes.Buffer
	b.Grow(len(content) + 128)
	fmt.Fprintf(&b, "%s\nsource_url: %s\ndate_scraped: %s\n%s\n\n",
		fence, h.SourceURL, h.DateScraped.UTC().Format(time.RFC3339Nano), fence)
	b.WriteString(content)
	return b.Bytes()
}

// Parse splits an artifact back into its header and content.
func Parse(doc []byte) (Header, string, error) {
	var h Header
	r := bufio.NewReader(bytes.NewReader(doc))

	first, err := r.ReadString('\n')
	if err != nil || strings.TrimRight(first, "\n") != fence {
		return h, "", ErrNoHeader
	}
	consumed := len(first)
	for {
		line, err := r.ReadString('\n')
		consumed += len(line)
		if err != nil {
			return h, "", fmt.Errorf("unterminated header: %w", ErrNoHeader)
		}
		line = strings.TrimRight(line, "\n")
		if line == fence {
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			return h, "", fmt.Errorf("malformed header line %q", line)
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "source_url":
			h.SourceURL = value
		case "date_scraped":
			ts, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return h, "", fmt.Errorf("parse date_scraped: %w", err)
			}
			h.DateScraped = ts
		}
	}
	body := doc[consumed:]
	body = bytes.TrimPrefix(body, []byte("\n"))
	return h, string(body), nil
}
