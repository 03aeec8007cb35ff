package artifact

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.scrum.org/resources/what-is-scrum", "resources_what-is-scrum.md"},
		{"https://www.scrum.org/Resources/Blog/", "resources_blog_.md"},
		{"https://www.scrum.org/guide.v2/index.html", "guide_v2_index_html.md"},
		{"https://www.scrum.org/", "index.md"},
		{"https://www.scrum.org", "index.md"},
		{"https://www.scrum.org/?page=2", "index.md"},
		{"https://www.scrum.org/a?b=c", "a.md"},
		{"https://www.scrum.org/caf%C3%A9", "caf%c3%a9.md"},
		{"https://www.scrum.org/a:b*c", "a_b_c.md"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, FileName(tt.url))
		})
	}
}

func TestFileNameIsDeterministic(t *testing.T) {
	u := "https://www.scrum.org/resources/blog/some-post"
	assert.Equal(t, FileName(u), FileName(u))
}

func TestFileNameTruncatesLongPaths(t *testing.T) {
	long := "https://www.scrum.org/" + strings.Repeat("segment/", 60)
	other := "https://www.scrum.org/" + strings.Repeat("segment/", 61)

	name := FileName(long)
	assert.LessOrEqual(t, len(name), maxNameBytes+len(Extension))
	assert.True(t, strings.HasSuffix(name, Extension))
	assert.NotEqual(t, name, FileName(other))
}

func TestRenderAndParseRoundTrip(t *testing.T) {
	scraped := time.Date(2026, 3, 4, 5, 6, 7, 890, time.UTC)
	content := "# Title\n\n---\nnot a header\n"
	src := "https://www.scrum.org/resources/blog?x=1&y=2"

	doc := Render(Header{SourceURL: src, DateScraped: scraped}, content)
	assert.True(t, strings.HasPrefix(string(doc), "---\nsource_url: "+src+"\ndate_scraped: "))

	h, body, err := Parse(doc)
	require.NoError(t, err)
	assert.Equal(t, src, h.SourceURL)
	assert.True(t, scraped.Equal(h.DateScraped))
	assert.Equal(t, content, body)
}

func TestParseRejectsDocumentsWithoutHeader(t *testing.T) {
	_, _, err := Parse([]byte("# just markdown\n"))
	require.ErrorIs(t, err, ErrNoHeader)

	_, _, err = Parse([]byte("---\nsource_url: x\n"))
	require.ErrorIs(t, err, ErrNoHeader)
}
