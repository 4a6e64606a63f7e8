package sources

// YouTube implementation is split across four files by responsibility:
//   youtube_ref.go         URL / ID parsing into engine.VideoReference
//   youtube_innertube.go   Innertube API types, constants and low-level HTTP primitives
//   youtube_transcript.go  transcript fetching (watch page, ANDROID player, engagement panel)
//   youtube_channel.go     channel /videos scraping for channel expansion

import (
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

const defaultYouTubeBase = "https://www.youtube.com"

// YouTube fetches transcripts and channel listings from youtube.com.
// The zero value is not usable; build one with NewYouTube.
type YouTube struct {
	BaseURL    string // overridden in tests
	HTTPClient *http.Client
	Browser    *engine.BrowserClient // nil = plain net/http for HTML pages
	Languages  []string
}

// NewYouTube builds a YouTube source from the engine configuration.
func NewYouTube(c *engine.Config) *YouTube {
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	langs := c.Languages
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	return &YouTube{
		BaseURL:    defaultYouTubeBase,
		HTTPClient: client,
		Browser:    c.BrowserClient,
		Languages:  langs,
	}
}

func (y *YouTube) url(path string) string {
	return strings.TrimRight(y.BaseURL, "/") + path
}
