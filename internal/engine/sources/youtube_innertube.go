package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// YouTube Innertube API: low-level constants, types, and HTTP primitives.
// All higher-level logic lives in youtube_transcript.go and youtube_channel.go.

const (
	ytPlayerPath        = "/youtubei/v1/player"
	ytNextPath          = "/youtubei/v1/next"
	ytGetTranscriptPath = "/youtubei/v1/get_transcript"
	ytWebVersion        = "2.20250222.10.00"
	ytAndroidVersion    = "20.10.38"
	ytAndroidUA         = "com.google.android.youtube/" + ytAndroidVersion + " (Linux; U; Android 11) gzip"

	maxPageBytes     = 6 * 1024 * 1024
	maxTimedTextSize = 2 * 1024 * 1024
	maxInnertubeSize = 3 * 1024 * 1024
)

// --- ANDROID client types (/player endpoint) ---

type innertubeReq struct {
	VideoID        string       `json:"videoId"`
	Context        innertubeCtx `json:"context"`
	RacyCheckOk    bool         `json:"racyCheckOk"`
	ContentCheckOk bool         `json:"contentCheckOk"`
}

type innertubeCtx struct {
	Client innertubeClient `json:"client"`
}

type innertubeClient struct {
	ClientName        string `json:"clientName"`
	ClientVersion     string `json:"clientVersion"`
	AndroidSdkVersion int    `json:"androidSdkVersion,omitempty"`
	Hl                string `json:"hl,omitempty"`
	Gl                string `json:"gl,omitempty"`
}

type innertubePlayerResp struct {
	Captions *struct {
		PlayerCaptionsTracklistRenderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" = auto-generated
}

// --- WEB client types (/next and /get_transcript endpoints) ---

type ytWebClientCtx struct {
	ClientName    string `json:"clientName"`
	ClientVersion string `json:"clientVersion"`
	VisitorData   string `json:"visitorData,omitempty"`
	Hl            string `json:"hl,omitempty"`
	Gl            string `json:"gl,omitempty"`
}

type ytWebUser struct {
	EnableSafetyMode bool `json:"enableSafetyMode"`
}

type ytWebReqCtx struct {
	UseSsl bool `json:"useSsl"`
}

// --- Timedtext XML types ---

// ytTimedText covers both the legacy <transcript><text start dur> layout
// and the srv3 <timedtext><body><p t d> layout (milliseconds).
type ytTimedText struct {
	Lines      []ytLine      `xml:"text"`
	Paragraphs []ytParagraph `xml:"body>p"`
}

type ytLine struct {
	Start float64 `xml:"start,attr"`
	Dur   float64 `xml:"dur,attr"`
	Text  string  `xml:",chardata"`
}

type ytParagraph struct {
	T     int64  `xml:"t,attr"`
	D     int64  `xml:"d,attr"`
	Text  string `xml:",chardata"`
	Spans []struct {
		Text string `xml:",chardata"`
	} `xml:"s"`
}

// --- /get_transcript response ---

type ytTranscriptSegment struct {
	StartMs string `json:"startMs"`
	EndMs   string `json:"endMs"`
	Snippet struct {
		Runs []struct {
			Text string `json:"text"`
		} `json:"runs"`
	} `json:"snippet"`
}

type ytGetTranscriptResp struct {
	Actions []struct {
		UpdateEngagementPanelAction *struct {
			Content struct {
				TranscriptRenderer struct {
					Content struct {
						TranscriptSearchPanelRenderer struct {
							Body struct {
								TranscriptSegmentListRenderer struct {
									InitialSegments []struct {
										TranscriptSegmentRenderer *ytTranscriptSegment `json:"transcriptSegmentRenderer"`
									} `json:"initialSegments"`
								} `json:"transcriptSegmentListRenderer"`
							} `json:"body"`
						} `json:"transcriptSearchPanelRenderer"`
					} `json:"content"`
				} `json:"transcriptRenderer"`
			} `json:"content"`
		} `json:"updateEngagementPanelAction"`
	} `json:"actions"`
}

// generateVisitorData creates a random 11-char visitor ID for Innertube requests.
func generateVisitorData() string {
	const chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-_"
	b := make([]byte, 11)
	for i := range b {
		b[i] = chars[rand.Intn(len(chars))] //nolint:gosec // non-cryptographic use
	}
	return string(b)
}

// ytWebContext builds the standard WEB client context for Innertube payloads.
func ytWebContext(visitorData string) map[string]any {
	return map[string]any{
		"client": ytWebClientCtx{
			ClientName:    "WEB",
			ClientVersion: ytWebVersion,
			VisitorData:   visitorData,
			Hl:            "en",
			Gl:            "US",
		},
		"user":    ytWebUser{EnableSafetyMode: false},
		"request": ytWebReqCtx{UseSsl: true},
	}
}

// errNotFound marks an HTTP 404 from a page or API.
var errNotFound = errors.New("not found")

// statusErr converts a non-200 response into an error; retryable codes become *engine.StatusError.
func statusErr(code int, body []byte) error {
	if engine.IsRetryableStatus(code) {
		return &engine.StatusError{StatusCode: code}
	}
	if code == http.StatusNotFound {
		return fmt.Errorf("HTTP 404: %w", errNotFound)
	}
	return fmt.Errorf("HTTP %d: %s", code, engine.Truncate(string(body), 256))
}

// postInnerTube POSTs a JSON payload and returns the body of a 200 response.
// A single attempt: retries belong to the caller.
func (y *YouTube) postInnerTube(ctx context.Context, path string, payload any, headers map[string]string) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, y.url(path)+"?prettyPrint=false", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "*/*")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := y.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("innertube [%s]: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, fmt.Errorf("innertube [%s]: %w", path, statusErr(resp.StatusCode, snippet))
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxInnertubeSize))
}

// postInnerTubeWEB POSTs to an Innertube endpoint with WEB client headers.
func (y *YouTube) postInnerTubeWEB(ctx context.Context, path string, payload any, visitorData string) ([]byte, error) {
	return y.postInnerTube(ctx, path, payload, map[string]string{
		"User-Agent":               engine.UserAgentChrome,
		"X-Youtube-Client-Name":    "1",
		"X-Youtube-Client-Version": ytWebVersion,
		"X-Goog-Visitor-Id":        visitorData,
		"Origin":                   "https://www.youtube.com",
		"Referer":                  "https://www.youtube.com/",
	})
}

// getPage fetches an HTML page. Goes through the stealth browser client when configured.
func (y *YouTube) getPage(ctx context.Context, pageURL string) ([]byte, error) {
	if y.Browser != nil {
		headers := engine.ChromeHeaders()
		headers["cookie"] = "CONSENT=YES+1"
		data, status, err := doWithContext(ctx, func() ([]byte, int, error) {
			data, _, status, err := y.Browser.Do(http.MethodGet, pageURL, headers, nil)
			return data, status, err
		})
		if err != nil {
			return nil, fmt.Errorf("browser fetch: %w", err)
		}
		if status != http.StatusOK {
			return nil, statusErr(status, data)
		}
		if len(data) > maxPageBytes {
			data = data[:maxPageBytes]
		}
		return data, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.RandomUserAgent())
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Cookie", "CONSENT=YES+1")

	resp, err := y.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, statusErr(resp.StatusCode, snippet)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
}

// doWithContext runs a context-unaware request and returns early once ctx is
// done. The abandoned call is still bounded by the client's own timeout.
func doWithContext(ctx context.Context, do func() ([]byte, int, error)) ([]byte, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	type result struct {
		data   []byte
		status int
		err    error
	}
	done := make(chan result, 1)
	go func() {
		data, status, err := do()
		done <- result{data, status, err}
	}()
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case r := <-done:
		return r.data, r.status, r.err
	}
}

// extractJSON extracts a complete JSON object starting at b[0] == '{' by tracking brace depth.
func extractJSON(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inStr := false
	escaped := false
	for i, c := range b {
		if inStr {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}
