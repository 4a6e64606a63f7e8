package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// YouTube transcript fetching.
// Primary:  watch page ytInitialPlayerResponse → captionTracks → timedtext XML
// Fallback: ANDROID Innertube /player → captionTracks → timedtext XML
// Fallback: /next → engagement panel → /get_transcript (works from datacenter IPs)

// ytInitialPlayerResponseMarker marks the start of the player response JSON in watch page HTML.
const ytInitialPlayerResponseMarker = "ytInitialPlayerResponse = "

// getTranscriptRE extracts the continuation token from a raw /next JSON response.
var getTranscriptRE = regexp.MustCompile(`"getTranscriptEndpoint":\{"params":"([^"]+)"`)

// Fetch returns the timed transcript of videoID, trying each strategy in turn.
// A definitive answer (no captions, unplayable video) stops the chain.
func (y *YouTube) Fetch(ctx context.Context, videoID string) (engine.Transcript, error) {
	strategies := []struct {
		name string
		fn   func(context.Context, string) (engine.Transcript, error)
	}{
		{"page scrape", y.fetchViaPageScrape},
		{"android player", y.fetchViaPlayer},
		{"engagement panel", y.fetchViaEngagementPanel},
	}

	var errs []error
	for _, s := range strategies {
		t, err := s.fn(ctx, videoID)
		if err == nil {
			return t, nil
		}
		if isDefinitive(err) || ctx.Err() != nil {
			return engine.Transcript{}, err
		}
		slog.Warn("youtube: transcript strategy failed",
			slog.String("id", videoID), slog.String("strategy", s.name), slog.Any("err", err))
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return engine.Transcript{}, errors.Join(errs...)
}

func isDefinitive(err error) bool {
	return errors.Is(err, engine.ErrNoTranscript) || errors.Is(err, engine.ErrVideoUnavailable)
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
// Tracks with &exp=xpe cannot be fetched server-side.
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects the best usable caption track for the given language preferences.
// Language codes match case-insensitively (pt-br selects a pt-BR track).
// Tracks that require a PoToken only work in a browser and are skipped.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	// 1. Manual track in preferred language
	for _, lang := range langs {
		for _, t := range usable {
			if strings.EqualFold(t.LanguageCode, lang) && t.Kind != "asr" {
				return t, true
			}
		}
	}
	// 2. Auto-generated track in preferred language
	for _, lang := range langs {
		for _, t := range usable {
			if strings.EqualFold(t.LanguageCode, lang) {
				return t, true
			}
		}
	}
	// 3. Any English track
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// captionsFromPlayer turns a player response into a chosen track or a classified error.
func (y *YouTube) captionsFromPlayer(p innertubePlayerResp) (captionTrack, error) {
	if p.PlayabilityStatus != nil {
		switch p.PlayabilityStatus.Status {
		case "", "OK":
		case "ERROR", "UNPLAYABLE":
			return captionTrack{}, fmt.Errorf("%w: %s", engine.ErrVideoUnavailable, p.PlayabilityStatus.Reason)
		default:
			// LOGIN_REQUIRED and friends depend on the client and IP, not the video.
			return captionTrack{}, fmt.Errorf("playability %s: %s", p.PlayabilityStatus.Status, p.PlayabilityStatus.Reason)
		}
	}
	if p.Captions == nil {
		return captionTrack{}, fmt.Errorf("%w: no captions in player response", engine.ErrNoTranscript)
	}
	tracks := p.Captions.PlayerCaptionsTracklistRenderer.CaptionTracks
	if len(tracks) == 0 {
		return captionTrack{}, fmt.Errorf("%w: no caption tracks", engine.ErrNoTranscript)
	}
	track, ok := pickBestTrack(tracks, y.Languages)
	if !ok {
		return captionTrack{}, errors.New("all caption tracks require PoToken")
	}
	return track, nil
}

// fetchTimedText fetches and parses a YouTube timedtext XML caption URL.
func (y *YouTube) fetchTimedText(ctx context.Context, track captionTrack) (engine.Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, track.BaseURL, nil)
	if err != nil {
		return engine.Transcript{}, err
	}
	req.Header.Set("User-Agent", engine.UserAgentBot)

	resp, err := y.HTTPClient.Do(req)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("fetch timedtext: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTimedTextSize))
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("read timedtext: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return engine.Transcript{}, fmt.Errorf("fetch timedtext: %w", statusErr(resp.StatusCode, body))
	}

	segs, err := parseTimedText(body)
	if err != nil {
		return engine.Transcript{}, err
	}
	if len(segs) == 0 {
		return engine.Transcript{}, fmt.Errorf("%w: empty caption track", engine.ErrNoTranscript)
	}
	return engine.Transcript{Language: track.LanguageCode, Segments: segs}, nil
}

// parseTimedText decodes timedtext XML into cleaned segments. Lines that clean to nothing are dropped.
func parseTimedText(body []byte) ([]engine.Segment, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}

	segs := make([]engine.Segment, 0, len(tt.Lines)+len(tt.Paragraphs))
	for _, line := range tt.Lines {
		if text := engine.CleanTranscriptText(line.Text); text != "" {
			segs = append(segs, engine.Segment{Text: text, Start: line.Start, Duration: line.Dur})
		}
	}
	for _, p := range tt.Paragraphs {
		raw := p.Text
		if len(p.Spans) > 0 {
			parts := make([]string, 0, len(p.Spans))
			for _, s := range p.Spans {
				parts = append(parts, s.Text)
			}
			raw = strings.Join(parts, "")
		}
		if text := engine.CleanTranscriptText(raw); text != "" {
			segs = append(segs, engine.Segment{
				Text:     text,
				Start:    float64(p.T) / 1000,
				Duration: float64(p.D) / 1000,
			})
		}
	}
	return segs, nil
}

// fetchViaPageScrape scrapes the watch page HTML and extracts
// the caption track XML URL from ytInitialPlayerResponse.
func (y *YouTube) fetchViaPageScrape(ctx context.Context, videoID string) (engine.Transcript, error) {
	body, err := y.getPage(ctx, y.url("/watch?v="+url.QueryEscape(videoID)))
	if errors.Is(err, errNotFound) {
		return engine.Transcript{}, fmt.Errorf("%w: watch page not found", engine.ErrVideoUnavailable)
	}
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("watch page: %w", err)
	}

	idx := bytes.Index(body, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return engine.Transcript{}, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return engine.Transcript{}, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var playerResp innertubePlayerResp
	if err := json.Unmarshal(jsonData, &playerResp); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	track, err := y.captionsFromPlayer(playerResp)
	if err != nil {
		return engine.Transcript{}, err
	}
	return y.fetchTimedText(ctx, track)
}

// fetchViaPlayer uses the ANDROID Innertube /player endpoint.
// Works from non-blocked (residential/cloud) IP addresses.
func (y *YouTube) fetchViaPlayer(ctx context.Context, videoID string) (engine.Transcript, error) {
	data, err := y.postInnerTube(ctx, ytPlayerPath, innertubeReq{
		VideoID: videoID,
		Context: innertubeCtx{
			Client: innertubeClient{
				ClientName:        "ANDROID",
				ClientVersion:     ytAndroidVersion,
				AndroidSdkVersion: 30,
				Hl:                "en",
				Gl:                "US",
			},
		},
		RacyCheckOk:    true,
		ContentCheckOk: true,
	}, map[string]string{
		"User-Agent":               ytAndroidUA,
		"X-Youtube-Client-Name":    "3",
		"X-Youtube-Client-Version": ytAndroidVersion,
	})
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("android innertube: %w", err)
	}

	var playerResp innertubePlayerResp
	if err := json.Unmarshal(data, &playerResp); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode player: %w", err)
	}
	track, err := y.captionsFromPlayer(playerResp)
	if err != nil {
		return engine.Transcript{}, err
	}
	return y.fetchTimedText(ctx, track)
}

func extractTranscriptToken(data []byte) (string, error) {
	if m := getTranscriptRE.FindSubmatch(data); len(m) >= 2 {
		// The params value in the /next JSON response is URL-encoded.
		// /get_transcript expects the decoded (raw base64) form.
		decoded, err := url.QueryUnescape(string(m[1]))
		if err != nil {
			return string(m[1]), nil
		}
		return decoded, nil
	}
	return "", errors.New("getTranscriptEndpoint not found in engagement panels")
}

// parseTranscriptSegments extracts timed segments from a /get_transcript JSON response.
func parseTranscriptSegments(resp ytGetTranscriptResp) []engine.Segment {
	var segs []engine.Segment
	for _, action := range resp.Actions {
		if action.UpdateEngagementPanelAction == nil {
			continue
		}
		items := action.UpdateEngagementPanelAction.Content.
			TranscriptRenderer.Content.
			TranscriptSearchPanelRenderer.Body.
			TranscriptSegmentListRenderer.InitialSegments
		for _, item := range items {
			seg := item.TranscriptSegmentRenderer
			if seg == nil {
				continue
			}
			var sb strings.Builder
			for _, run := range seg.Snippet.Runs {
				sb.WriteString(run.Text)
			}
			text := engine.CleanTranscriptText(sb.String())
			if text == "" {
				continue
			}
			start, _ := strconv.ParseInt(seg.StartMs, 10, 64)
			end, _ := strconv.ParseInt(seg.EndMs, 10, 64)
			dur := end - start
			if dur < 0 {
				dur = 0
			}
			segs = append(segs, engine.Segment{
				Text:     text,
				Start:    float64(start) / 1000,
				Duration: float64(dur) / 1000,
			})
		}
	}
	return segs
}

// fetchViaEngagementPanel fetches a transcript via:
//  1. POST /next → get engagementPanels containing transcript continuation token
//  2. POST /get_transcript with the token → JSON segments
func (y *YouTube) fetchViaEngagementPanel(ctx context.Context, videoID string) (engine.Transcript, error) {
	visitorData := generateVisitorData()

	nextData, err := y.postInnerTubeWEB(ctx, ytNextPath, map[string]any{
		"videoId": videoID,
		"context": ytWebContext(visitorData),
	}, visitorData)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("/next: %w", err)
	}

	token, err := extractTranscriptToken(nextData)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("token: %w", err)
	}

	transcriptData, err := y.postInnerTubeWEB(ctx, ytGetTranscriptPath, map[string]any{
		"params":  token,
		"context": ytWebContext(visitorData),
	}, visitorData)
	if err != nil {
		return engine.Transcript{}, fmt.Errorf("/get_transcript: %w", err)
	}

	var transcriptResp ytGetTranscriptResp
	if err := json.Unmarshal(transcriptData, &transcriptResp); err != nil {
		return engine.Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}

	segs := parseTranscriptSegments(transcriptResp)
	if len(segs) == 0 {
		return engine.Transcript{}, errors.New("empty transcript segments")
	}
	return engine.Transcript{Segments: segs}, nil
}
