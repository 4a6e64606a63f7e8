package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// ytInitialDataMarker marks the start of the page data JSON in channel HTML.
const ytInitialDataMarker = "var ytInitialData = "

// ChannelVideos returns up to limit video IDs from the channel's /videos tab, newest first.
func (y *YouTube) ChannelVideos(ctx context.Context, ref engine.VideoReference, limit int) ([]string, error) {
	if ref.Kind != engine.RefChannel || ref.Channel == "" {
		return nil, fmt.Errorf("%w: not a channel reference", engine.ErrInvalidReference)
	}
	engine.IncrChannelResolves()

	body, err := y.getPage(ctx, y.url("/"+ref.Channel+"/videos"))
	if err != nil {
		if errors.Is(err, errNotFound) {
			return nil, fmt.Errorf("%w: channel %s not found", engine.ErrInvalidReference, ref.Channel)
		}
		return nil, fmt.Errorf("channel page %s: %w", ref.Channel, err)
	}

	idx := bytes.Index(body, []byte(ytInitialDataMarker))
	if idx < 0 {
		return nil, fmt.Errorf("channel %s: ytInitialData not found", ref.Channel)
	}
	jsonData := extractJSON(body[idx+len(ytInitialDataMarker):])
	if jsonData == nil {
		return nil, fmt.Errorf("channel %s: failed to extract ytInitialData JSON", ref.Channel)
	}

	ids := extractVideoIDs(jsonData, limit)
	if len(ids) == 0 {
		return nil, fmt.Errorf("channel %s: no videos found", ref.Channel)
	}
	return ids, nil
}

// extractVideoIDs recursively walks ytInitialData JSON for videoRenderer /
// gridVideoRenderer entries and returns distinct IDs in document order.
func extractVideoIDs(data []byte, limit int) []string {
	var ids []string
	seen := make(map[string]bool)
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if limit > 0 && len(ids) >= limit {
			return
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(v, &obj); err == nil {
			for _, key := range []string{"videoRenderer", "gridVideoRenderer"} {
				raw, ok := obj[key]
				if !ok {
					continue
				}
				var vr struct {
					VideoID string `json:"videoId"`
				}
				if json.Unmarshal(raw, &vr) == nil && videoIDRE.MatchString(vr.VideoID) {
					if !seen[vr.VideoID] {
						seen[vr.VideoID] = true
						ids = append(ids, vr.VideoID)
					}
					return
				}
			}
			// Map iteration order is random; walk children in document order instead.
			for _, child := range orderedValues(v) {
				if limit > 0 && len(ids) >= limit {
					return
				}
				walk(child)
			}
			return
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(v, &arr); err == nil {
			for _, item := range arr {
				if limit > 0 && len(ids) >= limit {
					return
				}
				walk(item)
			}
		}
	}
	walk(data)
	return ids
}

// orderedValues returns the member values of a JSON object in source order.
func orderedValues(obj json.RawMessage) []json.RawMessage {
	dec := json.NewDecoder(bytes.NewReader(obj))
	if _, err := dec.Token(); err != nil { // opening brace
		return nil
	}
	var out []json.RawMessage
	for dec.More() {
		if _, err := dec.Token(); err != nil { // key
			return out
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return out
		}
		out = append(out, val)
	}
	return out
}
