package sources

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

var videoIDRE = regexp.MustCompile(`^[a-zA-Z0-9_-]{11}$`)

// ParseReference classifies raw as a video or channel reference.
// Accepted: bare 11-char IDs, watch/embed/shorts/live/v URLs, youtu.be links,
// and channel URLs (/@handle, /channel/UC..., /c/name, /user/name).
func ParseReference(raw string) (engine.VideoReference, error) {
	s := strings.TrimSpace(raw)
	ref := engine.VideoReference{Raw: raw}
	if s == "" {
		return ref, fmt.Errorf("%w: empty input", engine.ErrInvalidReference)
	}
	if videoIDRE.MatchString(s) {
		ref.Kind = engine.RefVideo
		ref.VideoID = s
		return ref, nil
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ref, fmt.Errorf("%w: %q", engine.ErrInvalidReference, raw)
	}

	host := strings.ToLower(u.Hostname())
	for _, p := range []string{"www.", "m.", "music."} {
		host = strings.TrimPrefix(host, p)
	}
	segs := strings.FieldsFunc(u.Path, func(r rune) bool { return r == '/' })

	switch host {
	case "youtu.be":
		if len(segs) > 0 && videoIDRE.MatchString(segs[0]) {
			ref.Kind = engine.RefVideo
			ref.VideoID = segs[0]
			return ref, nil
		}
	case "youtube.com", "youtube-nocookie.com":
		if id, ok := videoFromPath(u, segs); ok {
			ref.Kind = engine.RefVideo
			ref.VideoID = id
			return ref, nil
		}
		if ch, ok := channelFromPath(segs); ok {
			ref.Kind = engine.RefChannel
			ref.Channel = ch
			return ref, nil
		}
	}
	return ref, fmt.Errorf("%w: %q", engine.ErrInvalidReference, raw)
}

func videoFromPath(u *url.URL, segs []string) (string, bool) {
	if len(segs) == 0 {
		return "", false
	}
	var id string
	switch segs[0] {
	case "watch":
		id = u.Query().Get("v")
	case "embed", "shorts", "live", "v":
		if len(segs) > 1 {
			id = segs[1]
		}
	}
	return id, videoIDRE.MatchString(id)
}

func channelFromPath(segs []string) (string, bool) {
	if len(segs) == 0 {
		return "", false
	}
	if strings.HasPrefix(segs[0], "@") && len(segs[0]) > 1 {
		return segs[0], true
	}
	switch segs[0] {
	case "channel", "c", "user":
		if len(segs) > 1 && segs[1] != "" {
			return segs[0] + "/" + segs[1], true
		}
	}
	return "", false
}
