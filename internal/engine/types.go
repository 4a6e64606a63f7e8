package engine

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// --- Errors ---

var (
	// ErrUnsupportedFormat is returned when an output format is not json, txt or csv.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrBatchTooLarge is returned when a batch has more inputs than Config.MaxBatchSize.
	ErrBatchTooLarge = errors.New("batch too large")
	// ErrInvalidReference is returned for input that is neither a YouTube URL nor a video ID.
	ErrInvalidReference = errors.New("invalid YouTube URL")
	// ErrNoTranscript means the video exists but has no usable caption track.
	ErrNoTranscript = errors.New("no transcript available")
	// ErrVideoUnavailable means the video is private, removed or otherwise unplayable.
	ErrVideoUnavailable = errors.New("video unavailable")
)

// StatusError is a retryable HTTP status returned by an upstream.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

// --- Output formats ---

// Format is an output serialization format.
type Format string

const (
	FormatJSON Format = "json"
	FormatTXT  Format = "txt"
	FormatCSV  Format = "csv"
)

// SupportedFormats lists every format the formatter understands.
var SupportedFormats = []Format{FormatJSON, FormatTXT, FormatCSV}

// ParseFormat normalizes s into a Format. Empty input yields def.
func ParseFormat(s string, def Format) (Format, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = string(def)
	}
	for _, f := range SupportedFormats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q (use one of json, txt, csv)", ErrUnsupportedFormat, s)
}

// --- References ---

// RefKind tells a single video apart from a channel.
type RefKind string

const (
	RefVideo   RefKind = "video"
	RefChannel RefKind = "channel"
)

// VideoReference is a normalized URL or ID.
type VideoReference struct {
	Raw     string
	Kind    RefKind
	VideoID string // set for RefVideo
	Channel string // channel path for RefChannel, e.g. "@handle" or "channel/UC..."
}

// --- Transcripts ---

// Segment is a timed snippet of spoken text. Times are in seconds.
type Segment struct {
	Text     string  `json:"text"`
	Start    float64 `json:"start"`
	Duration float64 `json:"duration"`
}

// Transcript is what a fetcher returns for one video.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// ResultStatus tags a TranscriptResult.
type ResultStatus string

const (
	StatusSuccess ResultStatus = "success"
	StatusFailed  ResultStatus = "failed"
)

// FailureReason is a machine-readable failure class.
type FailureReason string

const (
	ReasonInvalidURL   FailureReason = "invalid_url"
	ReasonNoTranscript FailureReason = "no_transcript"
	ReasonUnavailable  FailureReason = "unavailable"
	ReasonTimeout      FailureReason = "timeout"
	ReasonFetchError   FailureReason = "fetch_error"
)

// TranscriptResult is the outcome for one batch position.
// Status selects which fields are meaningful: success results carry
// segments and full text, failed results carry Error and Reason.
type TranscriptResult struct {
	Input         string        `json:"input"`
	VideoID       string        `json:"video_id,omitempty"`
	Status        ResultStatus  `json:"status"`
	Language      string        `json:"language,omitempty"`
	FullText      string        `json:"full_text,omitempty"`
	Segments      []Segment     `json:"segments,omitempty"`
	TotalSegments int           `json:"total_segments,omitempty"`
	Summary       string        `json:"summary,omitempty"`
	Error         string        `json:"error,omitempty"`
	Reason        FailureReason `json:"reason,omitempty"`
	Attempts      int           `json:"attempts"`
}

// Succeeded builds a success result. FullText is the segments joined by one space.
func Succeeded(input, videoID string, t Transcript, attempts int) TranscriptResult {
	texts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		texts = append(texts, s.Text)
	}
	return TranscriptResult{
		Input:         input,
		VideoID:       videoID,
		Status:        StatusSuccess,
		Language:      t.Language,
		FullText:      strings.Join(texts, " "),
		Segments:      t.Segments,
		TotalSegments: len(t.Segments),
		Attempts:      attempts,
	}
}

// Failed builds a failure result, deriving Reason from err.
func Failed(input, videoID string, err error, attempts int) TranscriptResult {
	return TranscriptResult{
		Input:    input,
		VideoID:  videoID,
		Status:   StatusFailed,
		Error:    err.Error(),
		Reason:   ClassifyFailure(err),
		Attempts: attempts,
	}
}

// OK reports whether r is a success result.
func (r TranscriptResult) OK() bool { return r.Status == StatusSuccess }

// ClassifyFailure maps an extraction error to a FailureReason.
func ClassifyFailure(err error) FailureReason {
	switch {
	case errors.Is(err, ErrInvalidReference):
		return ReasonInvalidURL
	case errors.Is(err, ErrNoTranscript):
		return ReasonNoTranscript
	case errors.Is(err, ErrVideoUnavailable):
		return ReasonUnavailable
	case isTimeout(err):
		return ReasonTimeout
	}
	return ReasonFetchError
}

// Batch is the ordered set of results of one extraction call.
type Batch struct {
	ID         string             `json:"id"`
	Format     Format             `json:"format"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Results    []TranscriptResult `json:"results"`
}

// Len returns the number of results.
func (b *Batch) Len() int { return len(b.Results) }

// Counts returns the number of successful and failed results.
func (b *Batch) Counts() (ok, failed int) {
	for _, r := range b.Results {
		if r.OK() {
			ok++
		} else {
			failed++
		}
	}
	return ok, failed
}
