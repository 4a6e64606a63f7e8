package transcripts

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

const txtSeparator = "--------------------------------------------------------------------------------" // 80

// Format serializes the batch results. Failed results appear only in JSON.
func Format(b *engine.Batch, format engine.Format) ([]byte, error) {
	switch format {
	case engine.FormatJSON:
		return formatJSON(b)
	case engine.FormatTXT:
		return formatTXT(b), nil
	case engine.FormatCSV:
		return formatCSV(b)
	}
	return nil, fmt.Errorf("%w: %q", engine.ErrUnsupportedFormat, format)
}

// formatJSON writes an indented array of results in batch order.
// HTML escaping is off so caption text survives byte-for-byte.
func formatJSON(b *engine.Batch) ([]byte, error) {
	results := b.Results
	if results == nil {
		results = []engine.TranscriptResult{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return nil, fmt.Errorf("format json: %w", err)
	}
	return buf.Bytes(), nil
}

func formatTXT(b *engine.Batch) []byte {
	var sb strings.Builder
	for _, r := range b.Results {
		if !r.OK() {
			continue
		}
		fmt.Fprintf(&sb, "Video ID: %s\n", r.VideoID)
		fmt.Fprintf(&sb, "Full Text: %s\n", r.FullText)
		sb.WriteString(txtSeparator)
		sb.WriteString("\n\n")
	}
	return []byte(sb.String())
}

func formatCSV(b *engine.Batch) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{"video_id", "start_time", "duration", "text"}); err != nil {
		return nil, err
	}
	for _, r := range b.Results {
		if !r.OK() {
			continue
		}
		for _, s := range r.Segments {
			row := []string{
				r.VideoID,
				strconv.FormatFloat(s.Start, 'f', -1, 64),
				strconv.FormatFloat(s.Duration, 'f', -1, 64),
				s.Text,
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("format csv: %w", err)
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("format csv: %w", err)
	}
	return buf.Bytes(), nil
}

// OutputPath returns the conventional <dir>/<name>.<ext> file name for a format.
// Nothing is written.
func OutputPath(dir, name string, format engine.Format) string {
	if name == "" {
		name = "transcripts"
	}
	return filepath.Join(dir, name+"."+string(format))
}
