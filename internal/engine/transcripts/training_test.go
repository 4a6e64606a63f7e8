package transcripts

import (
	"strings"
	"testing"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

func TestChunkText(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		maxLen int
		want   []string
	}{
		{"empty", "", 10, nil},
		{"fits", "one two", 10, []string{"one two"}},
		{"exact", "aaaa bbbbb", 10, []string{"aaaa bbbbb"}},
		{"split", "aaaa bbbbb c", 10, []string{"aaaa bbbbb", "c"}},
		{"long word alone", "hi supercalifragilistic yo", 5, []string{"hi", "supercalifragilistic", "yo"}},
		{"whitespace collapsed", "  a \n b\t c  ", 100, []string{"a b c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkText(tt.text, tt.maxLen)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("ChunkText(%q, %d) = %q, want %q", tt.text, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestChunkTextBound(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 200)
	for _, c := range ChunkText(text, 64) {
		if len(c) > 64 {
			t.Fatalf("chunk of %d bytes exceeds 64: %q", len(c), c)
		}
	}
	if got := strings.Join(ChunkText(text, 64), " "); got != strings.TrimSpace(text) {
		t.Error("chunks do not reassemble to the original words")
	}
}

func TestPrepareForTraining(t *testing.T) {
	b := &engine.Batch{Results: []engine.TranscriptResult{
		engine.Succeeded("a", "dQw4w9WgXcQ", engine.Transcript{Segments: []engine.Segment{
			{Text: "one two three"}, {Text: "four five"},
		}}, 1),
		engine.Failed("b", "", engine.ErrInvalidReference, 0),
	}}
	recs := PrepareForTraining(b, 9)
	want := []TrainingRecord{
		{VideoID: "dQw4w9WgXcQ", ChunkIndex: 0, Text: "one two", WordCount: 2},
		{VideoID: "dQw4w9WgXcQ", ChunkIndex: 1, Text: "three", WordCount: 1},
		{VideoID: "dQw4w9WgXcQ", ChunkIndex: 2, Text: "four five", WordCount: 2},
	}
	if len(recs) != len(want) {
		t.Fatalf("got %+v, want %+v", recs, want)
	}
	for i := range want {
		if recs[i] != want[i] {
			t.Errorf("record %d = %+v, want %+v", i, recs[i], want[i])
		}
	}
}
