package transcripts

import (
	"strings"

	"github.com/anatolykoptev/go_transcript/internal/engine"
)

// DefaultChunkLength is the chunk size in bytes used when none is given.
const DefaultChunkLength = 512

// TrainingRecord is one chunk of one transcript.
type TrainingRecord struct {
	VideoID    string `json:"video_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	WordCount  int    `json:"word_count"`
}

// ChunkText packs whitespace-separated words greedily into chunks of at most
// maxLen bytes. A single word longer than maxLen becomes its own chunk.
func ChunkText(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = DefaultChunkLength
	}
	var chunks []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > maxLen {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// PrepareForTraining chunks the full text of every successful result.
func PrepareForTraining(b *engine.Batch, maxLen int) []TrainingRecord {
	var out []TrainingRecord
	for _, r := range b.Results {
		if !r.OK() {
			continue
		}
		for i, chunk := range ChunkText(r.FullText, maxLen) {
			out = append(out, TrainingRecord{
				VideoID:    r.VideoID,
				ChunkIndex: i,
				Text:       chunk,
				WordCount:  len(strings.Fields(chunk)),
			})
		}
	}
	return out
}
