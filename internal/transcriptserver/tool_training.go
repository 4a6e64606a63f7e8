package transcriptserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/anatolykoptev/go_transcript/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type TrainingChunksInput struct {
	URLs           []string `json:"urls" jsonschema:"YouTube video or channel URLs or video IDs"`
	MaxChunkLength int      `json:"max_chunk_length,omitempty" jsonschema:"Max chunk size in bytes (default 512, max 8192)"`
	Languages      []string `json:"languages,omitempty" jsonschema:"Caption language preference (default en)"`
}

type TrainingChunksOutput struct {
	BatchID string                       `json:"batch_id"`
	Videos  int                          `json:"videos"`
	Skipped []engine.TranscriptResult    `json:"skipped,omitempty"`
	Count   int                          `json:"count"`
	Chunks  []transcripts.TrainingRecord `json:"chunks"`
}

func registerTrainingChunks(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "transcript_training_chunks",
		Description: "Extract YouTube transcripts and split each full text into word-aligned chunks of bounded length for dataset preparation. Returns one record per chunk (video_id, chunk_index, text, word_count); videos without a transcript are listed as skipped.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input TrainingChunksInput) (*mcp.CallToolResult, TrainingChunksOutput, error) {
		if len(input.URLs) == 0 {
			return nil, TrainingChunksOutput{}, errors.New("urls is required")
		}
		maxLen := toolutil.ClampLimit(input.MaxChunkLength, transcripts.DefaultChunkLength, 8192)

		x := newExtractor(toolutil.NormLangs(input.Languages, engine.Cfg.Languages), false)
		batch, err := x.Extract(ctx, input.URLs, engine.FormatJSON)
		if err != nil {
			return nil, TrainingChunksOutput{}, fmt.Errorf("transcript_training_chunks: %w", err)
		}

		chunks := transcripts.PrepareForTraining(batch, maxLen)
		if chunks == nil {
			chunks = []transcripts.TrainingRecord{}
		}
		out := TrainingChunksOutput{BatchID: batch.ID, Count: len(chunks), Chunks: chunks}
		for _, r := range batch.Results {
			if r.OK() {
				out.Videos++
			} else {
				out.Skipped = append(out.Skipped, r)
			}
		}
		slog.Info("transcript_training_chunks done",
			slog.String("batch", batch.ID),
			slog.Int("videos", out.Videos),
			slog.Int("chunks", out.Count),
		)
		return nil, out, nil
	})
}
