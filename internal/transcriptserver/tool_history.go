package transcriptserver

import (
	"context"
	"errors"
	"fmt"

	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/anatolykoptev/go_transcript/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type HistoryInput struct {
	BatchID string `json:"batch_id,omitempty" jsonschema:"Batch ID to list items for; empty lists recent batches"`
	Limit   int    `json:"limit,omitempty" jsonschema:"Max batches to list (default 20, max 100)"`
}

type HistoryOutput struct {
	Batches []transcripts.BatchSummary `json:"batches,omitempty"`
	BatchID string                     `json:"batch_id,omitempty"`
	Items   []transcripts.HistoryItem  `json:"items,omitempty"`
	Total   int                        `json:"total"`
}

func registerHistory(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "transcript_history",
		Description: "List past youtube_transcripts batches (newest first) with success/failure counts, or the per-video items of one batch including failure reasons and a BLAKE3 digest of each transcript's text.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
		store := transcripts.GetStore()
		if store == nil {
			return nil, HistoryOutput{}, errors.New("transcript history is disabled")
		}

		if input.BatchID != "" {
			items, err := store.BatchItems(ctx, input.BatchID)
			if err != nil {
				return nil, HistoryOutput{}, fmt.Errorf("transcript_history: %w", err)
			}
			if len(items) == 0 {
				return nil, HistoryOutput{}, fmt.Errorf("transcript_history: batch %q not found", input.BatchID)
			}
			return nil, HistoryOutput{BatchID: input.BatchID, Items: items, Total: len(items)}, nil
		}

		batches, err := store.ListBatches(ctx, toolutil.ClampLimit(input.Limit, 20, 100))
		if err != nil {
			return nil, HistoryOutput{}, fmt.Errorf("transcript_history: %w", err)
		}
		return nil, HistoryOutput{Batches: batches, Total: len(batches)}, nil
	})
}
