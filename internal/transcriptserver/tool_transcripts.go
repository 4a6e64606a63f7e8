package transcriptserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/anatolykoptev/go_transcript/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type TranscriptsInput struct {
	URLs      []string `json:"urls" jsonschema:"YouTube video or channel URLs, youtu.be links or 11-character video IDs"`
	Format    string   `json:"format,omitempty" jsonschema:"Output format: json, txt or csv (default json)"`
	Languages []string `json:"languages,omitempty" jsonschema:"Caption language preference, most preferred first (default en)"`
	Summarize bool     `json:"summarize,omitempty" jsonschema:"Add a short LLM summary to each transcript"`
}

type TranscriptsOutput struct {
	BatchID       string                    `json:"batch_id"`
	Format        string                    `json:"format"`
	Total         int                       `json:"total"`
	Succeeded     int                       `json:"succeeded"`
	Failed        int                       `json:"failed"`
	SuggestedPath string                    `json:"suggested_path"`
	Results       []engine.TranscriptResult `json:"results"`
	Document      string                    `json:"document"`
}

func registerTranscripts(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_transcripts",
		Description: "Extract timed transcripts from a batch of YouTube videos (watch, youtu.be, shorts, embed URLs, bare video IDs) or channels (recent videos). Each input yields a success or failed result with a reason; one bad video never fails the batch. Returns the results plus the batch formatted as json, txt or csv.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input TranscriptsInput) (*mcp.CallToolResult, TranscriptsOutput, error) {
		if len(input.URLs) == 0 {
			return nil, TranscriptsOutput{}, errors.New("urls is required")
		}
		format, err := engine.ParseFormat(input.Format, engine.Cfg.DefaultFormat)
		if err != nil {
			return nil, TranscriptsOutput{}, err
		}

		langs := toolutil.NormLangs(input.Languages, engine.Cfg.Languages)
		x := newExtractor(langs, input.Summarize)

		var batch *engine.Batch
		err = engine.TrackOperation(ctx, "youtube_transcripts", 2*time.Minute, func(ctx context.Context) error {
			var err error
			batch, err = x.Extract(ctx, input.URLs, format)
			return err
		})
		if err != nil {
			return nil, TranscriptsOutput{}, fmt.Errorf("youtube_transcripts: %w", err)
		}

		doc, err := transcripts.Format(batch, format)
		if err != nil {
			return nil, TranscriptsOutput{}, fmt.Errorf("youtube_transcripts: %w", err)
		}

		ok, failed := batch.Counts()
		slog.Info("youtube_transcripts done",
			slog.String("batch", batch.ID),
			slog.Int("ok", ok),
			slog.Int("failed", failed),
		)
		return nil, TranscriptsOutput{
			BatchID:       batch.ID,
			Format:        string(format),
			Total:         batch.Len(),
			Succeeded:     ok,
			Failed:        failed,
			SuggestedPath: transcripts.OutputPath(engine.Cfg.OutputDir, batch.ID, format),
			Results:       batch.Results,
			Document:      string(doc),
		}, nil
	})
}
