package transcriptserver

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
)

// ToolCount is the number of tools RegisterTools adds.
const ToolCount = 3

// newFetcher builds the transcript source for one call. Replaced in tests.
var newFetcher = func(c engine.Config) transcripts.Fetcher {
	return sources.NewYouTube(&c)
}

// RegisterTools registers all transcript tools on the given MCP server:
// youtube_transcripts, transcript_history, transcript_training_chunks.
func RegisterTools(server *mcp.Server) {
	registerTranscripts(server)
	registerHistory(server)
	registerTrainingChunks(server)
}

// newExtractor builds an Extractor for the given caption languages.
func newExtractor(langs []string, summarize bool) *transcripts.Extractor {
	c := *engine.Cfg
	c.Languages = langs
	opts := []transcripts.Option{
		transcripts.WithConfig(c),
		transcripts.WithSummaries(summarize),
		transcripts.WithLimiter(engine.RequestLimiter()),
	}
	if s := transcripts.GetStore(); s != nil {
		opts = append(opts, transcripts.WithStore(s))
	}
	return transcripts.New(newFetcher(c), opts...)
}
