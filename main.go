// go_transcript is a bulk YouTube transcript extraction MCP server.
//
// Exposes three MCP tools: youtube_transcripts, transcript_history,
// transcript_training_chunks. Runs as HTTP MCP server or stdio transport.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-kit/llm"
	"github.com/anatolykoptev/go-mcpserver"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/transcripts"
	"github.com/anatolykoptev/go_transcript/internal/transcriptserver"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	version = "dev"
	mcpPort = env.Str("MCP_PORT", "8893")
)

func main() {
	initEngine()
	defer closeHistory()

	slog.Info("starting go_transcript",
		slog.String("port", mcpPort),
	)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_transcript",
		Version: version,
	}, nil)

	transcriptserver.RegisterTools(server)
	slog.Info("tools registered", slog.Int("count", transcriptserver.ToolCount))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_transcript",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 600 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		slog.Error("server failed", slog.Any("error", err))
	}
}

// loadConfig layers the optional YAML file under environment overrides.
func loadConfig() engine.Config {
	c := engine.DefaultConfig()
	if path := env.Str("TRANSCRIPT_CONFIG", ""); path != "" {
		fc, err := engine.LoadFile(path, c)
		if err != nil {
			slog.Warn("config file ignored", slog.String("path", path), slog.Any("error", err))
		} else {
			c = fc
			slog.Info("config file loaded", slog.String("path", path))
		}
	}

	c.DefaultFormat = engine.Format(env.Str("DEFAULT_FORMAT", string(c.DefaultFormat)))
	c.MaxBatchSize = env.Int("MAX_BATCH_SIZE", c.MaxBatchSize)
	c.OutputDir = env.Str("OUTPUT_DIR", c.OutputDir)
	c.Timeout = env.Duration("API_TIMEOUT", c.Timeout)
	c.Retry.MaxRetries = env.Int("RETRY_COUNT", c.Retry.MaxRetries)
	c.Retry.InitialWait = env.Duration("RETRY_INITIAL_WAIT", c.Retry.InitialWait)
	c.Retry.MaxWait = env.Duration("RETRY_MAX_WAIT", c.Retry.MaxWait)
	if langs := env.List("TRANSCRIPT_LANGS", ""); len(langs) > 0 {
		c.Languages = langs
	}
	c.ChannelVideoLimit = env.Int("CHANNEL_VIDEO_LIMIT", c.ChannelVideoLimit)
	c.RequestsPerSecond = env.Float("REQUESTS_PER_SECOND", c.RequestsPerSecond)
	c.CacheTTL = env.Duration("CACHE_TTL", c.CacheTTL)
	c.CacheMaxEntries = env.Int("CACHE_MAX_ENTRIES", c.CacheMaxEntries)
	c.HistoryDir = env.Str("HISTORY_DIR", c.HistoryDir)
	if c.HistoryDir == "" {
		c.HistoryDir = transcripts.DefaultHistoryDir()
	}
	c.DatabaseURL = env.Str("DATABASE_URL", c.DatabaseURL)
	c.LLMAPIBase = env.Str("LLM_API_BASE", c.LLMAPIBase)
	c.LLMAPIKey = env.Str("LLM_API_KEY", c.LLMAPIKey)
	c.LLMModel = env.Str("LLM_MODEL", c.LLMModel)
	c.HTTPClient = &http.Client{
		Timeout: c.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}
	return c
}

func initEngine() {
	c := loadConfig()
	if err := c.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var opts []stealth.ClientOption
	// Page fetches share the per-attempt timeout.
	opts = append(opts, stealth.WithTimeout(max(1, int(c.Timeout/time.Second))))

	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			slog.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			slog.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		slog.Warn("stealth client init failed, using net/http for pages", slog.Any("error", err))
	} else {
		c.BrowserClient = bc
		slog.Info("stealth browser client initialized")
	}

	// Summaries are optional; without a key the summarize flag is a no-op.
	if c.LLMAPIKey != "" {
		c.LLMClient = llm.NewClient(c.LLMAPIBase, c.LLMAPIKey, c.LLMModel,
			llm.WithFallbackKeys(env.List("LLM_API_KEY_FALLBACKS", "")),
			llm.WithMaxTokens(env.Int("LLM_MAX_TOKENS", 1024)),
			llm.WithTemperature(env.Float("LLM_TEMPERATURE", 0.3)),
			llm.WithHTTPClient(&http.Client{Timeout: 60 * time.Second}),
		)
	}

	engine.Init(c)
	engine.InitCache(env.Str("REDIS_URL", ""), c.CacheTTL, c.CacheMaxEntries,
		env.Duration("CACHE_CLEANUP_INTERVAL", 300*time.Second))

	initHistory(c)
}

// initHistory opens PostgreSQL when DATABASE_URL is set, SQLite otherwise.
// History is best-effort: a failure only disables the history tool.
func initHistory(c engine.Config) {
	if c.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		pg, err := transcripts.ConnectPostgres(ctx, c.DatabaseURL)
		if err == nil {
			transcripts.SetStore(pg)
			return
		}
		slog.Warn("history postgres init failed, falling back to sqlite", slog.Any("error", err))
	}

	s, err := transcripts.OpenSQLite(c.HistoryDir)
	if err != nil {
		slog.Warn("history disabled", slog.Any("error", err))
		return
	}
	transcripts.SetStore(s)
	slog.Info("history sqlite opened", slog.String("dir", c.HistoryDir))
}

func closeHistory() {
	if s := transcripts.GetStore(); s != nil {
		if err := s.Close(); err != nil {
			slog.Warn("history close failed", slog.Any("error", err))
		}
	}
}
