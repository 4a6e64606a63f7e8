package engine

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/llm"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration, injected from main.
type Config struct {
	DefaultFormat     Format
	MaxBatchSize      int
	OutputDir         string
	Timeout           time.Duration // per fetch attempt
	Retry             RetryConfig
	Languages         []string // caption language preference, most preferred first
	ChannelVideoLimit int
	RequestsPerSecond float64 // 0 = unlimited
	CacheTTL          time.Duration
	CacheMaxEntries   int
	HistoryDir        string
	DatabaseURL       string // non-empty = PostgreSQL history instead of SQLite
	LLMAPIBase        string
	LLMAPIKey         string
	LLMModel          string
	MaxSummaryChars   int
	HTTPClient        *http.Client
	BrowserClient     *BrowserClient // nil = plain net/http page fetches
	LLMClient         *llm.Client    // nil = summaries disabled
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DefaultFormat:     FormatJSON,
		MaxBatchSize:      50,
		OutputDir:         "transcripts",
		Timeout:           30 * time.Second,
		Retry:             DefaultRetryConfig,
		Languages:         []string{"en"},
		ChannelVideoLimit: 10,
		RequestsPerSecond: 2,
		CacheTTL:          6 * time.Hour,
		CacheMaxEntries:   500,
		LLMAPIBase:        "https://generativelanguage.googleapis.com/v1beta/openai",
		LLMModel:          "gemini-2.5-flash",
		MaxSummaryChars:   8000,
		HTTPClient:        &http.Client{Timeout: 30 * time.Second},
	}
}

// fileConfig is the YAML layer. Zero values leave the defaults alone.
type fileConfig struct {
	DefaultFormat     string   `yaml:"default_format"`
	MaxBatchSize      int      `yaml:"max_batch_size"`
	OutputDir         string   `yaml:"output_dir"`
	Timeout           string   `yaml:"timeout"`
	RetryCount        *int     `yaml:"retry_count"`
	RetryInitialWait  string   `yaml:"retry_initial_wait"`
	RetryMaxWait      string   `yaml:"retry_max_wait"`
	Languages         []string `yaml:"languages"`
	ChannelVideoLimit int      `yaml:"channel_video_limit"`
	RequestsPerSecond *float64 `yaml:"requests_per_second"`
	CacheTTL          string   `yaml:"cache_ttl"`
	CacheMaxEntries   int      `yaml:"cache_max_entries"`
	HistoryDir        string   `yaml:"history_dir"`
	LLMModel          string   `yaml:"llm_model"`
}

// LoadFile overlays the YAML file at path onto base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}

	c := base
	if fc.DefaultFormat != "" {
		c.DefaultFormat = Format(fc.DefaultFormat)
	}
	if fc.MaxBatchSize != 0 {
		c.MaxBatchSize = fc.MaxBatchSize
	}
	if fc.OutputDir != "" {
		c.OutputDir = fc.OutputDir
	}
	if fc.RetryCount != nil {
		c.Retry.MaxRetries = *fc.RetryCount
	}
	if fc.RequestsPerSecond != nil {
		c.RequestsPerSecond = *fc.RequestsPerSecond
	}
	if len(fc.Languages) > 0 {
		c.Languages = fc.Languages
	}
	if fc.ChannelVideoLimit != 0 {
		c.ChannelVideoLimit = fc.ChannelVideoLimit
	}
	if fc.CacheMaxEntries != 0 {
		c.CacheMaxEntries = fc.CacheMaxEntries
	}
	if fc.HistoryDir != "" {
		c.HistoryDir = fc.HistoryDir
	}
	if fc.LLMModel != "" {
		c.LLMModel = fc.LLMModel
	}

	durations := []struct {
		raw string
		dst *time.Duration
	}{
		{fc.Timeout, &c.Timeout},
		{fc.RetryInitialWait, &c.Retry.InitialWait},
		{fc.RetryMaxWait, &c.Retry.MaxWait},
		{fc.CacheTTL, &c.CacheTTL},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return base, fmt.Errorf("parse config %s: %w", path, err)
		}
		*d.dst = v
	}
	return c, nil
}

// Validate rejects configurations the extractor cannot run with.
func (c Config) Validate() error {
	var errs []error
	if _, err := ParseFormat(string(c.DefaultFormat), ""); err != nil {
		errs = append(errs, fmt.Errorf("default format: %w", err))
	}
	if c.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("max batch size must be positive, got %d", c.MaxBatchSize))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry count must not be negative, got %d", c.Retry.MaxRetries))
	}
	if c.ChannelVideoLimit <= 0 {
		errs = append(errs, fmt.Errorf("channel video limit must be positive, got %d", c.ChannelVideoLimit))
	}
	if c.RequestsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("requests per second must not be negative, got %g", c.RequestsPerSecond))
	}
	return errors.Join(errs...)
}

var cfg = DefaultConfig()

// Cfg exposes the engine configuration for sub-packages (transcripts, sources).
// Always points to the current cfg value.
var Cfg = &cfg

var limiter = NewLimiter(cfg.RequestsPerSecond)

// Init initializes the engine with the given configuration.
func Init(c Config) {
	cfg = c
	Cfg = &cfg
	limiter = NewLimiter(c.RequestsPerSecond)
}

// NewLimiter paces requests at rps per second. Zero means unlimited.
func NewLimiter(rps float64) *rate.Limiter {
	if rps > 0 {
		return rate.NewLimiter(rate.Limit(rps), 1)
	}
	return rate.NewLimiter(rate.Inf, 0)
}

// RequestLimiter returns the process-wide limiter set up by Init. Every
// extraction shares it, so concurrent tool calls stay within one budget.
func RequestLimiter() *rate.Limiter { return limiter }
