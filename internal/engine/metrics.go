package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"
)

// Metrics tracks operational counters across the engine.
var metrics struct {
	Batches            atomic.Int64
	BatchesRejected    atomic.Int64
	TranscriptRequests atomic.Int64
	TranscriptSuccess  atomic.Int64
	TranscriptFailures atomic.Int64
	FetchAttempts      atomic.Int64
	ChannelResolves    atomic.Int64
	LLMCalls           atomic.Int64
	LLMErrors          atomic.Int64
}

// GetMetrics returns a snapshot of all metrics including cache stats.
func GetMetrics() map[string]int64 {
	hits, misses := CacheStats()
	return map[string]int64{
		"batches":             metrics.Batches.Load(),
		"batches_rejected":    metrics.BatchesRejected.Load(),
		"transcript_requests": metrics.TranscriptRequests.Load(),
		"transcript_success":  metrics.TranscriptSuccess.Load(),
		"transcript_failures": metrics.TranscriptFailures.Load(),
		"fetch_attempts":      metrics.FetchAttempts.Load(),
		"channel_resolves":    metrics.ChannelResolves.Load(),
		"llm_calls":           metrics.LLMCalls.Load(),
		"llm_errors":          metrics.LLMErrors.Load(),
		"cache_hits":          hits,
		"cache_misses":        misses,
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"batches", "batches_rejected",
		"transcript_requests", "transcript_success", "transcript_failures",
		"fetch_attempts", "channel_resolves",
		"llm_calls", "llm_errors",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the transcripts/ and sources/ sub-packages.
func IncrBatches()         { metrics.Batches.Add(1) }
func IncrBatchesRejected() { metrics.BatchesRejected.Add(1) }
func IncrFetchAttempts()   { metrics.FetchAttempts.Add(1) }
func IncrChannelResolves() { metrics.ChannelResolves.Add(1) }

// IncrTranscript counts one finished batch item.
func IncrTranscript(ok bool) {
	metrics.TranscriptRequests.Add(1)
	if ok {
		metrics.TranscriptSuccess.Add(1)
	} else {
		metrics.TranscriptFailures.Add(1)
	}
}

// TrackOperation logs a warning if an operation takes longer than threshold.
func TrackOperation(ctx context.Context, name string, threshold time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if elapsed > threshold {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
