// Package transcripts turns lists of YouTube references into formatted
// transcript batches, and keeps a history of finished batches.
package transcripts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/anatolykoptev/go_transcript/internal/engine/sources"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Fetcher returns the transcript of one video. A single attempt; the
// Extractor owns retries and timeouts.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string) (engine.Transcript, error)
}

// ChannelResolver expands a channel reference into recent video IDs.
type ChannelResolver interface {
	ChannelVideos(ctx context.Context, ref engine.VideoReference, limit int) ([]string, error)
}

// Extractor runs batches sequentially against a Fetcher.
type Extractor struct {
	fetcher   Fetcher
	channels  ChannelResolver
	store     Store
	limiter   *rate.Limiter
	cfg       engine.Config
	summarize bool
	useCache  bool
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithConfig replaces the engine configuration snapshot.
func WithConfig(c engine.Config) Option {
	return func(e *Extractor) { e.cfg = c }
}

// WithChannelResolver enables channel expansion.
func WithChannelResolver(r ChannelResolver) Option {
	return func(e *Extractor) { e.channels = r }
}

// WithStore records every finished batch in s.
func WithStore(s Store) Option {
	return func(e *Extractor) { e.store = s }
}

// WithSummaries adds an LLM summary to successful results when an LLM is configured.
func WithSummaries(on bool) Option {
	return func(e *Extractor) { e.summarize = on }
}

// WithCache toggles the shared transcript cache. On by default.
func WithCache(on bool) Option {
	return func(e *Extractor) { e.useCache = on }
}

// WithLimiter paces fetches with l instead of a limiter private to this
// Extractor. Pass engine.RequestLimiter() to share the process budget.
func WithLimiter(l *rate.Limiter) Option {
	return func(e *Extractor) { e.limiter = l }
}

// New builds an Extractor from engine.Cfg. If f also resolves channels it is
// used as the ChannelResolver unless one is given.
func New(f Fetcher, opts ...Option) *Extractor {
	e := &Extractor{fetcher: f, cfg: *engine.Cfg, useCache: true}
	if r, ok := f.(ChannelResolver); ok {
		e.channels = r
	}
	for _, o := range opts {
		o(e)
	}
	if e.limiter == nil {
		e.limiter = engine.NewLimiter(e.cfg.RequestsPerSecond)
	}
	return e
}

// Extract resolves and fetches every input in order. Per-item failures are
// recorded in the batch; only invalid arguments return an error, before any
// network call.
func (e *Extractor) Extract(ctx context.Context, urls []string, format engine.Format) (*engine.Batch, error) {
	f, err := engine.ParseFormat(string(format), e.cfg.DefaultFormat)
	if err != nil {
		engine.IncrBatchesRejected()
		return nil, err
	}
	if len(urls) > e.cfg.MaxBatchSize {
		engine.IncrBatchesRejected()
		return nil, fmt.Errorf("%w: %d inputs, max %d", engine.ErrBatchTooLarge, len(urls), e.cfg.MaxBatchSize)
	}
	engine.IncrBatches()

	b := &engine.Batch{
		ID:        uuid.NewString(),
		Format:    f,
		StartedAt: time.Now().UTC(),
		Results:   make([]engine.TranscriptResult, 0, len(urls)),
	}
	run := &batchRun{Extractor: e, seen: make(map[string]engine.TranscriptResult), spare: e.cfg.MaxBatchSize - len(urls)}

	for _, raw := range urls {
		b.Results = append(b.Results, run.resolve(ctx, strings.TrimSpace(raw))...)
	}
	b.FinishedAt = time.Now().UTC()

	for _, r := range b.Results {
		engine.IncrTranscript(r.OK())
	}
	ok, failed := b.Counts()
	slog.Info("batch finished",
		slog.String("batch", b.ID),
		slog.Int("inputs", len(urls)),
		slog.Int("ok", ok),
		slog.Int("failed", failed),
		slog.Duration("elapsed", b.FinishedAt.Sub(b.StartedAt)),
	)

	if e.store != nil {
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		if err := e.store.SaveBatch(saveCtx, b); err != nil {
			slog.Warn("history: save batch failed", slog.String("batch", b.ID), slog.Any("error", err))
		}
		cancel()
	}
	return b, nil
}

// batchRun is the per-call state of one Extract.
type batchRun struct {
	*Extractor
	seen  map[string]engine.TranscriptResult // video ID → first result
	spare int                                // slots left for channel expansion
}

// resolve returns the results for one input: one for a video, up to
// ChannelVideoLimit for a channel.
func (r *batchRun) resolve(ctx context.Context, input string) []engine.TranscriptResult {
	ref, err := sources.ParseReference(input)
	if err != nil {
		return []engine.TranscriptResult{engine.Failed(input, "", err, 0)}
	}
	if ref.Kind == engine.RefVideo {
		return []engine.TranscriptResult{r.video(ctx, input, ref.VideoID)}
	}

	ids, err := r.expand(ctx, ref)
	if err != nil {
		slog.Warn("channel expansion failed", slog.String("channel", ref.Channel), slog.Any("error", err))
		return []engine.TranscriptResult{engine.Failed(input, "", err, 0)}
	}
	out := make([]engine.TranscriptResult, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.video(ctx, input, id))
	}
	return out
}

func (r *batchRun) expand(ctx context.Context, ref engine.VideoReference) ([]string, error) {
	if r.channels == nil {
		return nil, fmt.Errorf("%w: channel references are not supported", engine.ErrInvalidReference)
	}
	limit := min(r.cfg.ChannelVideoLimit, r.spare+1)
	ids, err := engine.RetryDo(ctx, r.cfg.Retry, func() ([]string, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		if err := r.limiter.Wait(callCtx); err != nil {
			return nil, err
		}
		return r.channels.ChannelVideos(callCtx, ref, limit)
	})
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("channel %s: no videos found", ref.Channel)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	r.spare -= len(ids) - 1
	return ids, nil
}

// video fetches one video, reusing an earlier result for the same ID.
func (r *batchRun) video(ctx context.Context, input, videoID string) engine.TranscriptResult {
	if prev, ok := r.seen[videoID]; ok {
		prev.Input = input
		return prev
	}
	res := r.fetch(ctx, input, videoID)
	r.seen[videoID] = res
	return res
}

func (r *batchRun) fetch(ctx context.Context, input, videoID string) engine.TranscriptResult {
	key := engine.TranscriptCacheKey(videoID, r.cfg.Languages)
	if r.useCache {
		if t, ok := engine.CacheGetTranscript(ctx, key); ok {
			return r.withSummary(ctx, engine.Succeeded(input, videoID, t, 0))
		}
	}

	attempts := 0
	t, err := engine.RetryDo(ctx, r.cfg.Retry, func() (engine.Transcript, error) {
		attempts++
		engine.IncrFetchAttempts()
		callCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
		if err := r.limiter.Wait(callCtx); err != nil {
			return engine.Transcript{}, err
		}
		t, err := r.fetcher.Fetch(callCtx, videoID)
		if err != nil {
			slog.Debug("fetch attempt failed", slog.String("id", videoID), slog.Int("attempt", attempts), slog.Any("error", err))
			return engine.Transcript{}, err
		}
		return t, nil
	})
	if err == nil {
		t.Segments = compactSegments(t.Segments)
		if len(t.Segments) == 0 {
			err = engine.ErrNoTranscript
		}
	}
	if err != nil {
		slog.Warn("transcript failed", slog.String("id", videoID), slog.Int("attempts", attempts), slog.Any("error", err))
		return engine.Failed(input, videoID, err, attempts)
	}

	if r.useCache {
		engine.CacheSetTranscript(ctx, key, t)
	}
	return r.withSummary(ctx, engine.Succeeded(input, videoID, t, attempts))
}

// withSummary attaches an LLM summary. Failures are logged, never fatal.
func (r *batchRun) withSummary(ctx context.Context, res engine.TranscriptResult) engine.TranscriptResult {
	if !r.summarize || !engine.SummariesEnabled() || res.FullText == "" {
		return res
	}
	summary, err := engine.SummarizeTranscript(ctx, res.FullText)
	if err != nil {
		slog.Warn("summary failed", slog.String("id", res.VideoID), slog.Any("error", err))
		return res
	}
	res.Summary = summary
	return res
}

// compactSegments drops segments without text.
func compactSegments(segs []engine.Segment) []engine.Segment {
	out := segs[:0:0]
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text != "" {
			out = append(out, s)
		}
	}
	return out
}
