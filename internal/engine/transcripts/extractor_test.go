package transcripts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/anatolykoptev/go_transcript/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// fakeFetcher serves canned transcripts and errors, counting calls per ID.
type fakeFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	errs     map[string]error // returned on every call
	failures map[string]int   // transient 503s before success
	channels map[string][]string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls:    make(map[string]int),
		errs:     make(map[string]error),
		failures: make(map[string]int),
		channels: make(map[string][]string),
	}
}

func (f *fakeFetcher) Fetch(_ context.Context, id string) (engine.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err, ok := f.errs[id]; ok {
		return engine.Transcript{}, err
	}
	if f.failures[id] > 0 {
		f.failures[id]--
		return engine.Transcript{}, &engine.StatusError{StatusCode: 503}
	}
	return engine.Transcript{
		Language: "en",
		Segments: []engine.Segment{
			{Text: "hello from " + id, Start: 0, Duration: 1.5},
			{Text: "  ", Start: 1.5, Duration: 0.5},
			{Text: `quotes "and" <tags> & ampersands`, Start: 2, Duration: 2.25},
		},
	}, nil
}

func (f *fakeFetcher) ChannelVideos(_ context.Context, ref engine.VideoReference, limit int) ([]string, error) {
	ids, ok := f.channels[ref.Channel]
	if !ok {
		return nil, fmt.Errorf("%w: channel %s not found", engine.ErrInvalidReference, ref.Channel)
	}
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (f *fakeFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func testConfig() engine.Config {
	c := engine.DefaultConfig()
	c.Retry = engine.RetryConfig{MaxRetries: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2}
	c.RequestsPerSecond = 0
	c.Timeout = time.Second
	return c
}

func newTestExtractor(f *fakeFetcher, opts ...Option) *Extractor {
	return New(f, append([]Option{WithConfig(testConfig()), WithCache(false)}, opts...)...)
}

func videoID(i int) string {
	return fmt.Sprintf("vid%08d", i)
}

func TestExtractBatchLengthMatchesInput(t *testing.T) {
	for _, n := range []int{0, 1, 7, 50} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			f := newFakeFetcher()
			urls := make([]string, n)
			for i := range urls {
				switch i % 3 {
				case 0:
					urls[i] = "https://www.youtube.com/watch?v=" + videoID(i)
				case 1:
					urls[i] = "https://youtu.be/" + videoID(i)
				default:
					urls[i] = "not a url " + videoID(i)
				}
			}
			b, err := newTestExtractor(f).Extract(context.Background(), urls, engine.FormatJSON)
			require.NoError(t, err)
			require.Equal(t, n, b.Len())
			for i, r := range b.Results {
				assert.Equal(t, urls[i], r.Input, "order preserved")
			}
			assert.NotEmpty(t, b.ID)
		})
	}
}

func TestExtractSuccessResult(t *testing.T) {
	f := newFakeFetcher()
	b, err := newTestExtractor(f).Extract(context.Background(), []string{"dQw4w9WgXcQ"}, engine.FormatTXT)
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())

	r := b.Results[0]
	assert.Equal(t, engine.StatusSuccess, r.Status)
	assert.Equal(t, "dQw4w9WgXcQ", r.VideoID)
	assert.Equal(t, 2, r.TotalSegments, "blank segment dropped")
	assert.Equal(t, `hello from dQw4w9WgXcQ quotes "and" <tags> & ampersands`, r.FullText)
	assert.Equal(t, 1, r.Attempts)
	assert.Equal(t, engine.FormatTXT, b.Format)
}

func TestExtractNoCaptionsIsRecorded(t *testing.T) {
	f := newFakeFetcher()
	f.errs["nocaptions1"] = fmt.Errorf("watch page: %w", engine.ErrNoTranscript)

	b, err := newTestExtractor(f).Extract(context.Background(), []string{"nocaptions1", "dQw4w9WgXcQ"}, engine.FormatJSON)
	require.NoError(t, err)
	require.Equal(t, 2, b.Len())

	failed := b.Results[0]
	assert.Equal(t, engine.StatusFailed, failed.Status)
	assert.Equal(t, engine.ReasonNoTranscript, failed.Reason)
	assert.Equal(t, "nocaptions1", failed.VideoID)
	assert.NotEmpty(t, failed.Error)
	assert.Equal(t, 1, failed.Attempts, "definitive errors are not retried")
	assert.True(t, b.Results[1].OK())

	ok, nok := b.Counts()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, nok)
}

func TestExtractInvalidReference(t *testing.T) {
	f := newFakeFetcher()
	b, err := newTestExtractor(f).Extract(context.Background(), []string{"https://example.com/watch?v=dQw4w9WgXcQ"}, engine.FormatJSON)
	require.NoError(t, err)
	require.Equal(t, 1, b.Len())
	assert.Equal(t, engine.ReasonInvalidURL, b.Results[0].Reason)
	assert.Equal(t, 0, b.Results[0].Attempts)
	assert.Zero(t, f.totalCalls())
}

func TestExtractRejectsOversizeBatch(t *testing.T) {
	f := newFakeFetcher()
	urls := make([]string, 51)
	for i := range urls {
		urls[i] = videoID(i)
	}
	b, err := newTestExtractor(f).Extract(context.Background(), urls, engine.FormatJSON)
	require.ErrorIs(t, err, engine.ErrBatchTooLarge)
	assert.Nil(t, b)
	assert.Zero(t, f.totalCalls(), "no fetch before validation")
}

func TestExtractRejectsUnsupportedFormat(t *testing.T) {
	f := newFakeFetcher()
	_, err := newTestExtractor(f).Extract(context.Background(), []string{"dQw4w9WgXcQ"}, engine.Format("xml"))
	require.ErrorIs(t, err, engine.ErrUnsupportedFormat)
	assert.Zero(t, f.totalCalls())
}

func TestExtractRetryBound(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		wantOK     bool
		wantCalls  int
	}{
		{"recovers", 2, 3, true, 3},
		{"recovers on last try", 3, 3, true, 4},
		{"exhausted", 10, 3, false, 4},
		{"no retries", 1, 0, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeFetcher()
			f.failures["dQw4w9WgXcQ"] = tt.failures
			c := testConfig()
			c.Retry.MaxRetries = tt.maxRetries

			b, err := newTestExtractor(f, WithConfig(c)).Extract(context.Background(), []string{"dQw4w9WgXcQ"}, "")
			require.NoError(t, err)
			r := b.Results[0]
			assert.Equal(t, tt.wantOK, r.OK())
			assert.Equal(t, tt.wantCalls, r.Attempts)
			assert.Equal(t, tt.wantCalls, f.totalCalls())
			assert.LessOrEqual(t, r.Attempts, tt.maxRetries+1)
			if !tt.wantOK {
				assert.Equal(t, engine.ReasonFetchError, r.Reason)
			}
		})
	}
}

func TestExtractTimeoutReason(t *testing.T) {
	f := newFakeFetcher()
	f.errs["slowvideo01"] = fmt.Errorf("fetch: %w", context.DeadlineExceeded)
	c := testConfig()
	c.Retry.MaxRetries = 1

	b, err := newTestExtractor(f, WithConfig(c)).Extract(context.Background(), []string{"slowvideo01"}, "")
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonTimeout, b.Results[0].Reason)
	assert.Equal(t, 2, b.Results[0].Attempts)
}

// blockingFetcher never answers; only the caller's deadline ends a call.
type blockingFetcher struct {
	mu    sync.Mutex
	calls int
}

func (f *blockingFetcher) Fetch(ctx context.Context, _ string) (engine.Transcript, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	<-ctx.Done()
	return engine.Transcript{}, ctx.Err()
}

func TestExtractEnforcesPerAttemptTimeout(t *testing.T) {
	f := &blockingFetcher{}
	c := testConfig()
	c.Timeout = 20 * time.Millisecond
	c.Retry.MaxRetries = 1

	start := time.Now()
	b, err := New(f, WithConfig(c), WithCache(false)).Extract(context.Background(), []string{"slowvideo01"}, "")
	elapsed := time.Since(start)
	require.NoError(t, err)

	r := b.Results[0]
	assert.False(t, r.OK())
	assert.Equal(t, engine.ReasonTimeout, r.Reason)
	assert.Equal(t, 2, r.Attempts)
	assert.Equal(t, 2, f.calls)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestExtractSharedLimiter(t *testing.T) {
	f := newFakeFetcher()
	c := testConfig()
	c.Timeout = 50 * time.Millisecond
	c.Retry.MaxRetries = 0
	shared := rate.NewLimiter(rate.Every(time.Hour), 1)

	first, err := newTestExtractor(f, WithConfig(c), WithLimiter(shared)).Extract(context.Background(), []string{"dQw4w9WgXcQ"}, "")
	require.NoError(t, err)
	assert.True(t, first.Results[0].OK())

	// The burst is spent; a second extractor on the same limiter must wait.
	second, err := newTestExtractor(f, WithConfig(c), WithLimiter(shared)).Extract(context.Background(), []string{"9bZkp7q19f0"}, "")
	require.NoError(t, err)
	assert.False(t, second.Results[0].OK())
	assert.Equal(t, 0, f.calls["9bZkp7q19f0"])

	// A private limiter is unaffected.
	third, err := newTestExtractor(f, WithConfig(c)).Extract(context.Background(), []string{"9bZkp7q19f0"}, "")
	require.NoError(t, err)
	assert.True(t, third.Results[0].OK())
}

func TestExtractDuplicatesFetchedOnce(t *testing.T) {
	f := newFakeFetcher()
	urls := []string{
		"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		"https://youtu.be/dQw4w9WgXcQ",
	}
	b, err := newTestExtractor(f).Extract(context.Background(), urls, "")
	require.NoError(t, err)
	require.Equal(t, 2, b.Len())
	assert.Equal(t, 1, f.calls["dQw4w9WgXcQ"])
	assert.Equal(t, urls[1], b.Results[1].Input)
	assert.Equal(t, b.Results[0].FullText, b.Results[1].FullText)
}

func TestExtractChannelExpansion(t *testing.T) {
	f := newFakeFetcher()
	f.channels["@gopher"] = []string{videoID(1), videoID(2), videoID(3), videoID(4)}
	c := testConfig()
	c.ChannelVideoLimit = 3

	b, err := newTestExtractor(f, WithConfig(c)).Extract(context.Background(),
		[]string{"https://www.youtube.com/@gopher", "https://www.youtube.com/@nobody"}, "")
	require.NoError(t, err)
	require.Equal(t, 4, b.Len())
	for i := range 3 {
		assert.Equal(t, videoID(i+1), b.Results[i].VideoID)
		assert.True(t, b.Results[i].OK())
		assert.Equal(t, "https://www.youtube.com/@gopher", b.Results[i].Input)
	}
	assert.Equal(t, engine.ReasonInvalidURL, b.Results[3].Reason)
}

func TestExtractChannelRespectsBatchCap(t *testing.T) {
	f := newFakeFetcher()
	f.channels["@gopher"] = []string{videoID(1), videoID(2), videoID(3), videoID(4)}
	c := testConfig()
	c.MaxBatchSize = 3
	c.ChannelVideoLimit = 10

	b, err := newTestExtractor(f, WithConfig(c)).Extract(context.Background(),
		[]string{"https://www.youtube.com/@gopher", "dQw4w9WgXcQ"}, "")
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, "dQw4w9WgXcQ", b.Results[2].VideoID)
}

func TestExtractUsesCache(t *testing.T) {
	engine.InitCache("", time.Minute, 10, time.Minute)
	f := newFakeFetcher()
	x := New(f, WithConfig(testConfig()))

	_, err := x.Extract(context.Background(), []string{"cachedvid01"}, "")
	require.NoError(t, err)
	b, err := x.Extract(context.Background(), []string{"cachedvid01"}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, f.calls["cachedvid01"])
	assert.True(t, b.Results[0].OK())
	assert.Equal(t, 0, b.Results[0].Attempts, "cache hits spend no attempts")
}

func TestExtractSavesHistory(t *testing.T) {
	s, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	f := newFakeFetcher()
	b, err := newTestExtractor(f, WithStore(s)).Extract(context.Background(), []string{"dQw4w9WgXcQ", "bad"}, "")
	require.NoError(t, err)

	items, err := s.BatchItems(context.Background(), b.ID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, TextDigest(b.Results[0].FullText), items[0].Digest)
	assert.Equal(t, string(engine.ReasonInvalidURL), items[1].Reason)
}

func TestJSONRoundTrip(t *testing.T) {
	f := newFakeFetcher()
	b, err := newTestExtractor(f).Extract(context.Background(), []string{"dQw4w9WgXcQ", "nope", "https://youtu.be/abcdefghijk"}, "")
	require.NoError(t, err)

	data, err := Format(b, engine.FormatJSON)
	require.NoError(t, err)

	var decoded []engine.TranscriptResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, b.Len())
	for i, want := range b.Results {
		got := decoded[i]
		assert.Equal(t, want.VideoID, got.VideoID)
		assert.Equal(t, want.Status, got.Status)
		if want.OK() {
			assert.Equal(t, want.FullText, got.FullText)
			assert.Equal(t, want.Segments, got.Segments)
		}
	}
}

func TestFetcherErrorsAreNotPropagated(t *testing.T) {
	f := newFakeFetcher()
	f.errs["brokenvid01"] = errors.New("boom")

	b, err := newTestExtractor(f).Extract(context.Background(), []string{"brokenvid01"}, "")
	require.NoError(t, err)
	assert.Equal(t, engine.ReasonFetchError, b.Results[0].Reason)
	assert.Equal(t, "boom", b.Results[0].Error)
}
