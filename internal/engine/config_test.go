package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, FormatJSON, c.DefaultFormat)
	assert.Equal(t, 50, c.MaxBatchSize)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, 3, c.Retry.MaxRetries)
	assert.Equal(t, "transcripts", c.OutputDir)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `default_format: csv
max_batch_size: 20
timeout: 5s
retry_count: 0
languages: [de, en]
requests_per_second: 0
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	c, err := LoadFile(path, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, c.DefaultFormat)
	assert.Equal(t, 20, c.MaxBatchSize)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 0, c.Retry.MaxRetries)
	assert.Equal(t, []string{"de", "en"}, c.Languages)
	assert.Zero(t, c.RequestsPerSecond)
	// untouched keys keep defaults
	assert.Equal(t, "transcripts", c.OutputDir)
	assert.Equal(t, 10, c.ChannelVideoLimit)
}

func TestLoadFileBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("timeout: soon\n"), 0o600))

	_, err := LoadFile(path, DefaultConfig())
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"), DefaultConfig())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"format", func(c *Config) { c.DefaultFormat = "xml" }},
		{"batch size", func(c *Config) { c.MaxBatchSize = 0 }},
		{"timeout", func(c *Config) { c.Timeout = 0 }},
		{"retries", func(c *Config) { c.Retry.MaxRetries = -1 }},
		{"channel limit", func(c *Config) { c.ChannelVideoLimit = 0 }},
		{"rate", func(c *Config) { c.RequestsPerSecond = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" CSV ", FormatCSV, false},
		{"Txt", FormatTXT, false},
		{"", FormatTXT, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in, FormatTXT)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrUnsupportedFormat, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestRequestLimiter(t *testing.T) {
	prev := *Cfg
	t.Cleanup(func() { Init(prev) })

	c := DefaultConfig()
	c.RequestsPerSecond = 4
	Init(c)
	l := RequestLimiter()
	assert.Same(t, l, RequestLimiter(), "limiter is shared between callers")
	assert.Equal(t, rate.Limit(4), l.Limit())

	c.RequestsPerSecond = 0
	Init(c)
	assert.Equal(t, rate.Inf, RequestLimiter().Limit())
}
