package engine

import (
	"context"
	"testing"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "A short summary.", "A short summary."},
		{"fenced", "```\nA short summary.\n```", "A short summary."},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"whitespace", "  \n text \n", "text"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripFences(tt.raw); got != tt.want {
				t.Errorf("stripFences(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSummarizeWithoutClient(t *testing.T) {
	old := cfg
	t.Cleanup(func() { Init(old) })

	c := DefaultConfig()
	c.LLMClient = nil
	Init(c)

	if SummariesEnabled() {
		t.Fatal("summaries should be disabled without a client")
	}
	if _, err := SummarizeTranscript(context.Background(), "some text"); err == nil {
		t.Error("expected error without a configured client")
	}
}
