package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go-kit/llm"
)

const summaryPrompt = `Summarize the following YouTube video transcript in 3-5 plain sentences.
No markdown, no bullet points. Keep names and numbers exact.

Transcript:
%s`

// stripFences removes markdown code fences from LLM output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// SummariesEnabled reports whether an LLM client is configured.
func SummariesEnabled() bool {
	return cfg.LLMClient != nil
}

// SummarizeTranscript asks the configured LLM for a short summary of text.
// Input longer than MaxSummaryChars runes is truncated.
func SummarizeTranscript(ctx context.Context, text string) (string, error) {
	if cfg.LLMClient == nil {
		return "", errors.New("llm: not configured")
	}
	if cfg.MaxSummaryChars > 0 {
		text = TruncateRunes(text, cfg.MaxSummaryChars, "...")
	}
	metrics.LLMCalls.Add(1)
	raw, err := cfg.LLMClient.Complete(ctx, "", fmt.Sprintf(summaryPrompt, text),
		llm.WithChatTemperature(0.3),
		llm.WithChatMaxTokens(400),
	)
	if err != nil {
		metrics.LLMErrors.Add(1)
		return "", fmt.Errorf("llm summary: %w", err)
	}
	return stripFences(raw), nil
}
