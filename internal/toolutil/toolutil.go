// Package toolutil provides shared helper functions for go_transcript MCP tools.
package toolutil

import (
	"strings"
)

// NormLangs lowercases and trims language codes, dropping blanks and duplicates.
// An empty result falls back to def.
func NormLangs(langs, def []string) []string {
	var out []string
	seen := make(map[string]bool, len(langs))
	for _, l := range langs {
		l = strings.ToLower(strings.TrimSpace(l))
		if l == "" || seen[l] {
			continue
		}
		seen[l] = true
		out = append(out, l)
	}
	if len(out) == 0 {
		return def
	}
	return out
}

// ClampLimit returns def for n <= 0 and caps n at maxN.
func ClampLimit(n, def, maxN int) int {
	if n <= 0 {
		return def
	}
	if n > maxN {
		return maxN
	}
	return n
}
