package engine

import (
	"regexp"
	"strings"

	"github.com/anatolykoptev/go-kit/strutil"
	"golang.org/x/net/html"
)

// User-Agent strings used across HTTP clients.
const (
	UserAgentBot    = "GoTranscript/1.0"
	UserAgentChrome = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"
)

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	bracketedRe  = regexp.MustCompile(`\[[^\]]*\]`)
	parenRe      = regexp.MustCompile(`\([^)]*\)`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// CleanTranscriptText normalizes one caption line. Tags are stripped before
// entities are unescaped so escaped "<" and ">" survive as text; then
// [bracketed] and (parenthesized) annotations go and whitespace collapses.
func CleanTranscriptText(s string) string {
	s = htmlTagRe.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = bracketedRe.ReplaceAllString(s, "")
	s = parenRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Truncate returns the first n bytes of s.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// TruncateRunes caps s at limit runes, appending suffix if truncated.
// Pass suffix="" for no suffix. Safe for UTF-8 (Cyrillic, CJK, emoji).
func TruncateRunes(s string, limit int, suffix string) string {
	return strutil.TruncateWith(s, limit, suffix)
}
