// Package parsers reads the structured answers of classification calls.
// Models often wrap JSON in prose or code fences, so parsing is lenient about
// framing and strict about values.
package parsers

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	logx "github.com/Chative-core-poc-v1/convoengine/pkg/logger"
)

// basic safety limits to avoid pathological inputs
const (
	maxContentLen = 64 * 1024
	maxFieldLen   = 2 * 1024
	maxErrSnippet = 200
)

// ErrNoJSON is returned when no JSON object can be located in a reply.
var ErrNoJSON = errors.New("no json object in reply")

// extractObject returns the first balanced JSON object in content.
func extractObject(component, content string) (gjson.Result, error) {
	if len(content) > maxContentLen {
		logx.Warn().
			Str("component", component).
			Int("max_len", maxContentLen).
			Int("orig_len", len(content)).
			Msg("content truncated due to size limit")
		content = content[:maxContentLen]
	}
	if !utf8.ValidString(content) {
		content = strings.ToValidUTF8(content, "")
	}

	for start := strings.Index(content, "{"); start >= 0; {
		if end := matchBrace(content, start); end > start {
			candidate := content[start : end+1]
			if gjson.Valid(candidate) {
				return gjson.Parse(candidate), nil
			}
		}
		next := strings.Index(content[start+1:], "{")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return gjson.Result{}, fmt.Errorf("%w: %q", ErrNoJSON, snippet(content))
}

// matchBrace finds the index of the brace closing the one at start, honoring strings.
func matchBrace(s string, start int) int {
	depth, inString, escaped := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// field reads a trimmed string field, bounded in length.
func field(obj gjson.Result, path string) string {
	v := strings.TrimSpace(obj.Get(path).String())
	if len(v) > maxFieldLen {
		v = v[:maxFieldLen]
	}
	return v
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrSnippet {
		return s[:maxErrSnippet] + "..."
	}
	return s
}
