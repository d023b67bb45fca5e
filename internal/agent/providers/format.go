package providers

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const documentSeparator = "\n\n---\n\n"

// Limits bound the text a provider contributes to the prompt.
type Limits struct {
	MaxDocuments     int
	MaxDocumentChars int
}

// Format renders documents as one delimited block, keeping at most MaxDocuments
// and truncating each to MaxDocumentChars runes. It returns "" for no documents.
func Format(docs []Document, lim Limits) string {
	if lim.MaxDocuments > 0 && len(docs) > lim.MaxDocuments {
		docs = docs[:lim.MaxDocuments]
	}
	parts := make([]string, 0, len(docs))
	for _, d := range docs {
		content := strings.TrimSpace(d.Content)
		if content == "" {
			continue
		}
		content = truncate(content, lim.MaxDocumentChars)
		parts = append(parts, fmt.Sprintf("<document title=%q source=%q>\n%s\n</document>", d.Title, d.URL, content))
	}
	return strings.Join(parts, documentSeparator)
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max]) + "…"
}
