package htmlutil

import (
	"strings"

	"github.com/k3a/html2text"
)

// ToText converts HTML to plain text using a proper HTML parser.
// Handles entities, strips tags, and preserves readable text.
func ToText(s string) string {
	return html2text.HTML2Text(s)
}

// ErrorSnippet turns an error response body into a single line of at most max
// runes. Proxy error pages arrive as HTML and are reduced to their text.
func ErrorSnippet(body, contentType string, max int) string {
	s := strings.TrimSpace(body)
	if strings.Contains(contentType, "html") || strings.HasPrefix(s, "<") {
		s = ToText(s)
	}
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > max {
		s = string(r[:max]) + "..."
	}
	return s
}
