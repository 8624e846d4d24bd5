// ABOUTME: Markdown to HTML rendering for outgoing chat messages
// ABOUTME: Assistant replies are markdown; Matrix clients get both plain and HTML bodies

package bridge

import (
	"bytes"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough, extension.Table))

// renderHTML converts text to HTML. ok is false when the text has no markup
// worth sending as formatted_body, or when conversion fails.
func renderHTML(text string) (string, bool) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(text), &buf); err != nil {
		return "", false
	}
	html := strings.TrimSpace(buf.String())

	// A single plain paragraph adds nothing over the body.
	inner, isParagraph := strings.CutPrefix(html, "<p>")
	if isParagraph {
		inner, isParagraph = strings.CutSuffix(inner, "</p>")
	}
	if isParagraph && !strings.ContainsAny(inner, "<&") {
		return "", false
	}
	return html, true
}
