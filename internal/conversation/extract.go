// ABOUTME: Reads assistant reply text out of message bodies of varying shape
// ABOUTME: Ordered variant matching over raw JSON; total, never fails

package conversation

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/2389/coven-assistant/internal/assistant"
)

// Stand-in replies for bodies that hold no usable text.
const (
	UnknownFormatReply = "Received response in unknown format"
	EmptyReply         = "Received empty response from assistant"
)

// contentVariant names a recognized content shape.
type contentVariant int

const (
	variantTextValue   contentVariant = iota // [{"text":{"value":"..."}}]
	variantTypedText                         // [{"type":"text","text":"..."}]
	variantStrings                           // ["a","b"]
	variantPlainString                       // "..."
	variantMessageText                       // empty content, message-level "text"
	variantEmpty                             // empty content, no text
	variantUnknown
)

func (v contentVariant) String() string {
	switch v {
	case variantTextValue:
		return "text_value"
	case variantTypedText:
		return "typed_text"
	case variantStrings:
		return "strings"
	case variantPlainString:
		return "plain_string"
	case variantMessageText:
		return "message_text"
	case variantEmpty:
		return "empty"
	default:
		return "unknown"
	}
}

type contentMatcher struct {
	variant contentVariant
	match   func(content gjson.Result) (string, bool)
}

// contentMatchers are tried in order; the first match wins.
var contentMatchers = []contentMatcher{
	{variant: variantTextValue, match: matchTextValue},
	{variant: variantTypedText, match: matchTypedText},
	{variant: variantStrings, match: matchStrings},
	{variant: variantPlainString, match: matchPlainString},
}

// ExtractReply returns the text of an assistant message.
func ExtractReply(msg assistant.Message) string {
	_, text := classifyReply(msg)
	return text
}

// ExtractContent returns the text held in a raw content value.
func ExtractContent(raw json.RawMessage) string {
	_, text := classifyContent(raw)
	return text
}

func classifyReply(msg assistant.Message) (contentVariant, string) {
	if isEmptyContent(msg.Content) {
		if text, ok := messageText(msg.Text); ok {
			return variantMessageText, text
		}
		return variantEmpty, EmptyReply
	}
	return classifyContent(msg.Content)
}

func classifyContent(raw json.RawMessage) (contentVariant, string) {
	if !gjson.ValidBytes(raw) {
		return variantUnknown, UnknownFormatReply
	}
	content := gjson.ParseBytes(raw)
	for _, m := range contentMatchers {
		if text, ok := m.match(content); ok {
			return m.variant, text
		}
	}
	return variantUnknown, UnknownFormatReply
}

func matchTextValue(content gjson.Result) (string, bool) {
	first, ok := firstObject(content)
	if !ok {
		return "", false
	}
	value := first.Get("text.value")
	if value.Type != gjson.String {
		return "", false
	}
	return value.String(), true
}

func matchTypedText(content gjson.Result) (string, bool) {
	first, ok := firstObject(content)
	if !ok || first.Get("type").String() != "text" {
		return "", false
	}
	if text := first.Get("text"); text.Type == gjson.String {
		return text.String(), true
	}
	if value := first.Get("value"); value.Type == gjson.String {
		return value.String(), true
	}
	return "", false
}

func matchStrings(content gjson.Result) (string, bool) {
	if !content.IsArray() {
		return "", false
	}
	items := content.Array()
	if len(items) == 0 {
		return "", false
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if item.Type != gjson.String {
			return "", false
		}
		parts = append(parts, item.String())
	}
	return strings.Join(parts, " "), true
}

func matchPlainString(content gjson.Result) (string, bool) {
	if content.Type != gjson.String {
		return "", false
	}
	return content.String(), true
}

func firstObject(content gjson.Result) (gjson.Result, bool) {
	if !content.IsArray() {
		return gjson.Result{}, false
	}
	first := content.Get("0")
	return first, first.IsObject()
}

func isEmptyContent(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	content := gjson.ParseBytes(raw)
	switch {
	case content.Type == gjson.Null:
		return true
	case content.IsArray():
		return len(content.Array()) == 0
	}
	return false
}

// messageText reads a message-level "text" field, either a string or {"value": ...}.
func messageText(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return "", false
	}
	text := gjson.ParseBytes(raw)
	if text.Type == gjson.String {
		return text.String(), true
	}
	if value := text.Get("value"); value.Type == gjson.String {
		return value.String(), true
	}
	return "", false
}
