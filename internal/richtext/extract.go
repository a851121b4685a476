// Package richtext flattens editor documents into plain text for embedding.
//
// Documents are JSON trees: a node with "type":"text" carries its "text"; any node with a
// "content" field (object or array) is a container whose children are flattened in order.
// Sequences are always joined with a single space, whether they are a top-level body or a
// nested container.
package richtext

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const separator = " "

// Extract returns the plain text of a decoded document node. It never fails; unknown shapes
// contribute no text.
func Extract(node interface{}) string {
	switch v := node.(type) {
	case nil:
		return ""
	case string:
		return v
	case []interface{}:
		parts := make([]string, len(v))
		for i, child := range v {
			parts[i] = Extract(child)
		}
		return strings.Join(parts, separator)
	case map[string]interface{}:
		if t, _ := v["type"].(string); t == "text" {
			text, _ := v["text"].(string)
			return text
		}
		if content, ok := v["content"]; ok {
			return Extract(content)
		}
		return ""
	default:
		return ""
	}
}

// ExtractJSON decodes raw document JSON and extracts its text. Bytes that are not valid JSON
// are legacy plain-text content and are returned as-is.
func ExtractJSON(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return ""
	}
	var node interface{}
	if err := json.Unmarshal(trimmed, &node); err != nil {
		return string(raw)
	}
	return Extract(node)
}

// Snippet returns the first max runes of text, with "..." appended when text was longer.
func Snippet(text string, max int) string {
	if max <= 0 || utf8.RuneCountInString(text) <= max {
		return text
	}
	runes := []rune(text)
	return string(runes[:max]) + "..."
}
