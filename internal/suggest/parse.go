package suggest

import (
	"regexp"
	"strings"

	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
)

// LinkSuggestion proposes linking LinkText to the page DocumentID. DocumentID is empty when
// the model named a page that is not among the candidates.
type LinkSuggestion struct {
	LinkText   string `json:"linkText"`
	DocumentID string `json:"documentId,omitempty"`
	Context    string `json:"context"`
}

// Usable reports whether the suggestion resolved to a candidate page.
func (s LinkSuggestion) Usable() bool { return s.DocumentID != "" }

var (
	linkToken  = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	listMarker = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+`)
	tagPattern = regexp.MustCompile(`^[a-z0-9\s-]{2,40}$`)
)

// ParseLinkSuggestions reads one suggestion per line from free-form model output. Only the
// first [label](target) token of a line counts; lines without one are dropped. The target is
// resolved to the first candidate whose title contains it, ignoring case when no title
// matches exactly.
func ParseLinkSuggestions(text string, candidates []retrieval.Match) []LinkSuggestion {
	out := []LinkSuggestion{}
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		loc := linkToken.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		label := strings.TrimSpace(line[loc[2]:loc[3]])
		if label == "" {
			continue
		}
		target := strings.TrimSpace(line[loc[4]:loc[5]])
		rest := line[:loc[0]] + line[loc[1]:]
		rest = listMarker.ReplaceAllString(rest, "")
		out = append(out, LinkSuggestion{
			LinkText:   label,
			DocumentID: resolve(target, candidates),
			Context:    strings.Trim(rest, " \t-:|"),
		})
	}
	return out
}

// resolve prefers a case-sensitive title match and falls back to ignoring case.
func resolve(target string, candidates []retrieval.Match) string {
	if target == "" {
		return ""
	}
	for _, c := range candidates {
		if strings.Contains(c.Title, target) {
			return c.DocumentID
		}
	}
	lower := strings.ToLower(target)
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c.Title), lower) {
			return c.DocumentID
		}
	}
	return ""
}

// ParseTags normalizes a comma-separated tag list, keeping tokens of 2-40 lowercase letters,
// digits, spaces or hyphens. Duplicates are dropped; order is preserved.
func ParseTags(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, part := range strings.Split(strings.ToLower(text), ",") {
		tag := strings.TrimSpace(part)
		if !tagPattern.MatchString(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
