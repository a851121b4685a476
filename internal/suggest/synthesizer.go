// Package suggest turns similar pages into link suggestions and extracts topical tags, both
// by prompting a generative model and parsing its free-text answer.
package suggest

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/llm"
	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
)

const linkSystemPrompt = `You are a content linking assistant. Analyze the relationship between content and suggest appropriate link text and context.
Answer with one suggestion per line, formatted exactly as:
[link text](exact page title) - context
Only use page titles from the provided list. Do not add any other lines.`

// SimilarFinder supplies candidate pages.
type SimilarFinder interface {
	FindSimilar(ctx context.Context, text, workspaceID string, limit int) ([]retrieval.Match, error)
}

// Completer is the generation half of llm.Provider.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (string, error)
}

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Limit       int
	Timeout     time.Duration
	Logger      *log.Logger
}

type Synthesizer struct {
	finder SimilarFinder
	model  Completer
	opts   Options
	logger *log.Logger
}

func NewSynthesizer(finder SimilarFinder, model Completer, opts Options) *Synthesizer {
	if opts.Temperature <= 0 {
		opts.Temperature = 0.3
	}
	if opts.Limit <= 0 {
		opts.Limit = retrieval.DefaultLimit
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[SUGGEST] ", log.LstdFlags)
	}
	return &Synthesizer{finder: finder, model: model, opts: opts, logger: logger}
}

// SuggestLinks proposes links from text to similar pages of the same workspace. When no page
// is similar enough the model is not called.
func (s *Synthesizer) SuggestLinks(ctx context.Context, text, workspaceID string) ([]LinkSuggestion, error) {
	candidates, err := s.finder.FindSimilar(ctx, text, workspaceID, s.opts.Limit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []LinkSuggestion{}, nil
	}

	cctx := ctx
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	answer, err := s.model.Complete(cctx, llm.CompletionRequest{
		Model: s.opts.Model,
		Messages: []llm.Message{
			{Role: "system", Content: linkSystemPrompt},
			{Role: "user", Content: linkUserPrompt(text, candidates)},
		},
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, faults.Backend("suggest.complete", err)
	}

	out := ParseLinkSuggestions(answer, candidates)
	if len(out) == 0 && strings.TrimSpace(answer) != "" {
		s.logger.Printf("warn: no link suggestions parsed from %d candidate(s)", len(candidates))
	}
	return out, nil
}

func linkUserPrompt(text string, candidates []retrieval.Match) string {
	var b strings.Builder
	b.WriteString("Analyze this text and suggest how to link it with similar content:\n\nText: ")
	b.WriteString(text)
	b.WriteString("\n\nSimilar pages:")
	for _, c := range candidates {
		fmt.Fprintf(&b, "\n- %s (relevance: %d%%)", c.Title, int(math.Round(c.Score*100)))
	}
	return b.String()
}
