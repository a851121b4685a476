package suggest

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/llm"
	"github.com/mohammad-safakhou/pagemind/internal/richtext"
)

const tagSystemPrompt = `You are a tagging engine. Extract the most relevant topic tags based on the content provided by the user.
Return only a comma-separated list of 3-8 concise lowercase tags (single words or short phrases). No sentences, no explanations, no extra words. If no relevant tags are found, return an empty string.`

type Tagger struct {
	model   Completer
	name    string
	timeout time.Duration
	logger  *log.Logger
}

func NewTagger(model Completer, modelName string, timeout time.Duration, logger *log.Logger) *Tagger {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUGGEST] ", log.LstdFlags)
	}
	return &Tagger{model: model, name: modelName, timeout: timeout, logger: logger}
}

// ExtractTags asks the model for topical tags. Any failure degrades to no tags.
func (t *Tagger) ExtractTags(ctx context.Context, text string) []string {
	if t == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	tags, err := t.extract(ctx, text)
	if err != nil {
		t.logger.Printf("warn: tag extraction failed: %v", err)
		return nil
	}
	return tags
}

func (t *Tagger) extract(ctx context.Context, text string) ([]string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	answer, err := t.model.Complete(ctx, llm.CompletionRequest{
		Model: t.name,
		Messages: []llm.Message{
			{Role: "system", Content: tagSystemPrompt},
			{Role: "user", Content: text},
		},
		Temperature: 0.7,
	})
	if err != nil {
		return nil, faults.Backend("suggest.tags", err)
	}
	tags := ParseTags(answer)
	if len(tags) == 0 && strings.TrimSpace(answer) != "" {
		return nil, faults.Parse("suggest.tags", "no usable tags in %q", richtext.Snippet(answer, 80))
	}
	return tags, nil
}
