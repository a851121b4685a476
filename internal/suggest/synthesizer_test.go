package suggest

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/llm"
	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
)

type stubFinder struct {
	matches []retrieval.Match
	err     error
	limit   int
}

func (f *stubFinder) FindSimilar(_ context.Context, _, _ string, limit int) ([]retrieval.Match, error) {
	f.limit = limit
	return f.matches, f.err
}

type stubModel struct {
	answer string
	err    error
	calls  int
	last   llm.CompletionRequest
	block  bool
}

func (m *stubModel) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	m.calls++
	m.last = req
	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return m.answer, m.err
}

var quiet = log.New(io.Discard, "", 0)

func TestSuggestLinksSkipsModelWithoutCandidates(t *testing.T) {
	model := &stubModel{answer: "[x](y)"}
	s := NewSynthesizer(&stubFinder{}, model, Options{Logger: quiet})
	got, err := s.SuggestLinks(context.Background(), "text", "w1")
	if err != nil {
		t.Fatalf("SuggestLinks: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty list, got %#v", got)
	}
	if model.calls != 0 {
		t.Fatalf("model must not be called without candidates")
	}
}

func TestSuggestLinksPromptAndParse(t *testing.T) {
	finder := &stubFinder{matches: []retrieval.Match{
		{DocumentID: "p1", Title: "Rocket Design", Score: 0.824},
		{DocumentID: "p3", Title: "Fuel Chemistry", Score: 0.7},
	}}
	model := &stubModel{answer: "Sure!\n[liquid fuel](Rocket Design) - the design page covers engines\n[jets](Jet Engines) - unknown page"}
	s := NewSynthesizer(finder, model, Options{Model: "gpt-3.5-turbo", Logger: quiet})

	got, err := s.SuggestLinks(context.Background(), "We burn liquid fuel", "w1")
	if err != nil {
		t.Fatalf("SuggestLinks: %v", err)
	}
	if len(got) != 2 || got[0].DocumentID != "p1" || got[0].LinkText != "liquid fuel" || got[1].Usable() {
		t.Fatalf("unexpected suggestions %+v", got)
	}
	if finder.limit != retrieval.DefaultLimit {
		t.Fatalf("expected default candidate limit, got %d", finder.limit)
	}
	if model.last.Temperature != 0.3 || model.last.Model != "gpt-3.5-turbo" || len(model.last.Messages) != 2 {
		t.Fatalf("unexpected request %+v", model.last)
	}
	user := model.last.Messages[1].Content
	for _, want := range []string{"Text: We burn liquid fuel", "- Rocket Design (relevance: 82%)", "- Fuel Chemistry (relevance: 70%)"} {
		if !strings.Contains(user, want) {
			t.Fatalf("prompt missing %q:\n%s", want, user)
		}
	}
	if !strings.Contains(model.last.Messages[0].Content, "[link text](exact page title) - context") {
		t.Fatalf("system prompt must state the line format")
	}
}

func TestSuggestLinksMalformedOutput(t *testing.T) {
	finder := &stubFinder{matches: []retrieval.Match{{DocumentID: "p1", Title: "A", Score: 0.9}}}
	s := NewSynthesizer(finder, &stubModel{answer: "I cannot help with that ]( [ )"}, Options{Logger: quiet})
	got, err := s.SuggestLinks(context.Background(), "t", "w1")
	if err != nil || len(got) != 0 {
		t.Fatalf("malformed text must yield an empty list, got %+v err=%v", got, err)
	}
}

func TestSuggestLinksBackendFailures(t *testing.T) {
	finder := &stubFinder{matches: []retrieval.Match{{DocumentID: "p1", Title: "A", Score: 0.9}}}
	s := NewSynthesizer(finder, &stubModel{err: errors.New("rate limited")}, Options{Logger: quiet})
	if _, err := s.SuggestLinks(context.Background(), "t", "w1"); !errors.Is(err, faults.ErrBackend) {
		t.Fatalf("expected backend failure, got %v", err)
	}

	s = NewSynthesizer(finder, &stubModel{block: true}, Options{Timeout: 10 * time.Millisecond, Logger: quiet})
	if _, err := s.SuggestLinks(context.Background(), "t", "w1"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected timeout, got %v", err)
	}

	boom := faults.Backend("embed", errors.New("down"))
	s = NewSynthesizer(&stubFinder{err: boom}, &stubModel{}, Options{Logger: quiet})
	if _, err := s.SuggestLinks(context.Background(), "t", "w1"); !errors.Is(err, faults.ErrBackend) {
		t.Fatalf("retriever failure must propagate, got %v", err)
	}
}

func TestExtractTags(t *testing.T) {
	model := &stubModel{answer: "Rocketry, Liquid Fuel, propulsion"}
	tagger := NewTagger(model, "gpt-3.5-turbo", time.Second, quiet)
	got := tagger.ExtractTags(context.Background(), "We use liquid fuel engines.")
	if strings.Join(got, "|") != "rocketry|liquid fuel|propulsion" {
		t.Fatalf("unexpected tags %v", got)
	}
	if model.last.Messages[1].Content != "We use liquid fuel engines." {
		t.Fatalf("content must be sent as the user message")
	}
}

func TestExtractTagsDegrades(t *testing.T) {
	cases := map[string]*stubModel{
		"model error":   {err: errors.New("boom")},
		"no valid tags": {answer: "Sorry, I can't do that!"},
		"timeout":       {block: true},
	}
	for name, model := range cases {
		t.Run(name, func(t *testing.T) {
			tagger := NewTagger(model, "m", 10*time.Millisecond, quiet)
			if got := tagger.ExtractTags(context.Background(), "text"); got != nil {
				t.Fatalf("expected no tags, got %v", got)
			}
		})
	}
}

func TestExtractTagsSkipsEmptyText(t *testing.T) {
	model := &stubModel{answer: "a, b"}
	if got := NewTagger(model, "m", 0, quiet).ExtractTags(context.Background(), "   "); got != nil || model.calls != 0 {
		t.Fatalf("empty text must not call the model")
	}
	var nilTagger *Tagger
	if nilTagger.ExtractTags(context.Background(), "x") != nil {
		t.Fatalf("nil tagger yields no tags")
	}
}

func TestExtractTagsParseErrorKeepsRunesWhole(t *testing.T) {
	answer := strings.Repeat("ж", 100)
	tagger := NewTagger(&stubModel{answer: answer}, "m", time.Second, quiet)
	_, err := tagger.extract(context.Background(), "text")
	if !errors.Is(err, faults.ErrParse) {
		t.Fatalf("expected parse failure, got %v", err)
	}
	msg := err.Error()
	if !utf8.ValidString(msg) || !strings.Contains(msg, strings.Repeat("ж", 80)+"...") || strings.Contains(msg, strings.Repeat("ж", 81)) {
		t.Fatalf("answer must be cut at 80 runes, got %q", msg)
	}
}
