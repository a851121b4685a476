package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/mohammad-safakhou/pagemind/internal/embedding/embeddingtest"
	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore"
)

// leakyStore ignores the filter and returns canned hits, so the retriever's own checks are
// what is under test.
type leakyStore struct {
	hits []vectorstore.Hit
	err  error
	req  vectorstore.SearchRequest
}

func (s *leakyStore) EnsureCollection(context.Context, string, int, vectorstore.Distance) error {
	return nil
}
func (s *leakyStore) Upsert(context.Context, string, ...vectorstore.Point) error { return nil }
func (s *leakyStore) Delete(context.Context, string, ...string) error           { return nil }
func (s *leakyStore) Search(_ context.Context, _ string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	s.req = req
	return s.hits, s.err
}

func hit(doc, ws string, score float64) vectorstore.Hit {
	return vectorstore.Hit{ID: doc, Score: score, Payload: map[string]any{
		"documentId": doc, "workspaceId": ws, "title": "T " + doc, "snippet": "s",
	}}
}

func TestFindSimilarFiltersWorkspaceAndThreshold(t *testing.T) {
	st := &leakyStore{hits: []vectorstore.Hit{
		hit("low", "w1", 0.69),
		hit("other-ws", "w2", 0.99),
		hit("good", "w1", 0.71),
		hit("best", "w1", 0.95),
	}}
	r := NewRetriever(st, embeddingtest.NewVocabulary(8), Options{Collection: "c"})
	got, err := r.FindSimilar(context.Background(), "query", "w1", 0)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 2 || got[0].DocumentID != "best" || got[1].DocumentID != "good" {
		t.Fatalf("unexpected matches %+v", got)
	}
	if st.req.Filter["workspaceId"] != "w1" || st.req.Limit != DefaultLimit {
		t.Fatalf("search must be scoped and limited: %+v", st.req)
	}
	for _, m := range got {
		if m.Score < DefaultThreshold {
			t.Fatalf("match below threshold: %+v", m)
		}
	}
}

func TestFindSimilarCapsAtLimit(t *testing.T) {
	st := &leakyStore{hits: []vectorstore.Hit{hit("a", "w1", 0.9), hit("b", "w1", 0.8), hit("c", "w1", 0.85)}}
	r := NewRetriever(st, embeddingtest.NewVocabulary(8), Options{})
	got, err := r.FindSimilar(context.Background(), "q", "w1", 2)
	if err != nil {
		t.Fatalf("FindSimilar: %v", err)
	}
	if len(got) != 2 || got[0].DocumentID != "a" || got[1].DocumentID != "c" {
		t.Fatalf("unexpected matches %+v", got)
	}
}

func TestFindSimilarEmptyIsSuccess(t *testing.T) {
	r := NewRetriever(&leakyStore{}, embeddingtest.NewVocabulary(8), Options{})
	got, err := r.FindSimilar(context.Background(), "q", "w1", 5)
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil result, got %v err=%v", got, err)
	}
}

func TestFindSimilarErrors(t *testing.T) {
	r := NewRetriever(&leakyStore{err: errors.New("qdrant down")}, embeddingtest.NewVocabulary(8), Options{})
	if _, err := r.FindSimilar(context.Background(), "q", "", 5); !errors.Is(err, faults.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := r.FindSimilar(context.Background(), "q", "w1", 5); !errors.Is(err, faults.ErrBackend) {
		t.Fatalf("expected backend error, got %v", err)
	}
}

func TestFindSimilarCustomThreshold(t *testing.T) {
	st := &leakyStore{hits: []vectorstore.Hit{hit("a", "w1", 0.75)}}
	r := NewRetriever(st, embeddingtest.NewVocabulary(8), Options{Threshold: 0.8})
	got, _ := r.FindSimilar(context.Background(), "q", "w1", 5)
	if len(got) != 0 {
		t.Fatalf("expected threshold 0.8 to drop 0.75, got %+v", got)
	}
}
