// Package retrieval answers workspace-scoped similarity queries against the vector index.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/embedding"
	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/indexing"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore"
)

const (
	DefaultLimit     = 5
	DefaultThreshold = 0.70
)

// Match is one similar document.
type Match struct {
	DocumentID string  `json:"documentId"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
}

type Options struct {
	Collection    string
	Threshold     float64
	VectorTimeout time.Duration
}

type Retriever struct {
	vectors    vectorstore.Store
	embedder   embedding.Embedder
	collection string
	threshold  float64
	timeout    time.Duration
}

func NewRetriever(vectors vectorstore.Store, embedder embedding.Embedder, opts Options) *Retriever {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Retriever{
		vectors:    vectors,
		embedder:   embedder,
		collection: opts.Collection,
		threshold:  threshold,
		timeout:    opts.VectorTimeout,
	}
}

// FindSimilar returns up to limit documents of workspaceID whose similarity to text is at
// least the threshold, best first. No match is not an error.
func (r *Retriever) FindSimilar(ctx context.Context, text, workspaceID string, limit int) ([]Match, error) {
	if strings.TrimSpace(workspaceID) == "" {
		return nil, faults.Validation("retrieval.find_similar", "workspace id required")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	vec, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	sctx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	hits, err := r.vectors.Search(sctx, r.collection, vectorstore.SearchRequest{
		Vector: vec,
		Filter: map[string]string{indexing.KeyWorkspaceID: workspaceID},
		Limit:  limit,
	})
	if err != nil {
		return nil, faults.Backend("retrieval.search", err)
	}

	out := make([]Match, 0, len(hits))
	for _, h := range hits {
		// the backend filter is trusted but re-checked
		if vectorstore.PayloadString(h.Payload, indexing.KeyWorkspaceID) != workspaceID {
			continue
		}
		if h.Score < r.threshold {
			continue
		}
		docID := vectorstore.PayloadString(h.Payload, indexing.KeyDocumentID)
		if docID == "" {
			continue
		}
		out = append(out, Match{
			DocumentID: docID,
			Title:      vectorstore.PayloadString(h.Payload, indexing.KeyTitle),
			Score:      h.Score,
			Snippet:    vectorstore.PayloadString(h.Payload, indexing.KeySnippet),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
