// Package memory is an in-process vector store using brute-force cosine similarity.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/mohammad-safakhou/pagemind/internal/vectorstore"
)

type collection struct {
	dims   int
	points map[string]vectorstore.Point
}

type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

func New() *Store { return &Store{collections: map[string]*collection{}} }

func (s *Store) EnsureCollection(_ context.Context, name string, dims int, metric vectorstore.Distance) error {
	if dims <= 0 {
		return fmt.Errorf("invalid dimension %d", dims)
	}
	if metric != vectorstore.Cosine {
		return fmt.Errorf("unsupported metric %q", metric)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; !ok {
		s.collections[name] = &collection{dims: dims, points: map[string]vectorstore.Point{}}
	}
	return nil
}

func (s *Store) Upsert(_ context.Context, name string, points ...vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s not found", name)
	}
	for _, p := range points {
		if len(p.Vector) != c.dims {
			return fmt.Errorf("vector dimension mismatch: got %d want %d", len(p.Vector), c.dims)
		}
	}
	for _, p := range points {
		payload := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			payload[k] = v
		}
		vec := append([]float32(nil), p.Vector...)
		c.points[p.ID] = vectorstore.Point{ID: p.ID, Vector: vec, Payload: payload}
	}
	return nil
}

func (s *Store) Search(_ context.Context, name string, req vectorstore.SearchRequest) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	var hits []vectorstore.Hit
	for _, p := range c.points {
		if !matches(p.Payload, req.Filter) {
			continue
		}
		hits = append(hits, vectorstore.Hit{
			ID:      p.ID,
			Score:   vectorstore.CosineSimilarity(p.Vector, req.Vector),
			Payload: p.Payload,
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if req.Limit > 0 && len(hits) > req.Limit {
		hits = hits[:req.Limit]
	}
	return hits, nil
}

func (s *Store) Delete(_ context.Context, name string, ids ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return nil
	}
	for _, id := range ids {
		delete(c.points, id)
	}
	return nil
}

// Len reports how many points a collection holds.
func (s *Store) Len(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.collections[name]; ok {
		return len(c.points)
	}
	return 0
}

func matches(payload map[string]any, filter map[string]string) bool {
	for k, want := range filter {
		if vectorstore.PayloadString(payload, k) != want {
			return false
		}
	}
	return true
}
