// Package vectorstore defines the secondary index contract shared by the qdrant, pgvector and
// in-memory backends.
package vectorstore

import (
	"context"
	"math"
)

// Distance names the similarity metric of a collection.
type Distance string

const Cosine Distance = "Cosine"

// Point is one index entry.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// SearchRequest asks for the nearest neighbours of Vector. Filter entries are exact matches on
// payload string fields and are applied by the backend before ranking.
type SearchRequest struct {
	Vector []float32
	Filter map[string]string
	Limit  int
}

// Hit is a scored search result; higher scores are more similar.
type Hit struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Store is the write and query surface of a vector index backend.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dims int, metric Distance) error
	Upsert(ctx context.Context, collection string, points ...Point) error
	Search(ctx context.Context, collection string, req SearchRequest) ([]Hit, error)
	// Delete removes the listed ids; unknown ids are ignored.
	Delete(ctx context.Context, collection string, ids ...string) error
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when either is a
// zero vector or the lengths differ.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// PayloadString reads a string payload field.
func PayloadString(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}
