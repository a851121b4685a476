// Package embeddingtest provides a deterministic bag-of-words embedder for tests.
package embeddingtest

import (
	"context"
	"strings"
	"sync"
	"unicode"
)

// Vocabulary assigns every distinct lowercase word its own dimension, so cosine similarity
// between two texts is the normalized overlap of their word counts.
type Vocabulary struct {
	mu    sync.Mutex
	dims  int
	index map[string]int
	calls int

	// Err, when set, is returned by every Embed call.
	Err error
}

func NewVocabulary(dims int) *Vocabulary {
	return &Vocabulary{dims: dims, index: map[string]int{}}
}

func (v *Vocabulary) Embed(ctx context.Context, text string) ([]float32, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.Err != nil {
		return nil, v.Err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, v.dims)
	for _, word := range Words(text) {
		idx, ok := v.index[word]
		if !ok {
			idx = len(v.index) % v.dims
			v.index[word] = idx
		}
		vec[idx]++
	}
	return vec, nil
}

// Calls reports how many times Embed ran.
func (v *Vocabulary) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// Words splits text into lowercase letter/digit runs.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
