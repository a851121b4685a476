// Package embedding turns plain text into fixed-length vectors.
package embedding

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/llm"
)

// Embedder is the narrow surface consumed by indexing and retrieval.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache stores vectors keyed by model and text.
type Cache interface {
	Get(ctx context.Context, model, text string) ([]float32, bool, error)
	Set(ctx context.Context, model, text string, vec []float32) error
}

type Options struct {
	Model      string
	Dimensions int
	Timeout    time.Duration
	Cache      Cache
	Logger     *log.Logger
}

// Generator wraps a remote embedding model.
type Generator struct {
	provider llm.Provider
	model    string
	dims     int
	timeout  time.Duration
	cache    Cache
	logger   *log.Logger
}

func NewGenerator(provider llm.Provider, opts Options) *Generator {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[EMBED] ", log.LstdFlags)
	}
	return &Generator{
		provider: provider,
		model:    opts.Model,
		dims:     opts.Dimensions,
		timeout:  opts.Timeout,
		cache:    opts.Cache,
		logger:   logger,
	}
}

// Embed returns the vector for text. Empty text is forwarded to the model unchanged and no
// length capping is applied; the backend's own truncation policy holds.
func (g *Generator) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.cache != nil {
		vec, ok, err := g.cache.Get(ctx, g.model, text)
		if err != nil {
			g.logger.Printf("warn: embedding cache read failed: %v", err)
		} else if ok && g.validDims(vec) {
			return vec, nil
		}
	}

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	vec, err := g.provider.Embed(callCtx, g.model, text)
	if err != nil {
		return nil, faults.Backend("embed", err)
	}
	if !g.validDims(vec) {
		return nil, faults.Backend("embed", fmt.Errorf("model %s returned %d dimensions, want %d", g.model, len(vec), g.dims))
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, g.model, text, vec); err != nil {
			g.logger.Printf("warn: embedding cache write failed: %v", err)
		}
	}
	return vec, nil
}

func (g *Generator) validDims(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	return g.dims <= 0 || len(vec) == g.dims
}
