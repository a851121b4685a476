package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/pagemind/config"
	"github.com/mohammad-safakhou/pagemind/internal/embedding"
	"github.com/mohammad-safakhou/pagemind/internal/indexing"
	"github.com/mohammad-safakhou/pagemind/internal/llm"
	"github.com/mohammad-safakhou/pagemind/internal/queue/streams"
	"github.com/mohammad-safakhou/pagemind/internal/retrieval"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/suggest"
	"github.com/mohammad-safakhou/pagemind/internal/tasks"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore/memory"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore/pgvector"
	"github.com/mohammad-safakhou/pagemind/internal/vectorstore/qdrant"
)

// app holds the process-wide dependencies, constructed once and passed down.
type app struct {
	cfg         *config.Config
	store       *store.Store
	rdb         *redis.Client
	synchronize *indexing.Synchronizer
	runner      *tasks.Runner
	retriever   *retrieval.Retriever
	synthesizer *suggest.Synthesizer
	tagger      *suggest.Tagger
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	st, err := store.Open(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, store: st}

	if cfg.Storage.Redis.Enabled() {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:        cfg.Storage.Redis.Addr(),
			Password:    cfg.Storage.Redis.Password,
			DB:          cfg.Storage.Redis.DB,
			DialTimeout: cfg.Storage.Redis.Timeout,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("redis connection failed (%s): %w", cfg.Storage.Redis.Addr(), err)
		}
	}

	vectors, err := a.vectorStore()
	if err != nil {
		a.close()
		return nil, err
	}
	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		a.close()
		return nil, err
	}

	embedOpts := embedding.Options{
		Model:      cfg.LLM.EmbeddingModel,
		Dimensions: cfg.Vector.Dimensions,
		Timeout:    cfg.LLM.EmbeddingTimeout,
		Logger:     log.New(os.Stdout, "[EMBED] ", log.LstdFlags),
	}
	if a.rdb != nil && cfg.LLM.EmbeddingCacheTTL > 0 {
		embedOpts.Cache = embedding.NewRedisCache(a.rdb, cfg.LLM.EmbeddingCacheTTL)
	}
	embedder := embedding.NewGenerator(provider, embedOpts)

	a.synchronize = indexing.NewSynchronizer(vectors, embedder, st, indexing.Options{
		Collection:    cfg.Vector.Collection,
		Dimensions:    cfg.Vector.Dimensions,
		VectorTimeout: cfg.Vector.Timeout,
		Logger:        log.New(os.Stdout, "[INDEX] ", log.LstdFlags),
	})
	a.runner = tasks.NewRunner(a.synchronize, cfg.Indexing.TaskTimeout, log.New(os.Stdout, "[TASKS] ", log.LstdFlags))
	a.retriever = retrieval.NewRetriever(vectors, embedder, retrieval.Options{
		Collection:    cfg.Vector.Collection,
		Threshold:     cfg.Suggest.SimilarityThreshold,
		VectorTimeout: cfg.Vector.Timeout,
	})
	suggestLogger := log.New(os.Stdout, "[SUGGEST] ", log.LstdFlags)
	a.synthesizer = suggest.NewSynthesizer(a.retriever, provider, suggest.Options{
		Model:       cfg.LLM.CompletionModel,
		Temperature: cfg.Suggest.Temperature,
		MaxTokens:   cfg.Suggest.MaxTokens,
		Limit:       cfg.Suggest.Limit,
		Timeout:     cfg.LLM.CompletionTimeout,
		Logger:      suggestLogger,
	})
	if cfg.Suggest.TaggingEnabled {
		a.tagger = suggest.NewTagger(provider, cfg.LLM.CompletionModel, cfg.Suggest.TaggingTimeout, suggestLogger)
	}
	return a, nil
}

func (a *app) vectorStore() (vectorstore.Store, error) {
	switch a.cfg.Vector.Backend {
	case "qdrant":
		return qdrant.New(qdrant.Config{
			URL:        a.cfg.Vector.URL,
			APIKey:     a.cfg.Vector.APIKey,
			Timeout:    a.cfg.Vector.Timeout,
			MaxRetries: a.cfg.Vector.MaxRetries,
		}), nil
	case "pgvector":
		return pgvector.New(a.store.DB), nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown vector backend %q", a.cfg.Vector.Backend)
	}
}

// queue returns the configured task queue; the inline queue is also returned so callers can
// drain it on shutdown.
func (a *app) queue() (tasks.Queue, *tasks.InlineQueue) {
	if a.cfg.Indexing.Mode == "stream" {
		return tasks.NewStreamQueue(streams.NewPublisher(a.rdb), a.cfg.Indexing.Stream, 100000), nil
	}
	inline := tasks.NewInlineQueue(a.runner)
	return inline, inline
}

// bootstrap prepares the collection. The index is best-effort, so failure is only logged.
// The memory backend starts empty, so mappings left by an earlier process are dropped and the
// reconciler rebuilds the index.
func (a *app) bootstrap(ctx context.Context) {
	if err := a.synchronize.Bootstrap(ctx); err != nil {
		log.Printf("warn: vector collection %s not ready: %v", a.cfg.Vector.Collection, err)
	}
	if a.cfg.Vector.Backend == "memory" {
		n, err := a.store.ClearIndexMappings(ctx, a.cfg.Vector.Collection)
		if err != nil {
			log.Printf("warn: stale index mappings of %s not cleared: %v", a.cfg.Vector.Collection, err)
			return
		}
		if n > 0 {
			log.Printf("memory index starts empty; cleared %d stale mapping(s) of %s", n, a.cfg.Vector.Collection)
		}
	}
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}
