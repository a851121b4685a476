package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/indexing"
	"github.com/mohammad-safakhou/pagemind/internal/metrics"
)

// Indexer is the write side of the vector index.
type Indexer interface {
	Upsert(ctx context.Context, req indexing.Request) error
	Remove(ctx context.Context, documentID string) error
}

// Runner executes tasks against the indexer under a per-task timeout.
type Runner struct {
	indexer Indexer
	timeout time.Duration
	logger  *log.Logger
}

func NewRunner(indexer Indexer, timeout time.Duration, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[TASKS] ", log.LstdFlags)
	}
	return &Runner{indexer: indexer, timeout: timeout, logger: logger}
}

// Execute runs one task. Failures are logged and counted here; callers decide on retries.
func (r *Runner) Execute(ctx context.Context, task Task) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()

	var err error
	switch task.Kind {
	case KindIndex:
		err = r.indexer.Upsert(ctx, indexing.Request{
			DocumentID:  task.DocumentID,
			WorkspaceID: task.WorkspaceID,
			Content:     task.Content,
			Metadata:    task.Metadata,
			UpdatedAt:   task.UpdatedAt,
		})
	case KindRemove:
		err = r.indexer.Remove(ctx, task.DocumentID)
	default:
		err = fmt.Errorf("unknown task kind %q", task.Kind)
	}

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
		r.logger.Printf("warn: %s task for %s failed (attempt %d): %v", task.Kind, task.DocumentID, task.Attempt, err)
	}
	metrics.ObserveTask(string(task.Kind), outcome, time.Since(start))
	return err
}
