package tasks

import (
	"context"
	"sync"
)

// InlineQueue runs each task on its own goroutine inside the serving process.
type InlineQueue struct {
	exec Executor
	wg   sync.WaitGroup
}

func NewInlineQueue(exec Executor) *InlineQueue {
	return &InlineQueue{exec: exec}
}

// Enqueue starts the task and returns immediately. The task outlives the request context.
func (q *InlineQueue) Enqueue(ctx context.Context, task Task) error {
	detached := context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		_ = q.exec.Execute(detached, task)
	}()
	return nil
}

// Wait blocks until in-flight tasks finish or ctx is done.
func (q *InlineQueue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
