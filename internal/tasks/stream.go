package tasks

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/pagemind/internal/queue/streams"
)

// Publisher is the publishing half of the stream transport.
type Publisher interface {
	PublishRaw(ctx context.Context, stream, eventType, version string, attempt int, payload interface{}, opts ...streams.PublishOption) (string, error)
}

// StreamQueue hands tasks to out-of-process workers through a Redis stream.
type StreamQueue struct {
	publisher Publisher
	stream    string
	maxLen    int64
}

func NewStreamQueue(publisher Publisher, stream string, maxLen int64) *StreamQueue {
	return &StreamQueue{publisher: publisher, stream: stream, maxLen: maxLen}
}

func (q *StreamQueue) Enqueue(ctx context.Context, task Task) error {
	if task.DocumentID == "" {
		return fmt.Errorf("enqueue %s task: document id required", task.Kind)
	}
	if _, err := q.publisher.PublishRaw(ctx, q.stream, EventType, PayloadVersion, task.Attempt, task, streams.WithMaxLenApprox(q.maxLen)); err != nil {
		return fmt.Errorf("enqueue %s task for %s: %w", task.Kind, task.DocumentID, err)
	}
	return nil
}
