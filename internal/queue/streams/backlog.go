package streams

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Backlog is the work a consumer group has been handed but not acknowledged.
type Backlog struct {
	Pending int64
	// idle time of the oldest pending entry; zero when nothing is pending
	OldestIdle time.Duration
	// consumers holding at least one pending entry
	Holders int
}

// Backlog summarises the pending entries list of the consumer's group.
func (c *Consumer) Backlog(ctx context.Context, stream string) (Backlog, error) {
	if stream == "" {
		return Backlog{}, fmt.Errorf("stream name is required")
	}
	summary, err := c.client.XPending(ctx, stream, c.group).Result()
	if errors.Is(err, redis.Nil) {
		return Backlog{}, nil
	}
	if err != nil {
		return Backlog{}, fmt.Errorf("xpending: %w", err)
	}
	out := Backlog{Pending: summary.Count, Holders: len(summary.Consumers)}
	if summary.Count == 0 {
		return out, nil
	}

	// the lowest pending id is the oldest entry
	oldest, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  c.group,
		Start:  summary.Lower,
		End:    summary.Lower,
		Count:  1,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Backlog{}, fmt.Errorf("xpending oldest: %w", err)
	}
	if len(oldest) > 0 {
		out.OldestIdle = oldest[0].Idle
	}
	return out, nil
}
