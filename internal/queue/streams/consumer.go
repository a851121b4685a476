package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Message is one decoded stream entry.
type Message struct {
	ID       string
	Envelope Envelope
}

// ReadOptions bounds a single group read.
type ReadOptions struct {
	Count int64
	Block time.Duration
}

// Consumer reads envelopes of accepted types as a member of a consumer group. Entries that
// cannot be decoded or are of another type are acknowledged and never surface.
type Consumer struct {
	client *redis.Client
	group  string
	name   string
	// eventType -> payload version; empty accepts everything
	accepted map[string]string
}

func NewConsumer(client *redis.Client, group, name string) *Consumer {
	return &Consumer{client: client, group: group, name: name, accepted: map[string]string{}}
}

// Accept limits the consumer to eventType at the given payload version.
func (c *Consumer) Accept(eventType, version string) *Consumer {
	c.accepted[eventType] = version
	return c
}

// EnsureGroup creates group on stream, reading from the start of the stream so entries
// published before the first consumer joined are delivered.
func EnsureGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	if stream == "" || group == "" {
		return fmt.Errorf("stream and group must be provided")
	}
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("xgroup create: %w", err)
	}
	return nil
}

func (c *Consumer) Read(ctx context.Context, stream string, opts ReadOptions) ([]Message, error) {
	if err := c.check(stream); err != nil {
		return nil, err
	}
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{stream, ">"},
		Count:    opts.Count,
		Block:    opts.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	var entries []redis.XMessage
	for _, st := range res {
		entries = append(entries, st.Messages...)
	}
	return c.collect(ctx, stream, entries), nil
}

func (c *Consumer) Ack(ctx context.Context, stream string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.client.XAck(ctx, stream, c.group, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

// AutoClaim takes over entries idle for at least minIdle, starting at start. The returned
// cursor continues the scan; "0-0" means the pending list was exhausted.
func (c *Consumer) AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]Message, string, error) {
	if err := c.check(stream); err != nil {
		return nil, "", err
	}
	entries, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  minIdle,
		Start:    start,
		Count:    count,
	}).Result()
	if err != nil {
		return nil, "", fmt.Errorf("xautoclaim: %w", err)
	}
	return c.collect(ctx, stream, entries), next, nil
}

func (c *Consumer) check(stream string) error {
	if stream == "" {
		return fmt.Errorf("stream name is required")
	}
	if c.group == "" || c.name == "" {
		return fmt.Errorf("consumer group and name must be configured")
	}
	return nil
}

// collect decodes entries and acknowledges the unusable ones in one call.
func (c *Consumer) collect(ctx context.Context, stream string, entries []redis.XMessage) []Message {
	out := make([]Message, 0, len(entries))
	var skipped []string
	for _, entry := range entries {
		env, ok := decodeEntry(entry.Values)
		if !ok || !c.accepts(env) {
			skipped = append(skipped, entry.ID)
			continue
		}
		out = append(out, Message{ID: entry.ID, Envelope: env})
	}
	if len(skipped) > 0 {
		_ = c.Ack(ctx, stream, skipped...)
	}
	return out
}

func (c *Consumer) accepts(env Envelope) bool {
	if len(c.accepted) == 0 {
		return true
	}
	version, ok := c.accepted[env.EventType]
	return ok && version == env.PayloadVersion
}

func decodeEntry(values map[string]interface{}) (Envelope, bool) {
	var data []byte
	switch v := values["envelope"].(type) {
	case nil:
		return Envelope{}, false
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return Envelope{}, false
		}
		data = raw
	}
	env, err := UnmarshalEnvelope(data)
	if err != nil {
		return Envelope{}, false
	}
	return env, true
}
