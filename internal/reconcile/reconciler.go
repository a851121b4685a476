// Package reconcile repairs drift between the page table and the vector index.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/pagemind/internal/metrics"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/tasks"
)

const lockKey = "pagemind:reconcile:lock"

// Source lists the rows that disagree with the index.
type Source interface {
	ListPagesNeedingIndex(ctx context.Context, collection string, limit int) ([]store.PageRecord, error)
	ListOrphanMappings(ctx context.Context, limit int) ([]store.IndexMapping, error)
}

// Locker guards a sweep against concurrent replicas.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker is a SETNX lock with expiry.
type RedisLocker struct {
	Rdb *redis.Client
}

func (l RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.Rdb.SetNX(ctx, key, "1", ttl).Result()
}

func (l RedisLocker) Release(ctx context.Context, key string) error {
	return l.Rdb.Del(ctx, key).Err()
}

type Options struct {
	Collection string
	Cron       string
	Batch      int
	LockTTL    time.Duration
	Locker     Locker
	Logger     *log.Logger
	Now        func() time.Time
}

// Result counts the tasks enqueued by one sweep.
type Result struct {
	Indexed int
	Removed int
}

type Reconciler struct {
	source     Source
	queue      tasks.Queue
	collection string
	batch      int
	schedule   *cronexpr.Expression
	lockTTL    time.Duration
	locker     Locker
	logger     *log.Logger
	now        func() time.Time
}

func New(source Source, queue tasks.Queue, opts Options) (*Reconciler, error) {
	var schedule *cronexpr.Expression
	if opts.Cron != "" {
		expr, err := cronexpr.Parse(opts.Cron)
		if err != nil {
			return nil, fmt.Errorf("parse reconcile cron %q: %w", opts.Cron, err)
		}
		schedule = expr
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[RECONCILE] ", log.LstdFlags)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Batch <= 0 {
		opts.Batch = 100
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &Reconciler{
		source:     source,
		queue:      queue,
		collection: opts.Collection,
		batch:      opts.Batch,
		schedule:   schedule,
		lockTTL:    opts.LockTTL,
		locker:     opts.Locker,
		logger:     logger,
		now:        now,
	}, nil
}

// RunOnce enqueues index tasks for stale or unindexed pages and remove tasks for mappings
// whose page is gone.
func (r *Reconciler) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	pages, err := r.source.ListPagesNeedingIndex(ctx, r.collection, r.batch)
	if err != nil {
		return res, fmt.Errorf("list pages needing index: %w", err)
	}
	for _, page := range pages {
		if err := r.queue.Enqueue(ctx, tasks.IndexPage(page)); err != nil {
			r.logger.Printf("warn: enqueue index %s: %v", page.ID, err)
			continue
		}
		res.Indexed++
	}

	orphans, err := r.source.ListOrphanMappings(ctx, r.batch)
	if err != nil {
		return res, fmt.Errorf("list orphan mappings: %w", err)
	}
	for _, m := range orphans {
		if err := r.queue.Enqueue(ctx, tasks.RemovePage(m.DocumentID)); err != nil {
			r.logger.Printf("warn: enqueue remove %s: %v", m.DocumentID, err)
			continue
		}
		res.Removed++
	}
	metrics.ReconcileEnqueued.WithLabelValues(string(tasks.KindIndex)).Add(float64(res.Indexed))
	metrics.ReconcileEnqueued.WithLabelValues(string(tasks.KindRemove)).Add(float64(res.Removed))
	return res, nil
}

// Run sweeps on the cron schedule until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	if r.schedule == nil {
		return fmt.Errorf("reconcile schedule not configured")
	}
	for {
		next := r.schedule.Next(r.now())
		if next.IsZero() {
			return fmt.Errorf("reconcile schedule has no future activation")
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		r.sweep(ctx)
	}
}

func (r *Reconciler) sweep(ctx context.Context) {
	if r.locker != nil {
		ok, err := r.locker.Acquire(ctx, lockKey, r.lockTTL)
		if err != nil {
			r.logger.Printf("warn: acquire lock: %v", err)
			metrics.ReconcileRuns.WithLabelValues("error").Inc()
			return
		}
		if !ok {
			metrics.ReconcileRuns.WithLabelValues("skipped").Inc()
			return
		}
		defer func() {
			if err := r.locker.Release(context.WithoutCancel(ctx), lockKey); err != nil {
				r.logger.Printf("warn: release lock: %v", err)
			}
		}()
	}
	res, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Printf("warn: sweep failed: %v", err)
		metrics.ReconcileRuns.WithLabelValues("error").Inc()
		return
	}
	metrics.ReconcileRuns.WithLabelValues("ok").Inc()
	if res.Indexed+res.Removed > 0 {
		r.logger.Printf("sweep enqueued %d index and %d remove tasks", res.Indexed, res.Removed)
	}
}
