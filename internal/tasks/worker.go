package tasks

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/mohammad-safakhou/pagemind/internal/faults"
	"github.com/mohammad-safakhou/pagemind/internal/metrics"
	"github.com/mohammad-safakhou/pagemind/internal/queue/streams"
)

// Reader is the consuming half of the stream transport.
type Reader interface {
	Read(ctx context.Context, stream string, opts streams.ReadOptions) ([]streams.Message, error)
	Ack(ctx context.Context, stream string, ids ...string) error
	AutoClaim(ctx context.Context, stream string, minIdle time.Duration, start string, count int64) ([]streams.Message, string, error)
	Backlog(ctx context.Context, stream string) (streams.Backlog, error)
}

type WorkerOptions struct {
	Stream      string
	MaxAttempts int
	// entries pending longer than this are taken over from dead consumers on start
	ClaimIdle time.Duration
	Block     time.Duration
	Logger    *log.Logger
}

// Worker consumes index tasks from a stream, retrying failures by re-publishing them.
type Worker struct {
	exec        Executor
	reader      Reader
	requeue     Queue
	stream      string
	maxAttempts int
	claimIdle   time.Duration
	block       time.Duration
	logger      *log.Logger
}

func NewWorker(exec Executor, reader Reader, requeue Queue, opts WorkerOptions) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[TASKS] ", log.LstdFlags)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.ClaimIdle <= 0 {
		opts.ClaimIdle = time.Minute
	}
	return &Worker{
		exec:        exec,
		reader:      reader,
		requeue:     requeue,
		stream:      opts.Stream,
		maxAttempts: opts.MaxAttempts,
		claimIdle:   opts.ClaimIdle,
		block:       opts.Block,
		logger:      logger,
	}
}

// Run blocks, processing tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Printf("index worker starting; consuming stream %s", w.stream)
	w.reclaim(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Printf("index worker stopping: %v", ctx.Err())
			return nil
		default:
		}

		msgs, err := w.reader.Read(ctx, w.stream, streams.ReadOptions{Count: 16, Block: w.block})
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.logger.Printf("error reading stream: %v", err)
			sleep(ctx, time.Second)
			continue
		}
		if len(msgs) == 0 {
			w.reportBacklog(ctx)
			continue
		}
		w.process(ctx, msgs)
	}
}

func (w *Worker) process(ctx context.Context, msgs []streams.Message) {
	for _, msg := range msgs {
		w.handle(ctx, msg)
		if err := w.reader.Ack(ctx, w.stream, msg.ID); err != nil {
			w.logger.Printf("warn: failed to ack message %s: %v", msg.ID, err)
		}
	}
}

func (w *Worker) handle(ctx context.Context, msg streams.Message) {
	var task Task
	if err := msg.Envelope.Decode(&task); err != nil {
		w.logger.Printf("warn: drop message %s: %v", msg.ID, err)
		metrics.IndexTasks.WithLabelValues("unknown", metrics.OutcomeDropped).Inc()
		return
	}
	task.Attempt = msg.Envelope.Attempt

	err := w.exec.Execute(ctx, task)
	if err == nil {
		return
	}
	if errors.Is(err, faults.ErrValidation) || task.Attempt+1 >= w.maxAttempts {
		w.logger.Printf("warn: giving up on %s task for %s after attempt %d", task.Kind, task.DocumentID, task.Attempt)
		metrics.IndexTasks.WithLabelValues(string(task.Kind), metrics.OutcomeDropped).Inc()
		return
	}
	task.Attempt++
	if err := w.requeue.Enqueue(ctx, task); err != nil {
		w.logger.Printf("warn: requeue %s task for %s failed: %v", task.Kind, task.DocumentID, err)
		return
	}
	metrics.IndexTasks.WithLabelValues(string(task.Kind), metrics.OutcomeRetried).Inc()
}

// reclaim takes over entries left pending by consumers that died mid-task.
func (w *Worker) reclaim(ctx context.Context) {
	start := "0-0"
	for {
		msgs, next, err := w.reader.AutoClaim(ctx, w.stream, w.claimIdle, start, 16)
		if err != nil {
			w.logger.Printf("warn: reclaim pending entries failed: %v", err)
			return
		}
		if len(msgs) > 0 {
			w.logger.Printf("reclaimed %d pending entries", len(msgs))
			w.process(ctx, msgs)
		}
		if next == "" || next == "0-0" || ctx.Err() != nil {
			return
		}
		start = next
	}
}

// reportBacklog publishes the group's unacknowledged work while the stream is idle.
func (w *Worker) reportBacklog(ctx context.Context) {
	backlog, err := w.reader.Backlog(ctx, w.stream)
	if err != nil {
		if ctx.Err() == nil {
			w.logger.Printf("warn: read stream backlog: %v", err)
		}
		return
	}
	metrics.StreamPending.Set(float64(backlog.Pending))
	metrics.StreamOldestPending.Set(backlog.OldestIdle.Seconds())
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
