package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/pagemind/config"
	"github.com/mohammad-safakhou/pagemind/internal/queue/streams"
	"github.com/mohammad-safakhou/pagemind/internal/tasks"
)

func workerCMD() *cobra.Command {
	var cfgPath string
	var worker = &cobra.Command{
		Use:   "worker",
		Short: "Consume index tasks from the Redis stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if !cfg.Storage.Redis.Enabled() {
				return fmt.Errorf("worker requires storage.redis.host")
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			a.bootstrap(ctx)

			stream, group := cfg.Indexing.Stream, cfg.Indexing.ConsumerGroup
			if err := streams.EnsureGroup(ctx, a.rdb, stream, group); err != nil {
				return err
			}
			consumerName := fmt.Sprintf("indexer-%s", uuid.NewString()[:8])
			consumer := streams.NewConsumer(a.rdb, group, consumerName).Accept(tasks.EventType, tasks.PayloadVersion)
			requeue := tasks.NewStreamQueue(streams.NewPublisher(a.rdb), stream, 100000)

			w := tasks.NewWorker(a.runner, consumer, requeue, tasks.WorkerOptions{
				Stream:      stream,
				MaxAttempts: cfg.Indexing.MaxAttempts,
				ClaimIdle:   2 * cfg.Indexing.TaskTimeout,
				Logger:      log.New(os.Stdout, "[WORKER] ", log.LstdFlags),
			})
			return w.Run(ctx)
		},
	}
	worker.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return worker
}
