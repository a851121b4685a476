package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/pagemind/config"
	"github.com/mohammad-safakhou/pagemind/internal/pages"
	"github.com/mohammad-safakhou/pagemind/internal/reconcile"
	"github.com/mohammad-safakhou/pagemind/internal/server"
	"github.com/mohammad-safakhou/pagemind/internal/store"
	"github.com/mohammad-safakhou/pagemind/internal/versions"
)

func serveCMD() *cobra.Command {
	var serveAddr string
	var cfgPath string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if cfg.Server.AutoMigrate {
				if err := store.Migrate(cfg.Server.MigrationsDir, cfg.Storage.Postgres.DSN(), "up", 0); err != nil {
					return err
				}
			}
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			a.bootstrap(ctx)

			queue, inline := a.queue()
			opts := pages.Options{Suggester: a.synthesizer, Finder: a.retriever, Logger: log.New(os.Stdout, "[PAGES] ", log.LstdFlags)}
			if a.tagger != nil {
				opts.Tagger = a.tagger
			}
			svc := pages.NewService(a.store, versions.NewManager(a.store), queue, opts)

			if cfg.Indexing.ReconcileCron != "" {
				recOpts := reconcile.Options{
					Collection: cfg.Vector.Collection,
					Cron:       cfg.Indexing.ReconcileCron,
					Batch:      cfg.Indexing.ReconcileBatch,
					Logger:     log.New(os.Stdout, "[RECONCILE] ", log.LstdFlags),
				}
				if a.rdb != nil {
					recOpts.Locker = reconcile.RedisLocker{Rdb: a.rdb}
				}
				rec, err := reconcile.New(a.store, queue, recOpts)
				if err != nil {
					return err
				}
				go func() {
					if err := rec.Run(ctx); err != nil {
						log.Printf("warn: reconciler stopped: %v", err)
					}
				}()
			}

			e := server.New(svc, server.Options{
				JWTSecret:      []byte(cfg.Server.JWTSecret),
				MetricsEnabled: cfg.Telemetry.MetricsEnabled,
				Ready:          func(ctx context.Context) error { return a.store.DB.PingContext(ctx) },
				Logger:         log.New(os.Stdout, "[HTTP] ", log.LstdFlags),
			})
			err = server.Serve(ctx, e, cfg.Server.Address, cfg.Server.ShutdownTimeout)

			if inline != nil {
				drainCtx, stop := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer stop()
				if werr := inline.Wait(drainCtx); werr != nil {
					log.Printf("warn: index tasks still running at shutdown: %v", werr)
				}
			}
			return err
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
