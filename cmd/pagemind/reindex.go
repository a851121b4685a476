package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/pagemind/config"
	"github.com/mohammad-safakhou/pagemind/internal/reconcile"
)

func reindexCMD() *cobra.Command {
	var cfgPath string
	var batch int
	var reindex = &cobra.Command{
		Use:   "reindex",
		Short: "Run one reconciliation sweep between pages and the vector index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.close()
			a.bootstrap(ctx)

			if batch <= 0 {
				batch = cfg.Indexing.ReconcileBatch
			}
			queue, inline := a.queue()
			rec, err := reconcile.New(a.store, queue, reconcile.Options{
				Collection: cfg.Vector.Collection,
				Batch:      batch,
				Logger:     log.New(os.Stdout, "[RECONCILE] ", log.LstdFlags),
			})
			if err != nil {
				return err
			}
			res, err := rec.RunOnce(ctx)
			if err != nil {
				return err
			}
			if inline != nil {
				if err := inline.Wait(ctx); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %d index and %d remove tasks\n", res.Indexed, res.Removed)
			return nil
		},
	}
	reindex.Flags().IntVar(&batch, "batch", 0, "max pages and orphans per sweep (default indexing.reconcile_batch)")
	reindex.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	return reindex
}
