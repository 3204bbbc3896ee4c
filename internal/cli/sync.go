package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/david/place-sync/internal/alerts"
	"github.com/david/place-sync/internal/db"
	"github.com/david/place-sync/internal/ingest"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// Syncer runs one feed sync.
type Syncer interface {
	SyncFeed(ctx context.Context, feed ingest.FeedConfig, opts ingest.SyncOptions) (ingest.Stats, error)
}

type syncFlags struct {
	feed   string
	limit  int
	pages  int
	notify bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(root *RootOptions) *cobra.Command {
	flags := &syncFlags{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize tenders from a PLACE feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.Config
			if flags.feed == "" {
				flags.feed = cfg.Sync.Feed
			}
			if !cmd.Flags().Changed("notify") {
				flags.notify = cfg.Sync.Notify
			}
			if flags.pages == 0 {
				flags.pages = cfg.Sync.MaxPages
			}

			registry, err := ingest.LoadRegistry(root.FeedsPath)
			if err != nil {
				return err
			}
			feed, err := registry.Feed(flags.feed)
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			pool, err := root.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			pipeline := ingest.NewPipeline(pool, root.Logger, loc)
			if cfg.Sync.BatchSize > 0 {
				pipeline.BatchSize = cfg.Sync.BatchSize
			}
			if flags.notify {
				notifier := alerts.LogNotifier{Logger: root.Logger}
				pipeline.Hooks = append(pipeline.Hooks, alerts.NewDispatcher(db.NewStore(pool), notifier, root.Logger))
			}

			opts := ingest.SyncOptions{Limit: flags.limit, MaxPages: flags.pages}
			return runSync(ctx, cmd.OutOrStdout(), pipeline, feed, opts, root.Verbose)
		},
	}

	cmd.Flags().StringVar(&flags.feed, "feed", "", "feed id from the registry (default sync.feed)")
	cmd.Flags().IntVarP(&flags.limit, "limit", "l", 0, "maximum number of entries to process")
	cmd.Flags().IntVar(&flags.pages, "pages", 0, "feed pages to follow (default from the feed)")
	cmd.Flags().BoolVar(&flags.notify, "notify", false, "evaluate active alerts after the run")

	return cmd
}

func runSync(ctx context.Context, w io.Writer, s Syncer, feed ingest.FeedConfig, opts ingest.SyncOptions, verbose bool) error {
	fmt.Fprintln(w, "Sincronización con PLACE")
	fmt.Fprintf(w, "Feed: %s\n", feed.URL)
	if opts.Limit > 0 {
		fmt.Fprintf(w, "Límite: %d entradas\n", opts.Limit)
	}
	fmt.Fprintln(w)

	stats, err := s.SyncFeed(ctx, feed, opts)
	if err != nil {
		var syncErr *ingest.SyncError
		if errors.As(err, &syncErr) {
			renderStats(w, syncErr.Stats)
		}
		fmt.Fprintf(w, "Error durante la sincronización: %v\n", err)
		if verbose {
			for cause := errors.Unwrap(err); cause != nil; cause = errors.Unwrap(cause) {
				fmt.Fprintf(w, "Caused by: %v\n", cause)
			}
		}
		return err
	}

	renderStats(w, stats)
	fmt.Fprintln(w, "Sincronización completada")
	return nil
}

func renderStats(w io.Writer, stats ingest.Stats) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Métrica", "Valor"})
	t.AppendRows([]table.Row{
		{"Total procesadas", stats.Total},
		{"Nuevas", stats.New},
		{"Actualizadas", stats.Updated},
		{"Errores", stats.Errors},
	})
	t.Render()
}
