package cli

import (
	"io"
	"time"

	"github.com/david/place-sync/internal/db"
	"github.com/david/place-sync/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewRunsCommand creates the runs command.
func NewRunsCommand(root *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent sync runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := root.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			runs, err := db.NewStore(pool).ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "number of runs to show")
	return cmd
}

func renderRuns(w io.Writer, runs []models.SyncRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Feed", "Status", "Total", "New", "Updated", "Errors", "Duration", "Started At"})

	for _, r := range runs {
		duration := "Running..."
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{r.FeedID, r.Status, r.Total, r.New, r.Updated, r.Errors, duration, r.StartedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()
}
