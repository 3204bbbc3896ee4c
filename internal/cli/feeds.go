package cli

import (
	"io"

	"github.com/david/place-sync/internal/ingest"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// NewFeedsCommand lists the configured feeds.
func NewFeedsCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "feeds",
		Short: "List configured feeds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := ingest.LoadRegistry(root.FeedsPath)
			if err != nil {
				return err
			}
			renderFeeds(cmd.OutOrStdout(), registry.Feeds)
			return nil
		},
	}
}

func renderFeeds(w io.Writer, feeds []ingest.FeedConfig) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "Transport", "Pages", "URL"})
	for _, f := range feeds {
		t.AppendRow(table.Row{f.ID, f.Fetch.Transport, f.MaxPages, f.URL})
	}
	t.Render()
}
