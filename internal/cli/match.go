package cli

import (
	"fmt"

	"github.com/david/place-sync/internal/alerts"
	"github.com/david/place-sync/internal/db"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewMatchCommand creates the match command, which explains whether a stored
// tender satisfies an alert.
func NewMatchCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "match <alert-id> <tender-external-id>",
		Short: "Check a stored tender against an alert",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			alertID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid alert id: %w", err)
			}

			ctx := cmd.Context()
			pool, err := root.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			store := db.NewStore(pool)

			alert, err := store.GetAlert(ctx, alertID)
			if err != nil {
				return err
			}
			if alert == nil {
				return fmt.Errorf("alert not found: %s", alertID)
			}
			tender, err := store.GetTender(ctx, args[1])
			if err != nil {
				return err
			}
			if tender == nil {
				return fmt.Errorf("tender not found: %s", args[1])
			}

			w := cmd.OutOrStdout()
			if clause := alerts.FailedClause(*alert, tender.TenderData); clause != "" {
				fmt.Fprintf(w, "No match: %s\n", clause)
				return nil
			}
			fmt.Fprintln(w, "Match")
			return nil
		},
	}
}
