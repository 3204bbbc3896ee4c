package cli

import (
	"github.com/david/place-sync/internal/db"
	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := root.connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.ApplyMigrations(ctx, pool, root.Logger)
		},
	}
}
