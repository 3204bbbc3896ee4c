package cli

import (
	"context"
	"fmt"

	"github.com/david/place-sync/internal/config"
	"github.com/david/place-sync/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags and the settings loaded from them.
type RootOptions struct {
	Verbose    bool
	ConfigPath string
	FeedsPath  string

	Config *config.Config
	Logger *logrus.Logger
}

// NewRootCommand creates the root command for the placesync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "placesync",
		Short: "PLACE tender synchronizer",
		Long:  "Synchronizes tenders published on the Plataforma de Contratación del Sector Público into PostgreSQL.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return err
			}
			logger, err := config.NewLogger(cfg.Log)
			if err != nil {
				return err
			}
			if opts.Verbose && logger.GetLevel() < logrus.DebugLevel {
				logger.SetLevel(logrus.DebugLevel)
			}
			opts.Config = cfg
			opts.Logger = logger
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (default config/config.yaml)")
	cmd.PersistentFlags().StringVar(&opts.FeedsPath, "feeds", "", "feed registry file (default: built-in registry)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewRunsCommand(opts))
	cmd.AddCommand(NewMatchCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))
	cmd.AddCommand(NewFeedsCommand(opts))

	return cmd
}

func (o *RootOptions) connect(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := db.Connect(ctx, o.Config.Database.URL, o.Config.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}
