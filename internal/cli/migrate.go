package cli

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/database"
)

func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := rootOpts.load()
			if err != nil {
				return err
			}

			db, err := database.Connect(cmd.Context(), connectionConfig(cfg), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return migrationService(cfg, logger).MigratePostgres(db, cfg.DatabaseName)
		},
	}
}
