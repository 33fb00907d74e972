package cmd

import (
	"fmt"

	"golang-reconciliation-engine/internal/store"
	"golang-reconciliation-engine/pkg/logger"

	"github.com/spf13/cobra"
)

func migrateCmd(s *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		Long: `Migrate applies any pending schema migrations to the database named by --db
or database.path. Every other command migrates on open, so running it by hand
is only needed to prepare a database ahead of time. With --status the schema
version is printed and nothing is applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			statusOnly, _ := cmd.Flags().GetBool("status")

			st, err := store.Open(s.cfg.Database.Path)
			if err != nil {
				return err
			}
			defer st.Close()

			before, err := st.SchemaVersion(ctx)
			if err != nil {
				return err
			}
			if statusOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d\n", st.Path(), before)
				return nil
			}

			log := logger.GetGlobalLogger().WithComponent("cli")
			if err := logger.TimedOperation("migrate", log, func() error { return st.Migrate(ctx) }); err != nil {
				return err
			}
			after, err := st.SchemaVersion(ctx)
			if err != nil {
				return err
			}

			log.WithFields(logger.Fields{
				"database": st.Path(),
				"from":     before,
				"to":       after,
			}).Info("Schema migrated")
			fmt.Fprintf(cmd.OutOrStdout(), "%s: schema version %d -> %d\n", st.Path(), before, after)
			return nil
		},
	}
	cmd.Flags().Bool("status", false, "print the current schema version without migrating")
	return cmd
}
