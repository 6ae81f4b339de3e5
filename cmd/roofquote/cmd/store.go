package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/migrations"
	"github.com/JBODE-mhhs/sfl-roof-estimator/internal/seed"
)

var seedOverwrite bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		applied, err := migrations.Up(cmd.Context(), a.db)
		if err != nil {
			return err
		}
		version, err := migrations.Version(cmd.Context(), a.db)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s), schema version %d\n", applied, version)
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the default waste rules, rate card and finance plans",
	Long: `Load the built-in configuration into the store.

Existing rows are left untouched unless --overwrite is given, so
administrator edits survive repeated runs.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := migrations.Up(cmd.Context(), a.db); err != nil {
			return err
		}
		stats, err := seed.Run(cmd.Context(), a.db, seed.Options{Overwrite: seedOverwrite})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seed complete: %d inserted, %d updated\n", stats.Inserts, stats.Updates)
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedOverwrite, "overwrite", false, "replace existing rows with the defaults")
}
