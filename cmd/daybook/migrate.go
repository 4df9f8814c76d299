package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/amonks/daybook/migration"
	"github.com/amonks/daybook/todo"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite every todo stored at an older generation",
	Long: `Rewrite every todo stored at an older generation in the latest form.

This runs regardless of migration.policy. Documents that cannot be decoded
are reported and left alone.`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var migrateBatchSize int

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().IntVar(&migrateBatchSize, "batch-size", 0, "Documents per write (defaults to migration.batch-size)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	batchSize := a.settings.BatchSize
	if migrateBatchSize > 0 {
		batchSize = migrateBatchSize
	}

	report, err := migration.Run(ctx, a.store, migration.Options{
		Policy:    migration.Persist,
		BatchSize: batchSize,
		Migrate:   todo.MigrateOptions{DefaultContext: a.settings.DefaultContext, Location: a.settings.Location},
		Logger:    &a.log.Logger,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Scanned %d todos: %d stale, %d written\n", report.Scanned, report.Stale, report.Written)
	for _, failure := range report.Invalid {
		fmt.Fprintf(out, "%s %s: %v\n", a.styles.Warning.Render("invalid"), failure.ID, failure.Err)
	}
	for _, failure := range report.Failed {
		fmt.Fprintf(out, "%s %s: %v\n", a.styles.Warning.Render("failed"), failure.ID, failure.Err)
	}
	if len(report.Failed) > 0 {
		return fmt.Errorf("%d todos could not be written", len(report.Failed))
	}
	return nil
}
