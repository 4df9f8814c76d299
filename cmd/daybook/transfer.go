package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/amonks/daybook/internal/jsonl"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write every todo as JSON lines",
	Long: `Write every todo as JSON lines, one {"id","rev","body"} object per line.

Without a file, or with "-", the export goes to stdout. A file is replaced
atomically.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Read todos from a JSON lines export",
	Long: `Read todos from a JSON lines export ("-" reads stdin).

Todos that already exist are skipped unless --replace is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importReplace bool

func init() {
	rootCmd.AddCommand(exportCmd, importCmd)
	importCmd.Flags().BoolVar(&importReplace, "replace", false, "Overwrite todos that already exist")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}

	if len(args) == 0 || args[0] == "-" {
		_, err := jsonl.Export(ctx, a.store, cmd.OutOrStdout())
		return err
	}
	count, err := jsonl.ExportFile(ctx, a.store, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d todos to %s\n", count, args[0])
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var reader io.Reader = cmd.InOrStdin()
	if args[0] != "-" {
		file, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open import file: %w", err)
		}
		defer file.Close()
		reader = file
	}
	docs, err := jsonl.Read(reader)
	if err != nil {
		return err
	}

	a, err := openApp(ctx, openOptions{})
	if err != nil {
		return err
	}
	result, err := jsonl.Import(ctx, a.store, docs, jsonl.ImportOptions{Replace: importReplace})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Imported %d todos (%d skipped, %d failed)\n", result.Written, len(result.Skipped), len(result.Failures))
	for _, failure := range result.Failures {
		fmt.Fprintf(out, "%s %s: %v\n", a.styles.Warning.Render("failed"), failure.ID, failure.Err)
	}
	if len(result.Failures) > 0 {
		return fmt.Errorf("%d todos could not be imported", len(result.Failures))
	}
	return nil
}
