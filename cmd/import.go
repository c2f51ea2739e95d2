package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Another0Noob/animecatalog/internal/primaryapi"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Seed the catalog from a JSON or CSV dump",
	Long: `Read primary source records from a JSON (array or id-keyed object) or CSV
file, merge them into the catalog and persist the result.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cfgFile, args[0])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(configPath, inputPath string) error {
	records, err := primaryapi.ParseFile(inputPath)
	if err != nil {
		return fmt.Errorf("parse file: %w", err)
	}
	fmt.Printf("Got %d records.\n", len(records))

	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.svc.Import(records)
	fmt.Printf("Imported %d items, catalog now holds %d.\n", n, len(a.svc.Items()))

	if err := a.svc.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}
