package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write the stored catalog to a dated file",
	Long: `Write every catalog item known to the store to a file named after the
current date. The txt format has one "id<TAB>name" line per item.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runExport(cfgFile, exportFormat)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(
		&exportFormat,
		"format",
		"f",
		"txt",
		"output format (txt or json)",
	)
}

func runExport(configPath, format string) error {
	if format != "txt" && format != "json" {
		return fmt.Errorf("unknown format %q", format)
	}

	a, err := newApp(configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	items := a.svc.Items()
	fmt.Printf("Got %d catalog items.\n", len(items))

	t := time.Now()
	name := fmt.Sprintf("%d-%d-%d-catalog.%s", t.Year(), t.Month(), t.Day(), format)

	file, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("create %s: %w", name, err)
	}
	defer file.Close()

	if format == "json" {
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		if err := enc.Encode(items); err != nil {
			return err
		}
	} else {
		for _, it := range items {
			if _, err := fmt.Fprintf(file, "%s\t%s\n", it.ID, it.Name); err != nil {
				return err
			}
		}
	}
	fmt.Printf("Wrote %s\n", name)
	return nil
}
