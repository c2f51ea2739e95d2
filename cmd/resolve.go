package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <foreign-id>",
	Short: "Map an external id to a catalog item",
	Long: `Resolve an external id such as tt0388629 or kitsu:11469 to an internal
catalog id. Successful mappings are persisted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfgFile)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.svc.ResolveForeignID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("resolve %s: %w", args[0], err)
		}
		d, err := a.svc.GetItem(cmd.Context(), id)
		if err != nil {
			return err
		}
		fmt.Printf("%s -> %s (%s)\n", args[0], id, d.Name)
		return a.svc.Flush()
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}
