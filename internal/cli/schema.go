package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/tracegate/internal/schema"
)

func init() {
	rootCmd.AddCommand(schemaCmd)
}

var schemaCmd = &cobra.Command{
	Use:   "schema [name]",
	Short: "Print JSON Schema for tracegate documents",
	Long:  "Without a name, lists the available documents.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			for _, n := range schema.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		}
		data, err := schema.Generate(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	},
}
