package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var toolsJSON bool

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the agent can call",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, _, err := loadApp()
		if err != nil {
			return err
		}

		defs := a.Tools.Definitions()
		if toolsJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(defs)
		}

		for _, d := range defs {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (required: %v)\n  %s\n", d.Name, d.Required, d.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().BoolVar(&toolsJSON, "json", false, "Output the catalog as JSON")
}
