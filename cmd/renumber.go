package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"cosmos/sieve/internal/catalog"
)

var renumberCmd = &cobra.Command{
	Use:   "renumber <catalog>...",
	Short: "Reassign NUMBER to 1..N in row order, in place",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, path := range args {
			if err := catalog.RenumberFile(path); err != nil {
				return err
			}
			if !quiet {
				fmt.Printf("renumbered %s\n", path)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(renumberCmd)
}
