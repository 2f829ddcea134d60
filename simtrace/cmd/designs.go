package cmd

import (
	"github.com/sarchlab/simtrace/sim"
	"github.com/spf13/cobra"
)

var designsCmd = &cobra.Command{
	Use:   "designs",
	Short: "List the designs that can be simulated.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		p := newPrinter(cmd, cmd.OutOrStdout())

		names := sim.DesignNames()
		if len(names) == 0 {
			p.warn("No design registered.")
			return
		}

		for _, name := range names {
			p.plain("%s", name)
		}
	},
}

func init() {
	rootCmd.AddCommand(designsCmd)
}
