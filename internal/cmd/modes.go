package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ensemble-chat/ensemble/internal/modes"
)

var modesCmd = &cobra.Command{
	Use:   "modes",
	Short: "List the available conversation modes",
	Run:   runModes,
}

func init() {
	rootCmd.AddCommand(modesCmd)
}

func runModes(cmd *cobra.Command, _ []string) {
	out := cmd.OutOrStdout()
	for _, name := range modes.Names() {
		min := modes.MinInstances(name)
		noun := "instances"
		if min == 1 {
			noun = "instance"
		}
		fmt.Fprintf(out, "%-14s needs %d %s\n", name, min, noun)
	}
}
