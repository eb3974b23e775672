package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func listActorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-actors",
		Short: "List the actor types a workload can use",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := builtinCast()
			if err != nil {
				return err
			}
			for _, name := range registry.Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
