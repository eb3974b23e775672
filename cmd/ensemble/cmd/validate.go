package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ensemble/internal/config"
	"ensemble/internal/orchestrator"
	"ensemble/internal/workload"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate WORKLOAD.yml",
		Short: "Check a workload file and construct its actors without running them",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(args[0])
			if err != nil {
				return usageError(err)
			}
			registry, err := builtinCast()
			if err != nil {
				return err
			}
			wc, err := workload.NewContext(cfg, orchestrator.New(), registry, nil)
			if err != nil {
				return usageError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d actors, %d phases)\n", args[0], len(wc.Actors()), cfg.PhaseCount())
			return nil
		},
	}
}
