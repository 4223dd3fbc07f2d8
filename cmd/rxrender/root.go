package main

import (
	"github.com/spf13/cobra"

	"clinicrx/internal/shared/telemetry"
)

func newRootCommand() *cobra.Command {
	var logLevel string
	root := &cobra.Command{
		Use:           "rxrender",
		Short:         "Render, save and archive clinic prescriptions.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			telemetry.SetOutput(cmd.ErrOrStderr())
			telemetry.SetLevel(logLevel)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newRenderCommand())
	root.AddCommand(newTokenCommand())
	return root
}
