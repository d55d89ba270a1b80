package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "service",
		Short: "Launch dashboard gateway",
		Long: `Launch dashboard gateway: password-gated settings pages and a relay for the
rocket simulation status service.

Configuration is read from config/{ENV_NAME}.yaml (default dev) and
config/secrets.yaml in the working directory. PASSWORD, APP_ENV,
CACHE_BACKEND, MEMCACHED_ADDRS, REDIS_ADDR and LOG_LEVEL override it.

Running without a subcommand is the same as "serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(newServeCmd(), newProbeCmd(), newHashPasswordCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "launch-dashboard %s\n", version)
		},
	}
}
