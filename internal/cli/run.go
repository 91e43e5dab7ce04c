package cli

import (
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the scheduled refresh and the query API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API without scheduling refreshes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Serve(cmd.Context())
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh job and print its report",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Refresh(cmd.Context())
	},
}
