// Package cli implements the tdist command-line client: run status,
// progress watching, and result rendering against the server API.
package cli

import (
	"log/slog"
	"os"

	"github.com/me/tdist/internal/config"
	"github.com/me/tdist/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking TDIST_SERVER first.
func defaultServer() string {
	if s := os.Getenv("TDIST_SERVER"); s != "" {
		return s
	}
	return config.DefaultCLIConfig().ServerURL
}

// NewRootCmd creates the root cobra command for the tdist CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "tdist",
		Short: "tdist — distributed test run client",
		Long:  "tdist watches and reports on distributed test runs coordinated by a tdist server.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.New(flagLogLevel, flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "tdist server URL (or TDIST_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json)")

	root.AddCommand(
		newStatusCmd(),
		newWaitCmd(),
		newResultsCmd(),
		newNodesCmd(),
		newRunsCmd(),
	)

	return root
}
