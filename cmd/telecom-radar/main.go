package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "telecom-radar",
	Short:         "Country-scoped telecom intelligence reports",
	Long:          "Resolve the countries a question is about, collect operator tables, data-center listings, network measurements and traffic telemetry for them, and summarize everything into one Markdown report.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (env vars and .env still apply)")
	rootCmd.AddCommand(serveCmd, reportCmd, tablesCmd, previewCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}
