package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chatpipe",
		Short: "Chat ingestion and delivery server",
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (defaults to CONFIG_PATH env or ./config.toml)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook and admin HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			if configPath != "" {
				os.Setenv("CONFIG_PATH", configPath)
			}
			runServe()
		},
	}
	cmd.AddCommand(serveCmd)
	return cmd
}
