package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "relaydrop",
	Short: "Relay inbound attachments to Dropbox",
	Long: `Relaydrop ingests file attachments from an email inbox and a
WhatsApp Business webhook and relays each one to a Dropbox folder.

The inbox runs as a one-pass poll; the webhook runs as a long-lived
receiver. Both share the same relay pipeline and configuration file.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	rootCmd.AddCommand(pollCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
