package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command of the CRM mail service
var rootCmd = &cobra.Command{
	Use:   "crm-mail",
	Short: "CRM email pipeline: mailbox sync, tracked sending and inbound rules",
	Long: `crm-mail connects company mailboxes to the CRM.

It can run as:
  - The API server with its background workers (serve, the default)
  - A one-off sync of every syncable account (sync)
  - A seeding job for the starter templates (seed-templates)

Configuration is read from the environment, after an optional .env file.`,
	SilenceUsage: true,
}

func setVersion(v string) {
	rootCmd.Version = v
}

func execute() {
	rootCmd.SetVersionTemplate(`{{printf "crm-mail version %s\n" .Version}}`)

	// No subcommand runs the server
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newSeedTemplatesCmd())
}
