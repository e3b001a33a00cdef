package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paddock",
	Short: "Paddock - PostgreSQL instances as a service on Kubernetes",
	Long: `Paddock provisions managed PostgreSQL instances on a Kubernetes
cluster through durable orchestrations: every create and delete is a
replayable workflow that survives server restarts, and a per-instance
actor watches health for the lifetime of the instance.

The same binary runs the control plane ('paddock server') and the
client commands that talk to it.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Paddock version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("server", envOr("PADDOCK_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().String("token", os.Getenv("PADDOCK_API_TOKEN"), "API bearer token")

	// Add subcommands
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(instanceCmd)
	rootCmd.AddCommand(orchestrationsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Paddock version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
