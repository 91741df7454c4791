// Package cmd implements the dimctl command-line interface using Cobra.
// The run subcommand hosts the daemon; status, set and rescan are thin
// clients of its control socket.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dimctl/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "dimctl",
	Short: "Idle-aware display brightness daemon",
	Long: `dimctl dims external and built-in displays after a period of user
inactivity, holds off while media is playing, and restores brightness
the moment you come back. Manual overrides and status queries go
through its control socket.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var socketFlag string

func init() {
	rootCmd.PersistentFlags().StringVar(&socketFlag, "socket", config.DefaultSocketPath(), "daemon control socket path")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
