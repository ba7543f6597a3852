// player: switches media playback between render surfaces without blocking
// the caller, driven by a watched playlist folder or an explicit list.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables set via -ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
	buildType = "dev"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "player",
		Short:        "player - playback session coordinator",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (default: ./config.yaml if present)")

	rootCmd.AddCommand(runCmd(&configPath))
	rootCmd.AddCommand(playCmd(&configPath))
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("player %s (%s)\nBuilt: %s\n", version, buildType, buildTime)
		},
	}
}
