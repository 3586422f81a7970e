// Treegate is a defensive gating daemon in front of a source-analysis
// pipeline. Every request passes path validation, input sanitization and
// resource limiting before any parsing happens.
//
// Usage:
//
//	# Run the MCP stdio server (with the introspection HTTP server if enabled)
//	treegate serve
//
//	# One-shot analysis from the command line
//	treegate analyze --root ./src --component Button --attribute OnClick
//
//	# Show version information
//	treegate version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build).
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "treegate",
	Short: "Defensive gating layer for untrusted source analysis",
	Long: `treegate validates paths, sanitizes inputs and enforces resource
ceilings in front of a source parser. It serves tools over the MCP stdio
transport and exposes usage statistics over HTTP.`,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("treegate by Fyrsmith Labs\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"config file path (default ~/.config/treegate/config.yaml)")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
