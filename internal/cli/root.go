package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "navmerge",
	Short: "Download and merge MITRE ATT&CK Navigator layers",
	Long: `navmerge downloads the ATT&CK Navigator layers of groups and software
from the ATT&CK website and merges folders of layers into one heat map.
Technique scores add up, comments are concatenated, and a technique
disabled in any layer stays disabled in the merged layer.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("cache", "", "Path to the catalog cache (overrides NAVMERGE_CACHE_PATH)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error (overrides NAVMERGE_LOG_LEVEL)")
}
