package cmd

import (
	"github.com/spf13/cobra"
)

// Version is injected at build time via -ldflags
var Version = "dev"

// NewRootCommand creates and returns the root cobra command for phonepilot
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phonepilot",
		Short: "Dual-loop supervisor for autonomous phone control",
		Long: `Phonepilot drives an Android device through a vision-language model
using two cooperating loops: a fast executor that perceives the screen
and performs one action per tick, and a slower planner that manages the
todo list, detects stagnation, and intervenes when progress stalls.

Configuration is loaded from config.yaml under the phonepilot home
directory (PHONEPILOT_HOME, or .phonepilot at the repository root).`,
		Version: Version,
		// Silence usage on errors to avoid duplicate help text
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewMemoryCommand())

	return cmd
}
