package main

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "agentwire",
		Short:         "Agent communication runtime",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.AddCommand(newLaunchCmd())
	return cmd
}
