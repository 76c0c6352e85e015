// Command mnemon runs the agent server and its supporting admin commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mnemonlabs/mnemon/internal/config"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "mnemon",
		Short:         "Memory-tiered conversational agent server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(),
		"path to the INI configuration file")

	root.AddCommand(serveCmd())
	root.AddCommand(createUserCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
