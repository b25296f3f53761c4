// Command donna is the personal assistant dispatcher: Discord ingress, an
// LLM agent subprocess per request, scheduled skills, and reminders.
package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "donna",
		Short:         "Personal assistant dispatcher",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "donna.yaml", "configuration file")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newStatusCmd(&configPath),
		newScheduleCmd(&configPath),
		newSkillsCmd(&configPath),
		newRemindCmd(&configPath),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("donna %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
