package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/internal/skills"
)

func newSkillsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Work with the skills directory",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})
			reg := skills.NewRegistry(cfg.Skills.Dir, logger)
			if err := reg.Load(cmd.Context()); err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTRIGGERS\tSCHEDULED\tCONVERSATIONAL\tCHANNEL")
			for _, s := range reg.List() {
				fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\n",
					s.Name, strings.Join(s.Triggers, ", "), s.Scheduled, s.Conversational, s.Channel)
			}
			return w.Flush()
		},
	})
	return cmd
}
