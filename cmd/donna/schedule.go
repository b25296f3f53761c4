package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/schedule"
)

func newScheduleCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Work with the schedule document",
	}
	cmd.AddCommand(newScheduleListCmd(configPath), newScheduleCheckCmd(configPath))
	return cmd
}

func newScheduleListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List scheduled jobs and their next firing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return listSchedule(cmd.OutOrStdout(), cfg.Schedule.Path, cfg.QuietHours.Timezone)
		},
	}
}

func listSchedule(out io.Writer, path, timezone string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	bindings, warnings, rowErrs := schedule.ParseDocument(data, loc)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "JOB\tSKILL\tSCHEDULE\tCHANNEL\tENABLED\tNEXT RUN")
	now := time.Now()
	for _, b := range bindings {
		next := "—"
		if b.Enabled {
			if t := b.Spec.Next(now); !t.IsZero() {
				next = t.In(loc).Format("Mon 02 Jan 15:04")
			}
		}
		flags := b.Channel
		if b.IgnoreQuiet {
			flags += " !quiet"
		}
		if b.Mirror {
			flags += " +whatsapp"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%v\t%s\n",
			b.Job, b.Skill, b.Spec.Raw, flags, b.Enabled, next)
	}
	w.Flush()

	for _, warning := range warnings {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	for _, re := range rowErrs {
		fmt.Fprintf(out, "error: %s\n", re.Error())
	}
	return nil
}

func newScheduleCheckCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a schedule document offline",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else {
				cfg, err := config.Load(*configPath)
				if err != nil {
					return err
				}
				path = cfg.Schedule.Path
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			bindings, warnings, rowErrs := schedule.ParseDocument(data, nil)

			out := cmd.OutOrStdout()
			for _, warning := range warnings {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			for _, re := range rowErrs {
				fmt.Fprintf(out, "error: %s\n", re.Error())
			}
			fmt.Fprintf(out, "%s: %d jobs, %d warnings, %d errors\n",
				path, len(bindings), len(warnings), len(rowErrs))
			if len(rowErrs) > 0 {
				return fmt.Errorf("%d invalid rows", len(rowErrs))
			}
			return nil
		},
	}
}
