package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/observability"
	"github.com/donnabot/donna/internal/schedule"
	"github.com/donnabot/donna/internal/skills"
)

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Inspect the configured setup offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout(), *configPath)
		},
	}
}

func runStatus(ctx context.Context, out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := observability.NewLogger(observability.LogConfig{Output: io.Discard})

	fmt.Fprintf(out, "donna %s\nconfig: %s\n", version, configPath)

	reg := skills.NewRegistry(cfg.Skills.Dir, logger)
	if err := reg.Load(ctx); err != nil {
		fmt.Fprintf(out, "skills: unavailable (%v)\n", err)
	} else {
		fmt.Fprintf(out, "skills: %d loaded from %s\n", len(reg.List()), cfg.Skills.Dir)
	}

	data, err := os.ReadFile(cfg.Schedule.Path)
	if err != nil {
		fmt.Fprintf(out, "schedule: unavailable (%v)\n", err)
	} else {
		bindings, warnings, rowErrs := schedule.ParseDocument(data, nil)
		fmt.Fprintf(out, "schedule: %d jobs, %d warnings, %d bad rows (%s)\n",
			len(bindings), len(warnings), len(rowErrs), cfg.Schedule.Path)
	}

	db, err := schedule.OpenDB(cfg.Storage.Path)
	if err != nil {
		fmt.Fprintf(out, "storage: unavailable (%v)\n", err)
		return nil
	}
	defer db.Close()
	fmt.Fprintf(out, "storage: %s, %d pending reminders\n",
		cfg.Storage.Path, countPending(ctx, db))
	return nil
}
