package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/donnabot/donna/internal/config"
	"github.com/donnabot/donna/internal/reminders"
	"github.com/donnabot/donna/internal/schedule"
)

func newRemindCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Manage reminders from the command line",
	}
	cmd.AddCommand(
		newRemindAddCmd(configPath),
		newRemindListCmd(configPath),
		newRemindCancelCmd(configPath),
	)
	return cmd
}

func openReminderStore(configPath string) (*reminders.SQLiteStore, func(), *config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := schedule.OpenDB(cfg.Storage.Path)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := reminders.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	return store, func() { db.Close() }, cfg, nil
}

func newRemindAddCmd(configPath *string) *cobra.Command {
	var user, channel string
	cmd := &cobra.Command{
		Use:   "add <when> <task>",
		Short: "Create a reminder",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, cfg, err := openReminderStore(*configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			loc, err := time.LoadLocation(cfg.QuietHours.Timezone)
			if err != nil {
				loc = time.Local
			}
			now := time.Now()
			runAt, err := reminders.ParseWhen(args[0], now, loc)
			if err != nil {
				return err
			}
			task := strings.Join(args[1:], " ")

			id, err := store.Create(cmd.Context(), user, channel, task, runAt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reminder %s set for %s (in %s)\n",
				id, runAt.In(loc).Format(time.RFC1123),
				reminders.FormatUntil(runAt.Sub(now)))
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "user the reminder belongs to")
	cmd.Flags().StringVar(&channel, "channel", "", "channel to deliver into")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newRemindListCmd(configPath *string) *cobra.Command {
	var user string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pending reminders",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, _, err := openReminderStore(*configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			pending, err := store.List(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no pending reminders")
				return nil
			}
			for _, r := range pending {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %s\n",
					r.ID, r.RunAt.Format(time.RFC1123), r.Task)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "cli", "user whose reminders to list")
	return cmd
}

func newRemindCancelCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, _, err := openReminderStore(*configPath)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", args[0])
			return nil
		},
	}
}
