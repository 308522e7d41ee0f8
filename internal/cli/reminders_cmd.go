package cli

import (
	"errors"
	"fmt"

	"github.com/example/langfocus/internal/app"
	"github.com/spf13/cobra"
)

func newRemindersCmd(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect and send practice reminders",
	}

	cmd.AddCommand(
		newRemindersSendCmd(env),
		newRemindersStatsCmd(env),
		newRemindersBackfillCmd(env),
		newRemindersToggleCmd(env, "enable", true),
		newRemindersToggleCmd(env, "disable", false),
	)
	return cmd
}

func newRemindersSendCmd(env *Env) *cobra.Command {
	var userID int64
	var all bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Run a reminder sweep now, or force reminders with --user / --all",
		RunE: func(cmd *cobra.Command, args []string) error {
			if all && userID != 0 {
				return errors.New("--user and --all are mutually exclusive")
			}
			ctx := cmdContext(cmd)
			a, err := env.open(ctx, app.ModeNotify)
			if err != nil {
				return err
			}
			defer closeApp(a)

			out := cmd.OutOrStdout()
			switch {
			case userID != 0:
				outcome, err := a.Reminders.ForceReminder(ctx, userID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "user %d: %s\n", userID, outcome)
				return nil
			case all:
				report, err := a.Reminders.ForceReminderAll(ctx)
				if err != nil {
					return err
				}
				printReport(cmd, report.Considered, report.Sent, report.Skipped, report.Unreachable, report.Transient+report.Failed)
				return nil
			default:
				report, err := a.Reminders.Sweep(ctx)
				if err != nil {
					return err
				}
				printReport(cmd, report.Considered, report.Sent, report.Skipped, report.Unreachable, report.Transient+report.Failed)
				return nil
			}
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Force a reminder to this user id")
	cmd.Flags().BoolVar(&all, "all", false, "Force reminders to every user")
	return cmd
}

func printReport(cmd *cobra.Command, considered, sent, skipped, unreachable, failed int) {
	fmt.Fprintf(cmd.OutOrStdout(), "considered %d, sent %d, skipped %d, unreachable %d, failed %d\n",
		considered, sent, skipped, unreachable, failed)
}

func newRemindersStatsCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show reminder counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			a, err := env.open(ctx, app.ModeStorage)
			if err != nil {
				return err
			}
			defer closeApp(a)

			stats, err := a.Reminders.Stats(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "total users:   %d\n", stats.TotalUsers)
			fmt.Fprintf(out, "tracked users: %d\n", stats.TrackedUsers)
			fmt.Fprintf(out, "eligible now:  %d\n", stats.EligibleNow)
			fmt.Fprintf(out, "sent today:    %d\n", stats.SentToday)
			return nil
		},
	}
}

func newRemindersBackfillCmd(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "backfill",
		Short: "Create missing reminder tracking rows for existing users",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			a, err := env.open(ctx, app.ModeStorage)
			if err != nil {
				return err
			}
			defer closeApp(a)

			n, err := a.Users.BackfillReminderStates(ctx, nowUTC())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %d reminder rows\n", n)
			return nil
		},
	}
}

func newRemindersToggleCmd(env *Env, use string, enabled bool) *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("%s reminders for a user", use),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmdContext(cmd)
			a, err := env.open(ctx, app.ModeStorage)
			if err != nil {
				return err
			}
			defer closeApp(a)

			if err := a.Reminders.SetReminderEnabled(ctx, userID, enabled); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reminders %sd for user %d\n", use, userID)
			return nil
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "Telegram user id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
