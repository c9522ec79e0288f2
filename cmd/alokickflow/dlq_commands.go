package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/dlq"
)

func newDLQCommand(ctx *commandContext) *cobra.Command {
	dlqCmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and manage the dead-letter queue",
	}

	dlqCmd.AddCommand(newDLQListCommand(ctx))
	dlqCmd.AddCommand(newDLQShowCommand(ctx))
	dlqCmd.AddCommand(newDLQRetryCommand(ctx))
	dlqCmd.AddCommand(newDLQResolveCommand(ctx))
	dlqCmd.AddCommand(newDLQPurgeCommand(ctx))
	dlqCmd.AddCommand(newDLQStatsCommand(ctx))

	return dlqCmd
}

func newDLQListCommand(ctx *commandContext) *cobra.Command {
	var orgID, status string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				var statusFilter dlq.Status
				if status != "" {
					parsed, ok := dlq.ParseStatus(status)
					if !ok {
						return fmt.Errorf("unknown status %q", status)
					}
					statusFilter = parsed
				}
				entries, err := app.deadLetters.Store().List(cmd.Context(), orgID, statusFilter, limit, offset)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entries)
				}

				rows := make([][]string, 0, len(entries))
				for _, entry := range entries {
					nextRetry := "-"
					if entry.NextRetryAt != nil {
						nextRetry = entry.NextRetryAt.Local().Format(time.DateTime)
					}
					rows = append(rows, []string{
						strconv.FormatInt(entry.ID, 10),
						strconv.FormatInt(entry.JobID, 10),
						entry.OrgID,
						string(entry.FailureCode),
						fmt.Sprintf("%d/%d", entry.AttemptCount, entry.MaxRetries),
						string(entry.Status),
						nextRetry,
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Job", "Org", "Code", "Attempts", "Status", "Next Retry"},
					rows,
					[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Filter by organization")
	cmd.Flags().StringVar(&status, "status", "", "Filter by entry status")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	return cmd
}

func newDLQShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show one dead-letter entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return ctx.withServices(func(app *appServices) error {
				entry, err := app.deadLetters.Store().Get(cmd.Context(), id)
				if err != nil {
					return err
				}
				if entry == nil {
					return dlq.ErrEntryNotFound
				}
				return writeJSON(cmd, entry)
			})
		},
	}
}

func newDLQRetryCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "retry <entry-id>",
		Short: "Requeue the job behind a dead-letter entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return ctx.withServices(func(app *appServices) error {
				outcome, err := app.deadLetters.Retry(cmd.Context(), id, dryRun)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, outcome)
				}
				out := cmd.OutOrStdout()
				switch {
				case outcome.DryRun:
					fmt.Fprintf(out, "Dry run: entry %d would move to %s\n", outcome.EntryID, outcome.NextStatus)
				case outcome.Abandoned:
					fmt.Fprintf(out, "Entry %d abandoned after %d attempt(s)\n", outcome.EntryID, outcome.AttemptCount)
				default:
					fmt.Fprintf(out, "Entry %d retrying, job %d requeued (attempt %d)\n",
						outcome.EntryID, outcome.JobID, outcome.AttemptCount)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report the outcome without mutating any state")
	return cmd
}

func newDLQResolveCommand(ctx *commandContext) *cobra.Command {
	var actor, notes string

	cmd := &cobra.Command{
		Use:   "resolve <entry-id>",
		Short: "Close a dead-letter entry with operator attribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry id %q", args[0])
			}
			return ctx.withServices(func(app *appServices) error {
				entry, err := app.deadLetters.Store().Resolve(cmd.Context(), id, actor, notes)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, entry)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Entry %d resolved by %s\n", entry.ID, entry.ResolvedBy)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actor, "actor", "", "Operator resolving the entry (required)")
	cmd.Flags().StringVar(&notes, "notes", "", "Resolution notes")
	_ = cmd.MarkFlagRequired("actor")
	return cmd
}

func newDLQPurgeCommand(ctx *commandContext) *cobra.Command {
	var olderThanDays int
	var status string

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old closed dead-letter entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				days := olderThanDays
				if days <= 0 {
					days = app.cfg.DLQ.PurgeDefaultAgeDays
				}
				var statuses []dlq.Status
				if status != "" {
					parsed, ok := dlq.ParseStatus(status)
					if !ok {
						return fmt.Errorf("unknown status %q", status)
					}
					statuses = append(statuses, parsed)
				}
				purged, err := app.deadLetters.Store().Purge(cmd.Context(), time.Now().AddDate(0, 0, -days), statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]int64{"purged": purged})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Purged %d entrie(s) older than %d day(s)\n", purged, days)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&olderThanDays, "older-than-days", 0, "Age threshold (defaults to the configured purge age)")
	cmd.Flags().StringVar(&status, "status", "", "Restrict purge to one status (defaults to resolved and abandoned)")
	return cmd
}

func newDLQStatsCommand(ctx *commandContext) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show dead-letter counts by status and failure code",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				stats, err := app.deadLetters.Store().AggregateStats(cmd.Context(), orgID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Total: %d\n", stats.Total)
				for status, count := range stats.ByStatus {
					fmt.Fprintf(out, "  %-10s %d\n", status, count)
				}
				for code, count := range stats.ByCode {
					fmt.Fprintf(out, "  %-20s %d\n", code, count)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Scope stats to one organization")
	return cmd
}
