package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/control"
	"github.com/alokickstudios-coder/Alokickflow-sub003/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the QC job queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueProcessCommand(ctx))
	queueCmd.AddCommand(newQueuePauseCommand(ctx))
	queueCmd.AddCommand(newQueueResumeCommand(ctx))
	queueCmd.AddCommand(newQueuePausedCommand(ctx))
	queueCmd.AddCommand(newQueueReprocessCommand(ctx))
	queueCmd.AddCommand(newQueueCandidatesCommand(ctx))

	return queueCmd
}

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var storagePath string
	var creative bool

	cmd := &cobra.Command{
		Use:   "add <org-id> <file-name>",
		Short: "Enqueue a media delivery for QC",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				path := storagePath
				if path == "" {
					path = args[1]
				}
				job, err := app.store.Enqueue(cmd.Context(), args[0], args[1], path, creative)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, map[string]any{"id": job.ID, "status": job.Status})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Enqueued job %d (%s)\n", job.ID, job.FileName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&storagePath, "storage-path", "", "Storage locator for the delivery (defaults to the file name)")
	cmd.Flags().BoolVar(&creative, "creative", false, "Request creative QC in addition to technical QC")
	return cmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilters []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				var statuses []queue.Status
				for _, raw := range statusFilters {
					status, ok := queue.ParseStatus(raw)
					if !ok {
						return fmt.Errorf("unknown status %q", raw)
					}
					statuses = append(statuses, status)
				}
				jobs, err := app.store.ListByStatus(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						strconv.FormatInt(job.ID, 10),
						job.OrgID,
						job.FileName,
						string(job.Status),
						formatProgress(job.Progress),
						job.CreatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Org", "File", "Status", "Progress", "Created"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&statusFilters, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func formatProgress(p queue.Progress) string {
	if !p.Started {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", p.Percent)
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	var orgID string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue counts per lifecycle state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				stats, err := app.control.Stats(cmd.Context(), orgID)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, stats)
				}
				rows := [][]string{
					{"queued", strconv.Itoa(stats.Queued)},
					{"paused", strconv.Itoa(stats.Paused)},
					{"running", strconv.Itoa(stats.Running)},
					{"completed", strconv.Itoa(stats.Completed)},
					{"failed", strconv.Itoa(stats.Failed)},
					{"cancelled", strconv.Itoa(stats.Cancelled)},
					{"total", strconv.Itoa(stats.Total)},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Count"},
					rows,
					[]columnAlignment{alignLeft, alignRight},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orgID, "org", "", "Scope stats to one organization")
	return cmd
}

func newQueueProcessCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "process",
		Short: "Run one batch of eligible jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				result, err := app.control.ProcessQueue(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s), %d error(s)\n", result.Processed, result.Errors)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum jobs to claim (0 uses the configured batch limit)")
	return cmd
}

func newQueuePauseCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <job-id>...",
		Short: "Pause queued or running jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				result, err := app.control.Pause(cmd.Context(), ids)
				if err != nil {
					return err
				}
				return printActionResult(cmd, ctx, result)
			})
		},
	}
}

func newQueueResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <job-id>...",
		Short: "Return paused jobs to the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				result, err := app.control.Resume(cmd.Context(), ids)
				if err != nil {
					return err
				}
				if err := printActionResult(cmd, ctx, result); err != nil {
					return err
				}
				// The trigger has no daemon drain in CLI mode; run the
				// batch inline so resumed jobs start immediately.
				if result.Affected > 0 {
					batch, err := app.control.ProcessQueue(cmd.Context(), 0)
					if err != nil {
						return err
					}
					if !ctx.jsonOutput() {
						fmt.Fprintf(cmd.OutOrStdout(), "Processed %d job(s), %d error(s)\n", batch.Processed, batch.Errors)
					}
				}
				return nil
			})
		},
	}
}

func newQueuePausedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "paused",
		Short: "List paused jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				jobs, err := app.control.PausedJobs(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, jobs)
				}
				for _, job := range jobs {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", job.ID, job.OrgID, job.FileName)
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No paused jobs")
				}
				return nil
			})
		},
	}
}

func newQueueReprocessCommand(ctx *commandContext) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "reprocess [job-id]...",
		Short: "Requeue failed or incomplete jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseJobIDs(args)
			if err != nil {
				return err
			}
			return ctx.withServices(func(app *appServices) error {
				result, err := app.control.Reprocess(cmd.Context(), control.ReprocessRequest{JobIDs: ids, All: all})
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, result)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Requeued %d job(s)\n", result.Requeued)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Requeue every detected reprocess candidate")
	return cmd
}

func newQueueCandidatesCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "candidates",
		Short: "Report jobs that need reprocessing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withServices(func(app *appServices) error {
				report, err := app.control.ReprocessCandidates(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonOutput() {
					return writeJSON(cmd, report)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Checked:            %d\n", report.TotalChecked)
				fmt.Fprintf(out, "Needs reprocessing: %d\n", report.NeedsReprocessing)
				fmt.Fprintf(out, "Full results:       %d\n", report.HasFullResults)
				fmt.Fprintf(out, "Failed:             %d\n", report.Failed)
				return nil
			})
		},
	}
}

func printActionResult(cmd *cobra.Command, ctx *commandContext, result control.ActionResult) error {
	if ctx.jsonOutput() {
		return writeJSON(cmd, result)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s affected %d job(s)\n", result.Action, result.Affected)
	return nil
}

func parseJobIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
