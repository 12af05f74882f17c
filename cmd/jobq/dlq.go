package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/pagination"
)

func (a *app) dlqCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Manage the dead-letter queue",
	}
	cmd.AddCommand(a.dlqListCommand(), a.dlqReplayCommand(), a.dlqPurgeCommand())
	return cmd
}

func (a *app) dlqListCommand() *cobra.Command {
	var (
		queue       string
		page, limit int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-lettered jobs, oldest failure first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := a.pageRequest(page, limit)
			if err != nil {
				return err
			}
			var q job.QueueName
			if queue != "" {
				if q, err = job.ParseQueueName(queue); err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer a.stopEngine(ctx, eng)

			svc := eng.DLQService()
			entries, err := svc.List(ctx, dlq.ListOpts{Limit: req.Limit, Offset: req.Offset(), Queue: q})
			if err != nil {
				return err
			}
			total, err := svc.Count(ctx, q)
			if err != nil {
				return err
			}

			if asJSON {
				views := make([]entryView, len(entries))
				for i, e := range entries {
					views[i] = viewEntry(e)
				}
				return writeJSON(a.out, pagination.NewResponse(req, views, total))
			}
			return writeEntryTable(a.out, entries, total)
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "filter by queue")
	cmd.Flags().IntVar(&page, "page", pagination.DefaultPage, "page number")
	cmd.Flags().IntVar(&limit, "limit", pagination.DefaultLimit, "page size")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) dlqReplayCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <id>",
		Short: "Re-enqueue a dead-lettered job as a fresh job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := id.ParseDLQID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer a.stopEngine(ctx, eng)

			j, err := eng.DLQService().Replay(ctx, entryID)
			if err != nil {
				return err
			}
			return writeJSON(a.out, viewJob(j))
		},
	}
}

func (a *app) dlqPurgeCommand() *cobra.Command {
	var (
		before    string
		olderThan time.Duration
	)
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete dead-letter entries that failed before a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cutoff, err := purgeCutoff(before, olderThan, time.Now().UTC())
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer a.stopEngine(ctx, eng)

			n, err := eng.DLQService().Purge(ctx, cutoff)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "purged %d entries failed before %s\n", n, cutoff.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&before, "before", "", "RFC3339 cutoff")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "cutoff relative to now, e.g. 168h")
	cmd.MarkFlagsMutuallyExclusive("before", "older-than")
	cmd.MarkFlagsOneRequired("before", "older-than")
	return cmd
}

func purgeCutoff(before string, olderThan time.Duration, now time.Time) (time.Time, error) {
	if before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid --before: %w", err)
		}
		return t, nil
	}
	if olderThan <= 0 {
		return time.Time{}, fmt.Errorf("--older-than must be positive")
	}
	return now.Add(-olderThan), nil
}
