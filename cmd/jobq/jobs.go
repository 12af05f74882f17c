package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/xraph/jobq/id"
	"github.com/xraph/jobq/job"
	"github.com/xraph/jobq/pagination"
)

func (a *app) jobsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect jobs",
	}
	cmd.AddCommand(a.jobsListCommand(), a.jobsGetCommand())
	return cmd
}

func (a *app) jobsListCommand() *cobra.Command {
	var (
		queue       string
		state       string
		page, limit int
		asJSON      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, oldest first",
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
			st := job.State(state)
			if st != "" && !st.Valid() {
				return fmt.Errorf("unknown state %q", state)
			}

			ctx := cmd.Context()
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer a.stopEngine(ctx, eng)

			js := eng.JobStore()
			jobs, err := js.ListJobs(ctx, job.ListOpts{Limit: req.Limit, Offset: req.Offset(), Queue: q, State: st})
			if err != nil {
				return err
			}
			total, err := js.CountJobs(ctx, job.CountOpts{Queue: q, State: st})
			if err != nil {
				return err
			}

			if asJSON {
				views := make([]jobView, len(jobs))
				for i, j := range jobs {
					views[i] = viewJob(j)
				}
				return writeJSON(a.out, pagination.NewResponse(req, views, total))
			}
			return writeJobTable(a.out, jobs, total)
		},
	}
	cmd.Flags().StringVar(&queue, "queue", "", "filter by queue")
	cmd.Flags().StringVar(&state, "state", "", "filter by state")
	cmd.Flags().IntVar(&page, "page", pagination.DefaultPage, "page number")
	cmd.Flags().IntVar(&limit, "limit", pagination.DefaultLimit, "page size")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func (a *app) jobsGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobID, err := id.ParseJobID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer a.stopEngine(ctx, eng)

			j, err := eng.JobStore().GetJob(ctx, jobID)
			if err != nil {
				return err
			}
			return writeJSON(a.out, viewJob(j))
		},
	}
}

// pageRequest applies the configured pagination policy to flag values.
func (a *app) pageRequest(page, limit int) (pagination.Request, error) {
	policy, err := a.cfg.policy()
	if err != nil {
		return pagination.Request{}, err
	}
	return pagination.Parse(strconv.Itoa(page), strconv.Itoa(limit), policy)
}
