package main

import (
	"github.com/spf13/cobra"

	"github.com/xraph/jobq"
)

func (a *app) workerCommand() *cobra.Command {
	var (
		concurrency int
		queues      []string
		migrate     bool
	)
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the worker pool without the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var opts []jobq.Option
			if cmd.Flags().Changed("concurrency") {
				opts = append(opts, jobq.WithConcurrency(concurrency))
			}
			if cmd.Flags().Changed("queues") {
				opts = append(opts, jobq.WithQueues(queues...))
			}

			ctx := cmd.Context()
			eng, err := a.openEngine(ctx, opts...)
			if err != nil {
				return err
			}
			if migrate {
				if err := eng.Broker().Store().Migrate(ctx); err != nil {
					a.stopEngine(ctx, eng)
					return err
				}
			}
			return eng.StartWorker(ctx)
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent executors (default JOBQ_CONCURRENCY)")
	cmd.Flags().StringSliceVar(&queues, "queues", nil, "queues to drain (default JOBQ_QUEUES)")
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run store migrations before starting")
	return cmd
}
