package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/xraph/jobq/job"
)

func (a *app) enqueueCommand() *cobra.Command {
	var (
		payload     string
		maxAttempts int
		delay       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "enqueue <queue>",
		Short: "Enqueue one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := a.openEngine(ctx)
			if err != nil {
				return err
			}
			defer a.stopEngine(ctx, eng)

			var opts []job.Option
			if maxAttempts > 0 {
				opts = append(opts, job.WithMaxAttempts(maxAttempts))
			}
			if delay > 0 {
				opts = append(opts, job.WithDelay(delay))
			}

			j, err := eng.AddRaw(ctx, args[0], []byte(payload), opts...)
			if err != nil {
				return err
			}
			return writeJSON(a.out, viewJob(j))
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", "JSON payload for the queue's job type")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, "attempt ceiling (default JOBQ_DEFAULT_MAX_ATTEMPTS)")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before the job becomes claimable")
	_ = cmd.MarkFlagRequired("payload")
	return cmd
}
