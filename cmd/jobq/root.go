package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/xraph/relay"
	relaymemory "github.com/xraph/relay/store/memory"

	"github.com/xraph/jobq"
	audithook "github.com/xraph/jobq/audit_hook"
	"github.com/xraph/jobq/engine"
	relayhook "github.com/xraph/jobq/relay_hook"
)

// app carries state shared by every subcommand. It is populated in the
// root command's PersistentPreRunE.
type app struct {
	cfg    *cliConfig
	logger *slog.Logger
	out    io.Writer
}

func newRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "jobq",
		Short: "Asynchronous job queue",
		Long: `jobq runs the job queue HTTP API and worker pool, and operates on the
configured store. Configuration comes from JOBQ_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.newLogger(cmd.ErrOrStderr())
			a.out = cmd.OutOrStdout()
			return nil
		},
	}

	root.AddCommand(
		a.serveCommand(),
		a.workerCommand(),
		a.enqueueCommand(),
		a.jobsCommand(),
		a.dlqCommand(),
		a.migrateCommand(),
	)
	return root
}

// openEngine connects the store and builds an engine on it. The engine is
// not started; callers own Stop, which also closes the store.
func (a *app) openEngine(ctx context.Context, opts ...jobq.Option) (*engine.Engine, error) {
	s, err := openStore(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}

	brokerOpts := append([]jobq.Option{
		jobq.WithConfig(a.cfg.broker),
		jobq.WithStore(s),
		jobq.WithLogger(a.logger),
	}, opts...)

	b, err := jobq.New(brokerOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	var engOpts []engine.Option
	if a.cfg.Audit {
		engOpts = append(engOpts, engine.WithExtension(
			audithook.New(audithook.LogRecorder(a.logger), audithook.WithLogger(a.logger)),
		))
	}
	if a.cfg.Relay {
		hook, err := newRelayHook(ctx)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		engOpts = append(engOpts, engine.WithExtension(hook))
	}
	eng, err := engine.Build(b, newRegistry(a.logger), engOpts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return eng, nil
}

// newRelayHook builds a Relay on an in-process event store with every jobq
// event type registered.
func newRelayHook(ctx context.Context) (*relayhook.Extension, error) {
	r, err := relay.New(relay.WithStore(relaymemory.New()))
	if err != nil {
		return nil, fmt.Errorf("relay: %w", err)
	}
	if err := relayhook.RegisterAll(ctx, r); err != nil {
		return nil, err
	}
	return relayhook.New(r), nil
}

func (a *app) stopEngine(ctx context.Context, eng *engine.Engine) {
	if err := eng.Stop(context.WithoutCancel(ctx)); err != nil {
		a.logger.Error("close store", slog.String("error", err.Error()))
	}
}
