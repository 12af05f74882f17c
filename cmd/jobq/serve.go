package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xraph/jobq/api"
	"github.com/xraph/jobq/dlq"
	"github.com/xraph/jobq/engine"
)

func (a *app) serveCommand() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the worker pool",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "run store migrations before starting")
	return cmd
}

func (a *app) serve(ctx context.Context, migrate bool) error {
	eng, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	if migrate {
		if err := eng.Broker().Store().Migrate(ctx); err != nil {
			a.stopEngine(ctx, eng)
			return err
		}
	}

	handler, err := a.newAPI(eng)
	if err != nil {
		a.stopEngine(ctx, eng)
		return err
	}
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler.Echo(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		a.stopEngine(ctx, eng)
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}

	var purge *cron.Cron
	if a.cfg.DLQRetention > 0 {
		purge, err = a.scheduleDLQPurge(ctx, eng.DLQService())
		if err != nil {
			_ = ln.Close()
			a.stopEngine(ctx, eng)
			return err
		}
	}

	return a.run(ctx, eng, srv, ln, purge)
}

// run serves HTTP on ln and runs the worker pool until ctx is cancelled.
// The store is closed only after the HTTP server has drained.
func (a *app) run(ctx context.Context, eng *engine.Engine, srv *http.Server, ln net.Listener, purge *cron.Cron) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("http api listening", slog.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.cfg.broker.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		if err := eng.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		return nil
	})
	runErr := g.Wait()

	if purge != nil {
		<-purge.Stop().Done()
	}
	return errors.Join(runErr, a.drainEngine(ctx, eng))
}

// drainEngine stops the worker pool, waits for in-flight jobs for at most
// ShutdownTimeout, and closes the store.
func (a *app) drainEngine(ctx context.Context, eng *engine.Engine) error {
	timeout := a.cfg.broker.ShutdownTimeout
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	a.logger.Info("worker shutting down", slog.Duration("timeout", timeout))
	return eng.Stop(stopCtx)
}

func (a *app) newAPI(eng *engine.Engine) (*api.API, error) {
	policy, err := a.cfg.policy()
	if err != nil {
		return nil, err
	}
	if a.cfg.APIToken == "" {
		a.logger.Warn("JOBQ_API_TOKEN is not set; every /v1 request will be rejected")
	}
	return api.New(eng, a.logger,
		api.WithPaginationPolicy(policy),
		api.WithAuthenticator(api.StaticToken(a.cfg.APIToken, api.Identity{ID: "operator", Role: "admin"})),
	), nil
}

// scheduleDLQPurge removes dead letters older than the retention window
// on the configured cron schedule.
func (a *app) scheduleDLQPurge(ctx context.Context, svc *dlq.Service) (*cron.Cron, error) {
	c := cron.New()
	retention := a.cfg.DLQRetention
	_, err := c.AddFunc(a.cfg.DLQPurgeSchedule, func() {
		n, err := svc.Purge(ctx, time.Now().UTC().Add(-retention))
		if err != nil {
			a.logger.Error("dlq purge failed", slog.String("error", err.Error()))
			return
		}
		a.logger.Info("dlq purged", slog.Int64("removed", n), slog.Duration("retention", retention))
	})
	if err != nil {
		return nil, fmt.Errorf("invalid JOBQ_DLQ_PURGE_SCHEDULE %q: %w", a.cfg.DLQPurgeSchedule, err)
	}
	c.Start()
	return c, nil
}
