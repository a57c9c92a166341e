package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lmsbridge/internal/config"
	"lmsbridge/internal/handler"
	"lmsbridge/internal/hub"
	"lmsbridge/internal/repository/sqlite"
	"lmsbridge/internal/service"
	"lmsbridge/internal/watcher"
)

const pruneInterval = time.Hour

func (c *cli) serveCmd() *cobra.Command {
	var (
		t    target
		addr string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the command bus, report archive and event stream over HTTP",
		Long: `Starts an HTTP server exposing:

  POST /api/command                 run discoverApis, testApi, setCompletion,
                                    forceCompletion or getCmiData
  GET  /api/reports                 list archived completion reports
  GET  /api/reports/{id}            fetch one report
  GET  /api/reports/{id}/operations list the writes a report made
  GET  /events                      server-sent orchestrator events

Commands run against the course page given by --url, --attach or --static.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if t.empty() {
				return errors.New("no target: pass --url, --attach or --static")
			}
			if addr == "" {
				addr = c.cfg.Server.Addr
			}
			return c.serve(cmd.Context(), t, addr)
		},
	}
	t.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (default: server.addr)")
	return cmd
}

func (c *cli) serve(parent context.Context, t target, addr string) error {
	ctx, stop := withSignals(parent)
	defer stop()

	repo, err := c.openArchive()
	if err != nil {
		return err
	}
	defer repo.Close()
	c.logger.Info("report archive opened", zap.String("path", c.cfg.Database.Path))

	eventBus := service.NewEventBus()
	orch, err := c.newOrchestrator(eventBus)
	if err != nil {
		return err
	}
	orch.SetReportStore(repo)

	eg, egCtx := errgroup.WithContext(ctx)

	sseHub := hub.New(c.logger)
	eg.Go(func() error {
		sseHub.Run(egCtx)
		return nil
	})
	sseHub.Follow(egCtx, eventBus)

	res := c.resolver(t)
	defer res.Close()
	dispatcher := service.NewDispatcher(orch, res.Root, c.cfg.Request(), c.cfg.CompletionOptions(), c.logger)

	if c.cfgFile != "" {
		eg.Go(func() error {
			c.watchConfig(egCtx, dispatcher, orch)
			return nil
		})
	}
	if retention := c.cfg.Database.Retention.Duration(); retention > 0 {
		eg.Go(func() error {
			c.prune(egCtx, repo, retention)
			return nil
		})
	}

	h := handler.NewCompletionHandler(dispatcher, repo, c.logger)
	mux := http.NewServeMux()
	h.Routes(mux, sseHub)

	server := &http.Server{
		Addr: addr,
		Handler: handler.Chain(mux,
			handler.Recover(c.logger),
			handler.CORS,
			handler.Logger(c.logger),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	eg.Go(func() error {
		c.logger.Info("server listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		c.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			c.logger.Warn("server shutdown error", zap.Error(err))
		}
		return nil
	})

	err = eg.Wait()
	c.logger.Info("server stopped")
	return err
}

// prune deletes archived reports older than retention, hourly.
func (c *cli) prune(ctx context.Context, repo *sqlite.Repository, retention time.Duration) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		n, err := repo.DeleteReportsBefore(ctx, time.Now().Add(-retention))
		switch {
		case err != nil && ctx.Err() == nil:
			c.logger.Warn("report pruning failed", zap.Error(err))
		case n > 0:
			c.logger.Info("pruned old reports", zap.Int64("deleted", n))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// watchConfig reloads the completion defaults and adapter toggles when the
// config file changes. Discovery and network settings need a restart.
func (c *cli) watchConfig(ctx context.Context, dispatcher *service.Dispatcher, orch *service.Orchestrator) {
	reload := func() {
		cfg, _, err := config.LoadFromPath(c.cfgFile)
		if err != nil {
			c.logger.Warn("config reload failed, keeping previous settings", zap.Error(err))
			return
		}
		if err := cfg.Adapters.Apply(orch.Registry()); err != nil {
			c.logger.Warn("adapter settings not applied", zap.Error(err))
			return
		}
		dispatcher.SetDefaults(cfg.Request(), cfg.CompletionOptions())
		c.logger.Info("config reloaded", zap.Strings("adapters", kindNames(cfg.Adapters.Enabled())))
	}

	w := watcher.New(c.cfgFile, reload, c.logger)
	if err := w.Watch(ctx); err != nil && ctx.Err() == nil {
		c.logger.Warn("config watcher stopped", zap.Error(err))
	}
}
