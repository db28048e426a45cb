package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/use-agent/dataflow/api"
	"github.com/use-agent/dataflow/api/handler"
	"github.com/use-agent/dataflow/cache"
	"github.com/use-agent/dataflow/config"
	"github.com/use-agent/dataflow/history"
	"github.com/use-agent/dataflow/jobstore"
)

func init() {
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	})
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("dataflow starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"profile", cfg.Browser.ProfileDir,
	)

	svc := newServices(cfg)

	jobs, err := openJobStore(cmd.Context(), cfg.Storage)
	if err != nil {
		return err
	}
	defer jobs.Close()

	var hist *history.Store
	if cfg.Storage.HistoryPath != "" {
		hist, err = history.Open(cfg.Storage.HistoryPath)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer hist.Close()
	}

	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)
	defer cc.Close()

	videos := handler.NewVideoJobs(svc.video, jobs, cfg.LLM.APIKey, cfg.Video.DefaultModel)

	deps := api.Deps{
		Backend:   svc.backend,
		Scraper:   svc.scraper,
		Settings:  svc.settings,
		Videos:    videos,
		Assembler: svc.assembler,
		Cache:     cc,
		StartTime: time.Now(),
	}
	if hist != nil {
		deps.History = hist
	}
	router := api.NewRouter(cfg, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		// Scrapes may hold a browser window open; give them time to finish.
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(sctx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		if err := videos.Shutdown(sctx); err != nil {
			slog.Warn("video jobs still running at exit", "running", videos.Running())
		}
		return nil
	})

	err = g.Wait()
	slog.Info("dataflow stopped")
	return err
}

// openJobStore selects Redis when configured, else the in-memory store.
func openJobStore(ctx context.Context, cfg config.StorageConfig) (jobstore.Store, error) {
	if cfg.RedisAddr == "" {
		return jobstore.NewMemoryStore(cfg.JobTTL), nil
	}
	rs := jobstore.NewRedisStore(cfg.RedisAddr, cfg.RedisPrefix, cfg.JobTTL)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rs.Ping(pctx); err != nil {
		rs.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("video jobs stored in redis", "addr", cfg.RedisAddr)
	return rs, nil
}
