package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/catalog-assistant/internal/bootstrap"
	"github.com/kirillkom/catalog-assistant/internal/config"
	"github.com/kirillkom/catalog-assistant/internal/core/domain"
	"github.com/kirillkom/catalog-assistant/internal/observability/logging"
)

const (
	service      = "worker"
	storeTimeout = 30 * time.Second
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := bootstrap.NewWorker(ctx, cfg, service)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", w.Metrics.Handler())
	mux.HandleFunc("GET /healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return w.Queue.SubscribeIssueReports(gctx, w.Metrics.Instrument(func(ctx context.Context, report domain.IssueReport) error {
			storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
			defer cancel()
			return w.Issues.HandleIssueReport(storeCtx, report)
		}))
	})

	if err := g.Wait(); err != nil {
		slog.Error("worker_failed", "error", err)
		os.Exit(1)
	}
}
