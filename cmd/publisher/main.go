package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/publish-orchestrator/internal/config"
	"github.com/cuongbtq/publish-orchestrator/internal/worker"
	"github.com/joho/godotenv"
)

const defaultShutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("PUBLISHER_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/publisher/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	daemon := flag.Bool("daemon", false, "Run passes on the daemon.cron schedule until interrupted")
	consume := flag.Bool("consume", false, "Run a pass for every RabbitMQ trigger message until interrupted")
	flag.Parse()

	if *daemon && *consume {
		return errors.New("-daemon and -consume are mutually exclusive")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	mode := "once"
	switch {
	case *daemon:
		mode = "daemon"
	case *consume:
		mode = "consume"
	}

	appLogger.Info("Starting publisher",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("mode", mode),
		slog.String("store", cfg.Store.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, appLogger.Logger, *consume)
	if err != nil {
		return err
	}
	defer app.close()

	switch mode {
	case "daemon":
		return app.runDaemon(ctx)
	case "consume":
		return app.runConsumer(ctx)
	default:
		return app.runOnce(ctx)
	}
}

// runOnce executes a single pass. Job outcomes never affect the exit status.
func (a *app) runOnce(ctx context.Context) error {
	summary, err := a.worker.RunPass(ctx)
	a.pushMetrics()
	if err != nil {
		return fmt.Errorf("pass failed: %w", err)
	}

	a.logger.Info("Publisher finished",
		slog.String("run_id", summary.RunID),
		slog.Int("done", summary.Done),
		slog.Int("failed", summary.Failed),
	)
	return nil
}

func (a *app) runDaemon(ctx context.Context) error {
	scheduler, err := worker.NewScheduler(a.worker, a.cfg.Daemon.Cron, a.logger)
	if err != nil {
		return err
	}

	srv := a.startMetricsServer()
	scheduler.Start(ctx)

	<-ctx.Done()
	a.logger.Info("Received shutdown signal, waiting for the running pass")

	a.waitStopped(scheduler.Stop())
	a.shutdownMetricsServer(srv)

	a.logger.Info("Publisher daemon stopped")
	return nil
}

func (a *app) runConsumer(ctx context.Context) error {
	consumer := worker.NewConsumer(a.worker, a.rabbit, a.logger, a.cfg.RabbitMQ.Consumer.PrefetchCount)

	srv := a.startMetricsServer()
	defer a.shutdownMetricsServer(srv)

	if err := consumer.Run(ctx); err != nil {
		return fmt.Errorf("trigger consumer failed: %w", err)
	}
	if ctx.Err() == nil {
		return errors.New("trigger consumer stopped: delivery channel closed")
	}

	a.logger.Info("Publisher consumer stopped")
	return nil
}

func (a *app) shutdownTimeout() time.Duration {
	if a.cfg.Worker.ShutdownTimeout > 0 {
		return a.cfg.Worker.ShutdownTimeout
	}
	return defaultShutdownTimeout
}

func (a *app) waitStopped(done context.Context) {
	timer := time.NewTimer(a.shutdownTimeout())
	defer timer.Stop()

	select {
	case <-done.Done():
		a.logger.Info("Running pass finished")
	case <-timer.C:
		a.logger.Warn("Shutdown timeout exceeded, abandoning running pass")
	}
}

// startMetricsServer serves /metrics for long-running modes when an address is configured
func (a *app) startMetricsServer() *http.Server {
	if a.metrics == nil || a.cfg.Daemon.MetricsAddr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Daemon.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Metrics server failed",
				slog.String("error", err.Error()),
			)
		}
	}()

	a.logger.Info("Serving metrics",
		slog.String("address", srv.Addr),
	)
	return srv
}

func (a *app) shutdownMetricsServer(srv *http.Server) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Warn("Metrics server forced to shutdown",
			slog.String("error", err.Error()),
		)
	}
}

// pushMetrics sends the one-shot registry to the pushgateway when configured
func (a *app) pushMetrics() {
	if a.metrics == nil || a.cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.metrics.Push(ctx, a.cfg.Metrics.PushgatewayURL, a.cfg.Metrics.JobName); err != nil {
		a.logger.Warn("Failed to push metrics",
			slog.String("error", err.Error()),
		)
	}
}
