package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/commutewatch/riskengine/internal/adapters/http/api"
	"github.com/commutewatch/riskengine/internal/adapters/http/swagger"
	"github.com/commutewatch/riskengine/internal/adapters/mq/publisher"
	app "github.com/commutewatch/riskengine/internal/app"
	"github.com/commutewatch/riskengine/internal/config"
	"github.com/commutewatch/riskengine/pkg/errtrack"
	"github.com/commutewatch/riskengine/pkg/logger"
	"github.com/commutewatch/riskengine/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 30 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Our registry carries its own process metrics.
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	if err := logger.Init(); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logger.Get().Error(ctx, "risk engine exited", logger.Error(err))
		errtrack.Flush()
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.InitWithOptions(logger.Options{Format: logger.Format(cfg.LogFormat), Level: cfg.LogLevel}); err != nil {
		logger.Get().Warn(ctx, "invalid logging config; keeping defaults", logger.Error(err))
	}
	log := logger.Get()

	metrics.Configure(
		metrics.WithRefreshInterval(cfg.MetricsRefreshInterval),
		metrics.WithCustomLabels(cfg.MetricsLabels),
	)

	if err := errtrack.Init(errtrack.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     version,
	}); err != nil {
		log.Warn(ctx, "error tracking disabled", logger.Error(err))
	}
	defer errtrack.Flush()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.Close(context.Background())

	opts := app.OptionsFromConfig(cfg, log)
	opts = append(opts,
		app.WithReportStore(st.reports),
		app.WithRouteStore(st.routes),
		app.WithScoreStore(st.scores),
	)
	if cfg.KafkaEnabled {
		pub, err := publisher.New(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		defer func() {
			if err := pub.Close(); err != nil {
				log.Error(ctx, "kafka publisher close failed", logger.Error(err))
			}
		}()
		opts = append(opts, app.WithPublisher(pub))
		log.Info(ctx, "publishing score events", logger.String("topic", cfg.KafkaTopic))
	}

	svc := app.New(opts...)
	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer svc.Stop()

	go startSystemMetricsUpdater(ctx)

	srv := newHTTPServer(cfg.Addr, svc, log)
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return nil
}

// newHTTPServer mounts the business API and its description.
func newHTTPServer(addr string, svc *app.Service, log logger.Logger) *http.Server {
	handler := api.NewServer(svc, svc, log.Named("http")).Handler(func(r *mux.Router) {
		swagger.Register(r)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

// startSystemMetricsUpdater refreshes process metrics until ctx ends.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metrics.RefreshInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}
