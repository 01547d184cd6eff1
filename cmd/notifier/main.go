package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrumdeck/taskmail/internal/config"
	"github.com/scrumdeck/taskmail/internal/dispatch"
	"github.com/scrumdeck/taskmail/internal/health"
	"github.com/scrumdeck/taskmail/internal/logging"
	"github.com/scrumdeck/taskmail/internal/mail"
	"github.com/scrumdeck/taskmail/internal/metrics"
	"github.com/scrumdeck/taskmail/internal/queue"
	"github.com/scrumdeck/taskmail/internal/tracing"
	"github.com/scrumdeck/taskmail/internal/worker"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	// Initialize structured logging
	logger := logging.New("taskmail-notifier")

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracing(ctx, "taskmail-notifier")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	// Mail transport; unconfigured SMTP runs in degraded log-only mode
	sender := mail.NewSender(mail.Config{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		User:     cfg.SMTP.User,
		Password: cfg.SMTP.Password,
		From:     cfg.Sender(),
		UseTLS:   cfg.SMTP.UseTLS,
	}, logger)
	if !sender.Configured() {
		logger.Plain().Warn("SMTP not configured, notifications will be logged instead of sent")
	}

	// Queue dial, reused for startup and reconnects
	dial := func(ctx context.Context) (queue.Queue, error) {
		q, err := queue.Dial(ctx, cfg.RedisURL(), cfg.Queue.Name)
		if err != nil {
			return nil, err
		}
		return q, nil
	}

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	dispatcher := dispatch.NewDispatcher(sender, cfg.Worker.SendTimeout, logger)
	w := worker.New(dial, dispatcher, logger, worker.Options{
		BlockingTimeout:  cfg.Queue.BlockingTimeout,
		ReconnectBackoff: cfg.Worker.ReconnectBackoff,
	})

	if err := w.Start(ctx); err != nil {
		logger.Plain().WithError(err).Fatal("queue connect failed")
	}

	// HTTP health/metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		var p health.Pinger
		if q, ok := w.Queue().(health.Pinger); ok {
			p = q
		}
		health.HTTPHandler(p)(rw, r)
	})
	mux.HandleFunc("/status", func(rw http.ResponseWriter, r *http.Request) {
		health.StatusHandler(func() string { return w.State().String() }, w.Queue(), dispatcher.Totals, sender.Configured())(rw, r)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("notifier HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("notifier HTTP server failed")
		}
	}()

	// Start backlog monitoring
	stopMonitor := startBacklogMonitor(w, logger)

	logger.Plain().WithQueue(cfg.Queue.Name).Info("notifier service started")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down notifier service")
	close(stopMonitor)
	w.Stop()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("notifier service stopped")
}

// startBacklogMonitor periodically samples the queue depth into the gauge
func startBacklogMonitor(w *worker.Worker, logger *logging.Logger) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			q := w.Queue()
			if q == nil {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			depth, err := q.Length(ctx)
			cancel()
			if err != nil {
				logger.Plain().WithError(err).Error("Failed to read queue depth")
				continue
			}
			metrics.UpdateQueueDepth(float64(depth))
		}
	}()
	return stop
}
