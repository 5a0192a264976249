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

	_ "github.com/lib/pq"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"

	"github.com/ecomm-platform/order-lifecycle/internal/api"
	"github.com/ecomm-platform/order-lifecycle/internal/config"
	"github.com/ecomm-platform/order-lifecycle/internal/lifecycle"
	"github.com/ecomm-platform/order-lifecycle/internal/messaging"
	"github.com/ecomm-platform/order-lifecycle/internal/messaging/noop"
	"github.com/ecomm-platform/order-lifecycle/internal/store"
	"github.com/ecomm-platform/order-lifecycle/internal/telemetry"
)

const (
	serviceName    = "order-lifecycle"
	serviceVersion = "0.1.0"
)

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(ctx) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(serviceName, serviceVersion)
	if err != nil {
		logger.Error("failed to initialize meter", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(ctx) }()

	if err := runtime.Start(); err != nil {
		logger.Warn("failed to start runtime instrumentation", "error", err)
	}

	db, err := telemetry.OpenDB("postgres", cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}

	orderStore := store.NewPostgresStore(db)

	brokers := cfg.Brokers()
	var publisher messaging.Publisher = noop.Publisher{}
	if len(brokers) > 0 {
		producer := messaging.NewProducer(brokers, messaging.TopicOrderCreated)
		defer func() { _ = producer.Close() }()
		publisher = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, running without messaging")
	}

	coordinator := lifecycle.New(orderStore, publisher, logger)
	handler := api.NewHandler(coordinator, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/orders", telemetry.WithHTTPRoute(handler.HandleCreate))
	mux.HandleFunc("GET /api/v1/orders", telemetry.WithHTTPRoute(handler.HandleList))
	mux.HandleFunc("GET /api/v1/orders/{orderId}", telemetry.WithHTTPRoute(handler.HandleGet))
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: otelhttp.NewHandler(mux, serviceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if r.Pattern != "" {
					return r.Pattern
				}
				return r.Method + " " + r.URL.Path
			}),
		),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(brokers) > 0 {
		dispatcher := lifecycle.NewDispatcher(coordinator.HandleResult, cfg.ResultWorkers, cfg.ResultQueueSize)
		consumer := messaging.NewConsumer(brokers, messaging.TopicStockResults, cfg.ConsumerGroup)
		defer func() { _ = consumer.Close() }()

		go func() {
			if err := dispatcher.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("dispatcher stopped", "error", err)
			}
		}()

		go func() {
			logger.Info("consuming stock results", "brokers", brokers, "group", cfg.ConsumerGroup)
			if err := consumer.Consume(runCtx, dispatcher.Enqueue); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer error", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("starting order lifecycle service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
