// assetsched-daemon — демон планировщика asset.
//
// Демон:
//   - Загружает определения asset и политики (DEFINITIONS_PATH)
//   - Становится лидером через pg advisory lock и выполняет тики планировщика
//   - Публикует запросы на запуск в RabbitMQ
//   - Потребляет события asset из очереди и пишет их в журнал
//   - Отдаёт API, /healthz и /metrics
//
// Переменные окружения:
//
//	DEFINITIONS_PATH    файл определений (default: assets.yaml)
//	TICK_INTERVAL       интервал тиков (default: 30s)
//	EVAL_WORKERS        параллельность вычисления (default: 4)
//	DISABLE_EVAL_CACHE  "true" отключает переиспользование результатов
//	DB_URL, RABBITMQ_URL, DAEMON_PORT (default: 8080)
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/assetsched/internal/api"
	"github.com/shaiso/assetsched/internal/mq"
	"github.com/shaiso/assetsched/internal/policy"
	"github.com/shaiso/assetsched/internal/repo"
	"github.com/shaiso/assetsched/internal/scheduler"
	"github.com/shaiso/assetsched/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger()
	logger.Info("starting assetsched-daemon")

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Определения asset
	defsPath := envString("DEFINITIONS_PATH", "assets.yaml")
	defs, err := policy.Load(defsPath)
	if err != nil {
		logger.Error("failed to load definitions", "path", defsPath, "error", err)
		os.Exit(1)
	}
	bundle, err := defs.Build()
	if err != nil {
		logger.Error("invalid definitions", "path", defsPath, "error", err)
		os.Exit(1)
	}
	logger.Info("definitions loaded",
		"path", defsPath,
		"assets", bundle.Graph.Size(),
		"policies", len(bundle.Policies),
		"conditions", bundle.ConditionCount(),
	)

	// DB pool
	pool, err := repo.NewPool(ctx)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	stateRepo := repo.NewStateRepo(pool)
	eventRepo := repo.NewEventRepo(pool)

	// RabbitMQ
	var runPublisher scheduler.RunRequestPublisher
	var eventPublisher api.EventPublisher
	var consumer *mq.Consumer
	var wg sync.WaitGroup

	mqConn, err := mq.NewConnection(mq.ConnectionConfig{
		URL:    os.Getenv("RABBITMQ_URL"),
		Logger: logger,
	})
	if err != nil {
		logger.Warn("RabbitMQ not available, run requests are only stored", "error", err)
	} else {
		defer mqConn.Close()

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}

		publisher := mq.NewPublisher(mqConn, logger)
		runPublisher = publisher
		eventPublisher = publisher

		consumer = mq.NewConsumer(mqConn, logger, mq.ConsumerConfig{
			Queue:    mq.QueueEventsAsset,
			Handler:  mq.NewEventHandler(eventRepo, logger),
			Prefetch: 16,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event consumer stopped", "error", err)
			}
		}()
	}

	// Планировщик
	metrics := telemetry.NewMetrics(nil)
	interval := envDuration("TICK_INTERVAL", 30*time.Second)
	sched := scheduler.New(scheduler.Config{
		Bundle:       bundle,
		Loader:       eventRepo,
		States:       stateRepo,
		Publisher:    runPublisher,
		Metrics:      metrics,
		Logger:       logger,
		Workers:      envInt("EVAL_WORKERS", 4),
		DisableCache: os.Getenv("DISABLE_EVAL_CACHE") == "true",
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		lead(ctx, pool, interval, logger, func(leaderCtx context.Context) {
			sched.Run(leaderCtx, interval)
		})
	}()

	// HTTP: API + /healthz + /metrics
	handler := api.NewHandler(api.Config{
		Bundle:    bundle,
		States:    stateRepo,
		Publisher: eventPublisher,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime).Round(time.Second))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":" + envString("DAEMON_PORT", "8080")
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	// Ожидаем сигнал завершения
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	if consumer != nil {
		consumer.Stop()
	}
	wg.Wait()

	logger.Info("assetsched-daemon stopped")
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
