package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ubysync/ubysync/config"
	"github.com/ubysync/ubysync/internal/broker/kafka"
	"github.com/ubysync/ubysync/internal/cache"
	"github.com/ubysync/ubysync/internal/cache/rediscache"
	"github.com/ubysync/ubysync/internal/logging"
	"github.com/ubysync/ubysync/internal/metrics"
	"github.com/ubysync/ubysync/internal/services/guests"
	"github.com/ubysync/ubysync/internal/storage/pgledger"
)

type apiApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     apiOpts
	svc      *guests.Service
	metrics  *metrics.API
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapAPI() *apiApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		swaggerPath = "api/swagger.json"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	config.ApplyEnv(cfg)
	if _, err := logging.Setup(cfg.Logging.Level, cfg.Logging.Format, ""); err != nil {
		panic(err)
	}

	httpAddr := cfg.API.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	cacheTTL := time.Duration(cfg.API.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}
	topic := cfg.Kafka.StatusChangedTopicName
	if topic == "" {
		topic = "guest.status_changed"
	}
	consumerGroup := cfg.Kafka.ConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "ubysync-api"
	}

	app := &apiApp{metrics: metrics.NewAPI()}

	st := mustOpenPostgresWithRetry(cfg.Database.ConnString(), 60*time.Second)
	app.closers = append(app.closers, st.Close)

	var c cache.BytesCache
	if cfg.Redis.Host != "" {
		rc := rediscache.New(fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port))
		app.closers = append(app.closers, func() { _ = rc.Close() })
		c = rc
	}
	app.svc = guests.New(st, c, cacheTTL).WithObserver(app.metrics)

	if cfg.Kafka.Host != "" {
		brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
		app.consumer = kafka.NewConsumer(brokers, topic, consumerGroup)
	} else {
		slog.Info("kafka not configured, guest cache is refreshed on read only")
	}

	app.ctx, app.cancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	app.opts = apiOpts{
		httpAddr:      httpAddr,
		swaggerPath:   swaggerPath,
		topic:         topic,
		consumerGroup: consumerGroup,
	}
	return app
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgledger.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgledger.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		slog.Warn("postgres not ready, retrying", "error", err.Error())
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *apiApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *apiApp) Run() error {
	var consumer statusConsumer
	if a.consumer != nil {
		consumer = a.consumer
	}
	return runAPI(a.ctx, a.opts, a.svc, a.metrics, consumer)
}
