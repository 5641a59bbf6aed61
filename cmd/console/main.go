package main

import (
    "context"
    "errors"
    "flag"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    log "github.com/sirupsen/logrus"

    "ridetrack/internal/api"
    "ridetrack/internal/broker"
    "ridetrack/internal/buildinfo"
    "ridetrack/internal/config"
    "ridetrack/internal/console"
    "ridetrack/internal/journal"
    "ridetrack/internal/logging"
    "ridetrack/internal/metrics"
    "ridetrack/internal/notify"
    "ridetrack/internal/webhooks"
)

func main() {
    cfgPath := flag.String("c", "", "path to console.yml")
    flag.Parse()

    cfg, err := config.Load(*cfgPath)
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }
    if err := logging.Configure(cfg); err != nil {
        log.Fatalf("failed to configure logging: %v", err)
    }
    metrics.RegisterDefault()
    logger := logging.Component("main")
    logger.WithField("version", buildinfo.String()).Info("starting dispatcher console")

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    // Broker selection
    var b broker.EventBroker = broker.NewBroker()
    if cfg.RedisURL != "" {
        if rb, err := broker.NewRedisBroker(cfg.RedisURL); err != nil {
            logger.WithError(err).Warn("redis broker unavailable, using in-memory broker")
        } else {
            defer func() { _ = rb.Close() }()
            b = rb
        }
    }

    // Journal selection
    var j journal.Journal = journal.NewMemory()
    if cfg.DatabaseURL != "" {
        pg, err := journal.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            logger.Fatalf("failed to open journal: %v", err)
        }
        defer func() { _ = pg.Close() }()
        if err := pg.Migrate(ctx); err != nil {
            logger.Fatalf("failed to migrate journal: %v", err)
        }
        j = pg
    }

    // Notice webhooks
    var extra []notify.Notifier
    var queue *webhooks.Queue
    if cfg.Webhook.URL != "" {
        queue = webhooks.NewQueue()
        extra = append(extra, webhooks.NewPublisher(queue, cfg.Webhook.URL, cfg.Webhook.Secret))
        webhooks.NewWorker(queue, cfg.Webhook.MaxAttempts).Start(ctx)
    }

    c, err := console.New(console.Options{
        Config:    cfg,
        Broker:    b,
        Journal:   j,
        Notifiers: extra,
        Logger:    log.StandardLogger(),
    })
    if err != nil {
        logger.Fatalf("failed to build console: %v", err)
    }
    if err := c.Open(ctx); err != nil {
        logger.Fatalf("failed to open console: %v", err)
    }

    srv := &http.Server{
        Addr:              cfg.Listen,
        Handler:           api.NewServer(c, cfg, queue, logging.Component("api")).Handler(),
        ReadHeaderTimeout: 5 * time.Second,
    }
    go func() {
        <-ctx.Done()
        shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
        defer cancel()
        _ = srv.Shutdown(shutdownCtx)
    }()

    logger.WithField("addr", cfg.Listen).Info("console listening")
    if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
        logger.Errorf("server error: %v", err)
    }
    if err := c.Close(); err != nil {
        logger.WithError(err).Warn("close console")
    }
    logger.Info("console stopped")
}
