package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"presentos/internal/config"
	"presentos/internal/model"
	"presentos/internal/mqhandler"
	"presentos/internal/repository"
	"presentos/pkg/db"
	"presentos/pkg/logger"
	"presentos/pkg/mq"
	"presentos/pkg/otel"
	"presentos/pkg/outbox"
	"presentos/pkg/redis"
	"presentos/pkg/util"
)

const notificationQueue = "presentos.notification.created"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := otel.Init(ctx, cfg.Otel, log)
	if err != nil {
		log.Fatal("Failed to init OpenTelemetry", zap.Error(err))
	}
	defer shutdownTracer()

	if !cfg.MQ.Enabled {
		log.Fatal("worker requires mq.enabled")
	}
	log.Info("Starting presentos worker...", zap.String("mq_url", cfg.MQ.URL))

	// Redis 用于投递去重
	var (
		locker   mqhandler.Locker
		attempts mqhandler.AttemptCounter
	)
	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
		ttl := cfg.Delivery.DedupTTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		locker = util.NewDeduper(rdb, ttl, log)
		attempts = util.NewRetryCounter(rdb, ttl)
	}

	var recorder mqhandler.DeliveryRecorder
	if cfg.DB.Enabled {
		dbConn, err := db.NewConnection(ctx, cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		defer dbConn.Close()
		recorder = repository.NewNotificationRepository(dbConn, outbox.NewRepository(dbConn), cfg.Notify.Retention, log)
	}

	channels := make([]string, 0, len(cfg.Delivery.Webhooks))
	for name := range cfg.Delivery.Webhooks {
		channels = append(channels, name)
	}
	sort.Strings(channels)
	deliverers := make([]mqhandler.Deliverer, 0, len(channels))
	for _, name := range channels {
		deliverers = append(deliverers, mqhandler.NewWebhookDeliverer(name, cfg.Delivery.Webhooks[name], 0))
	}
	if len(deliverers) == 0 {
		log.Warn("no delivery webhooks configured, notifications will only be acknowledged")
	}

	handler := mqhandler.NewNotificationCreatedHandler(deliverers, locker, recorder, model.Priority(cfg.Delivery.MinPriority), logger.Component(log, "delivery")).
		WithAttemptLimit(attempts, cfg.Delivery.MaxAttempts)

	consumer, err := mq.NewConsumer(ctx, cfg.MQ.URL, cfg.MQ.DialAttempts, notificationQueue, model.EventNotificationCreated, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(handler.Handle)

	go func() {
		if err := consumer.StartConsuming(ctx); err != nil {
			log.Error("Consumer stopped", zap.Error(err))
			stop()
		}
	}()

	// health + metrics
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	port := cfg.Server.Port
	if port == "" || port == ":8080" {
		port = ":8081"
	}
	srv := &http.Server{Addr: port, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("presentos worker is running", zap.Strings("channels", channels))
	<-ctx.Done()

	log.Info("Shutting down presentos worker...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("presentos worker shutdown complete")
}
