package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"presentos/internal/config"
	"presentos/internal/contextstore"
	"presentos/internal/httpserver"
	"presentos/internal/intent"
	"presentos/internal/ledger"
	"presentos/internal/notify"
	"presentos/internal/orchestrator"
	"presentos/internal/paei"
	"presentos/internal/registry"
	"presentos/internal/repository"
	"presentos/internal/router"
	"presentos/internal/scheduler"
	"presentos/internal/speech"
	"presentos/internal/synth"
	"presentos/migrations"
	"presentos/pkg/db"
	"presentos/pkg/logger"
	"presentos/pkg/mq"
	"presentos/pkg/otel"
	"presentos/pkg/outbox"
	"presentos/pkg/redis"
	"presentos/pkg/util"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger 还没建好
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

	log.Info("Starting presentos server...",
		zap.Bool("db_enabled", cfg.DB.Enabled),
		zap.Bool("redis_enabled", cfg.Redis.Enabled),
		zap.Bool("mq_enabled", cfg.MQ.Enabled),
	)

	readiness := map[string]httpserver.ReadyCheck{}

	// DB（可选，未启用时使用内存存储）
	var dbConn *pgxpool.Pool
	if cfg.DB.Enabled {
		dbConn, err = db.NewConnection(ctx, cfg.DB, log)
		if err != nil {
			log.Fatal("Failed to init DB", zap.Error(err))
		}
		defer dbConn.Close()
		if cfg.DB.Migrate {
			if err := db.Migrate(ctx, dbConn, migrations.FS, log); err != nil {
				log.Fatal("Failed to migrate DB", zap.Error(err))
			}
		}
		readiness["db"] = dbConn.Ping
	}

	// Redis（可选）
	var rdb *goredis.Client
	if cfg.Redis.Enabled {
		rdb, err = redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to init Redis", zap.Error(err))
		}
		defer rdb.Close()
		readiness["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	// Stores
	var (
		notifyStore notify.Store = notify.NewMemoryStore(cfg.Notify.Retention)
		ledgerStore ledger.Store = ledger.NewMemoryStore()
		goals       orchestrator.GoalSource
		outboxRepo  *outbox.Repository
	)
	if dbConn != nil {
		outboxRepo = outbox.NewRepository(dbConn)
		notifyStore = repository.NewNotificationRepository(dbConn, outboxRepo, cfg.Notify.Retention, log)
		ledgerStore = repository.NewLedgerRepository(dbConn, log)
		goals = repository.NewGoalRepository(dbConn)
	}

	queue, err := notify.NewQueue(cfg.Notify, notifyStore, log)
	if err != nil {
		log.Fatal("Failed to init notification queue", zap.Error(err))
	}
	xp := ledger.New(cfg.Ledger, ledgerStore, queue, log)

	// Capabilities
	reg, err := registry.New(cfg.Contracts())
	if err != nil {
		log.Fatal("Invalid capability registry", zap.Error(err))
	}
	if err := reg.ValidateAll(); err != nil {
		log.Fatal("Capability registry incomplete", zap.Error(err))
	}
	caps, err := buildCapabilities(cfg, reg, log)
	if err != nil {
		log.Fatal("Failed to build capabilities", zap.Error(err))
	}

	// Context
	var collectors []contextstore.Collector
	if rdb != nil {
		collectors = contextstore.RedisCollectors(rdb, cfg.Context.KeyPrefix)
	}
	ctxStore := contextstore.NewStore(cfg.Context, log, collectors...)

	orch := orchestrator.New(cfg.Orchestrator, orchestrator.Deps{
		Resolver:    intent.NewResolver(cfg.Intent, nil, log),
		Context:     ctxStore,
		Evaluator:   paei.NewEvaluator(cfg.PAEI, reg),
		Router:      router.New(cfg.Router, reg, caps, logger.Component(log, "router")),
		Synthesizer: synth.New(cfg.PAEI.TieOrder),
		Ledger:      xp,
		Notifier:    queue,
		Goals:       goals,
	}, logger.Component(log, "orchestrator"))

	// Outbox Dispatcher：DB 与 MQ 都启用时才有意义
	if outboxRepo != nil && cfg.MQ.Enabled {
		publisher, err := mq.NewPublisher(ctx, cfg.MQ.URL, "presentos-server", cfg.MQ.DialAttempts)
		if err != nil {
			log.Fatal("Failed to init MQ publisher", zap.Error(err))
		}
		defer publisher.Close()
		readiness["mq"] = publisher.Ping
		dispatcher := outbox.NewDispatcher(outboxRepo, publisher, logger.Component(log, "outbox"))
		go dispatcher.Start(ctx)
	}

	// Scheduler
	var locker scheduler.Locker
	if rdb != nil {
		locker = util.NewDeduper(rdb, 23*time.Hour, log)
	}
	var tasks scheduler.TaskCounter
	if c, ok := caps.Get(registry.TaskManagement); ok {
		tasks = scheduler.CapabilityTaskCounter{Capability: c}
	}
	sched, err := scheduler.New(cfg.Scheduler, ctxStore, xp, tasks, queue, locker, logger.Component(log, "scheduler"))
	if err != nil {
		log.Fatal("Failed to init scheduler", zap.Error(err))
	}
	go sched.Start(ctx)

	// Speech（可选）
	var (
		transcriber speech.Transcriber
		speaker     speech.Speaker
	)
	if cfg.Speech.BaseURL != "" {
		client := speech.NewClient(cfg.Speech, log)
		transcriber, speaker = client, client
	}

	// HTTP Server
	handler := httpserver.NewHandler(orch, queue, transcriber, speaker, log)
	r := httpserver.NewRouter(handler, cfg.JWT.Secret, log, readiness)
	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           r.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	log.Info("presentos server is fully initialized and running")
	<-ctx.Done()

	log.Info("Shutting down presentos server gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), orchestrator.DefaultBudget+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("presentos server shutdown complete")
}
