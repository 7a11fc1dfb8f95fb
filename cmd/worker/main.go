package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/jwalitptl/consult-api/internal/config"
	"github.com/jwalitptl/consult-api/internal/email"
	mongorepo "github.com/jwalitptl/consult-api/internal/repository/mongo"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	"github.com/jwalitptl/consult-api/pkg/logger"
	redisbroker "github.com/jwalitptl/consult-api/pkg/messaging/redis"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := logger.NewLogger(&logger.Config{
		Level:      level,
		TimeFormat: time.RFC3339,
		Output:     os.Stdout,
		Pretty:     cfg.Log.Pretty,
	})

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
	db, err := mongorepo.NewDB(connectCtx, mongorepo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
	})
	connectCancel()
	if err != nil {
		log.Fatal(err, "failed to connect to MongoDB")
	}
	defer db.Client().Disconnect(context.Background())

	broker, err := redisbroker.NewRedisBroker(redisbroker.Config{
		URL:          cfg.Redis.URL,
		MaxRetries:   cfg.Redis.MaxRetries,
		RetryBackoff: cfg.Redis.RetryBackoff,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, log.Zerolog())
	if err != nil {
		log.Fatal(err, "failed to connect to Redis")
	}
	defer broker.Close()

	outboxRepo := mongorepo.NewOutboxRepository(db)
	appointmentRepo := mongorepo.NewAppointmentRepository(db)
	userRepo := mongorepo.NewUserRepository(db)
	auditRepo := mongorepo.NewAuditRepository(db)

	var emails email.Service = email.NoopService{}
	if cfg.SMTP.Username != "" {
		emails = email.NewSMTPService(&cfg.SMTP)
	}

	m := metrics.NewMetrics("consult", "worker")
	processor := worker.NewOutboxProcessor(cfg.Outbox, outboxRepo, userRepo, broker, emails, log, m)
	scanner := worker.NewReminderScanner(cfg.Reminder, appointmentRepo, notification.NewEnqueuer(outboxRepo), log, m)
	retention := worker.NewAuditRetention(cfg.Retention, auditRepo, log)

	startHealthServer(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down workers")
		cancel()
	}()

	go scanner.Start(ctx)
	go retention.Start(ctx)
	processor.Start(ctx)
}

func startHealthServer(log *logger.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.Handler())

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Fatal(err, "health check server failed")
		}
	}()
}
