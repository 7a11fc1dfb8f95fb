package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwalitptl/consult-api/internal/config"
	"github.com/jwalitptl/consult-api/internal/handler"
	appointmentHandler "github.com/jwalitptl/consult-api/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/consult-api/internal/handler/audit"
	consultationHandler "github.com/jwalitptl/consult-api/internal/handler/consultation"
	doctorHandler "github.com/jwalitptl/consult-api/internal/handler/doctor"
	patientHandler "github.com/jwalitptl/consult-api/internal/handler/patient"
	"github.com/jwalitptl/consult-api/internal/middleware"
	mongorepo "github.com/jwalitptl/consult-api/internal/repository/mongo"
	"github.com/jwalitptl/consult-api/internal/router"
	appointmentService "github.com/jwalitptl/consult-api/internal/service/appointment"
	auditService "github.com/jwalitptl/consult-api/internal/service/audit"
	"github.com/jwalitptl/consult-api/internal/service/availability"
	consultationService "github.com/jwalitptl/consult-api/internal/service/consultation"
	doctorService "github.com/jwalitptl/consult-api/internal/service/doctor"
	"github.com/jwalitptl/consult-api/internal/service/notification"
	patientService "github.com/jwalitptl/consult-api/internal/service/patient"
	paymentService "github.com/jwalitptl/consult-api/internal/service/payment"
	"github.com/jwalitptl/consult-api/internal/service/slot"
	"github.com/jwalitptl/consult-api/pkg/auth"
	"github.com/jwalitptl/consult-api/pkg/locker"
	"github.com/jwalitptl/consult-api/pkg/logger"
	redisbroker "github.com/jwalitptl/consult-api/pkg/messaging/redis"
	"github.com/jwalitptl/consult-api/pkg/metrics"
	"github.com/jwalitptl/consult-api/pkg/validator"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
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

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
	db, err := mongorepo.NewDB(ctx, mongorepo.Config{
		URI:      cfg.Mongo.URI,
		Database: cfg.Mongo.Database,
		Timeout:  cfg.Mongo.Timeout,
	})
	cancel()
	if err != nil {
		log.Fatal(err, "failed to connect to MongoDB")
	}
	defer db.Client().Disconnect(context.Background())

	idxCtx, idxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mongorepo.EnsureIndexes(idxCtx, db); err != nil {
		idxCancel()
		log.Fatal(err, "failed to ensure indexes")
	}
	idxCancel()

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

	m := metrics.NewMetrics("consult", "api")

	appointmentRepo := mongorepo.NewAppointmentRepository(db)
	consultationRepo := mongorepo.NewConsultationRepository(db)
	paymentRepo := mongorepo.NewPaymentRepository(db)
	doctorRepo := mongorepo.NewDoctorRepository(db)
	prescriptionRepo := mongorepo.NewPrescriptionRepository(db)
	recordRepo := mongorepo.NewMedicalRecordRepository(db)
	labRepo := mongorepo.NewLabResultRepository(db)
	counterRepo := mongorepo.NewCounterRepository(db)
	patientRepo := mongorepo.NewPatientRepository(db)
	auditRepo := mongorepo.NewAuditRepository(db)
	outboxRepo := mongorepo.NewOutboxRepository(db)

	jwtSvc := auth.NewJWTService(
		cfg.JWT.AccessSecret,
		cfg.JWT.RefreshSecret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)
	v := validator.New()

	locks := locker.NewRedisLocker(broker.Client(), log.Zerolog())
	enqueuer := notification.NewEnqueuer(outboxRepo)
	auditor := auditService.NewService(auditRepo, log)
	availabilitySvc := availability.NewService(doctorRepo, appointmentRepo)
	allocator := slot.NewAllocator(appointmentRepo, locks, m)

	appointmentSvc := appointmentService.NewService(
		appointmentRepo, doctorRepo, paymentRepo, counterRepo,
		allocator, availabilitySvc, enqueuer, auditor, log, m,
	)
	paymentSvc := paymentService.NewService(
		paymentRepo, counterRepo, enqueuer, auditor, log, m,
	)
	consultationSvc := consultationService.NewService(
		consultationRepo, appointmentRepo, doctorRepo, prescriptionRepo,
		recordRepo, labRepo, counterRepo, appointmentSvc, enqueuer, auditor, log, m,
	)
	doctorSvc := doctorService.NewService(doctorRepo, availabilitySvc, auditor)
	patientSvc := patientService.NewService(patientRepo, recordRepo, labRepo, counterRepo, auditor)
	appointmentSvc.SetRefundProcessor(paymentSvc)
	paymentSvc.SetConfirmer(appointmentSvc)

	authMW := middleware.NewAuthMiddleware(jwtSvc)
	health := handler.NewHealthHandler(map[string]handler.Pinger{
		"mongodb": pingerFunc(func(ctx context.Context) error {
			return db.Client().Ping(ctx, nil)
		}),
		"redis": pingerFunc(func(ctx context.Context) error {
			return broker.Client().Ping(ctx).Err()
		}),
	})

	r := router.NewRouter(
		log,
		authMW,
		appointmentHandler.NewHandler(appointmentSvc, availabilitySvc, v),
		consultationHandler.NewHandler(consultationSvc, v),
		doctorHandler.NewHandler(doctorSvc, v),
		patientHandler.NewHandler(patientSvc, v),
		auditHandler.NewHandler(auditor),
		health,
		router.Config{
			Environment:    cfg.Environment,
			RequestTimeout: cfg.Server.Timeout,
			MaxBodySize:    cfg.Server.MaxBodySize,
			RateLimitRPS:   cfg.RateLimit.RPS,
			RateLimitBurst: cfg.RateLimit.Burst,
			CORS:           corsConfig(cfg),
		},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	go func() {
		log.Info("server starting", map[string]interface{}{"port": cfg.Server.Port})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err, "failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal(err, "server forced to shutdown")
	}
	log.Info("server exited")
}

func corsConfig(cfg *config.Config) middleware.CORSConfig {
	c := middleware.DefaultCORSConfig()
	if len(cfg.CORS.AllowOrigins) > 0 {
		c.AllowOrigins = cfg.CORS.AllowOrigins
	}
	return c
}
