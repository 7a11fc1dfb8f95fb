package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/middleware"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Handler registers a group of routes on the versioned API group.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Config struct {
	Environment    string
	RequestTimeout time.Duration
	MaxBodySize    int64
	RateLimitRPS   float64
	RateLimitBurst int
	CORS           middleware.CORSConfig
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	appointmentH  Handler
	consultationH Handler
	doctorH       Handler
	patientH      Handler
	auditH        Handler
	health        *handler.HealthHandler
}

func NewRouter(
	log *logger.Logger,
	auth *middleware.AuthMiddleware,
	appointmentH Handler,
	consultationH Handler,
	doctorH Handler,
	patientH Handler,
	auditH Handler,
	health *handler.HealthHandler,
	cfg Config,
) *Router {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(
		middleware.Recovery(log),
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Metrics(),
		middleware.SizeLimit(cfg.MaxBodySize),
		middleware.Timeout(cfg.RequestTimeout),
		middleware.CORS(cfg.CORS),
	)

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	engine.Use(rateLimiter.Limit())

	return &Router{
		engine:        engine,
		auth:          auth,
		appointmentH:  appointmentH,
		consultationH: consultationH,
		doctorH:       doctorH,
		patientH:      patientH,
		auditH:        auditH,
		health:        health,
	}
}

func (r *Router) Setup() {
	r.engine.GET("/healthz", r.health.Check)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})

	protected := api.Group("")
	protected.Use(r.auth.Authenticate())
	r.appointmentH.RegisterRoutes(protected)
	r.consultationH.RegisterRoutes(protected)
	r.doctorH.RegisterRoutes(protected)
	r.patientH.RegisterRoutes(protected)
	r.auditH.RegisterRoutes(protected)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
