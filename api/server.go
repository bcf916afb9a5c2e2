package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/Aidin1998/instapay/api/handlers"
	"github.com/Aidin1998/instapay/api/responses"
	"github.com/Aidin1998/instapay/internal/credentials"
	"github.com/Aidin1998/instapay/pkg/validation"
)

// TokenVerifier authenticates API callers
type TokenVerifier interface {
	Verify(token string) (*credentials.APIClaims, error)
}

// HealthCheck reports whether the database is reachable
type HealthCheck func(ctx context.Context) error

// Options configures the HTTP surface
type Options struct {
	ServiceName    string
	AllowedOrigins []string
}

// Server represents the API server
type Server struct {
	router   *gin.Engine
	logger   *zap.Logger
	payments *handlers.PaymentHandler
	verifier TokenVerifier
	health   HealthCheck
}

// NewServer wires middleware and routes
func NewServer(
	logger *zap.Logger,
	payments handlers.PaymentService,
	cycles handlers.CycleRunner,
	verifier TokenVerifier,
	health HealthCheck,
	opts Options,
) *Server {
	if opts.ServiceName == "" {
		opts.ServiceName = "instapay-api"
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}

	server := &Server{
		logger:   logger,
		payments: handlers.NewPaymentHandler(logger, payments, cycles, validation.NewValidator(logger)),
		verifier: verifier,
		health:   health,
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware(opts.ServiceName))
	router.Use(traceIDMiddleware())
	router.Use(metricsMiddleware())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     opts.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "auth-token"},
		ExposeHeaders:    []string{"Content-Length", "X-Trace-ID"},
		AllowCredentials: !containsWildcard(opts.AllowedOrigins),
		MaxAge:           12 * time.Hour,
	}))

	server.router = router
	server.registerRoutes()
	return server
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Handler exposes the router to an http.Server
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/v1")
	v1.Use(s.authMiddleware())
	{
		v1.POST("/payment/instanet", s.payments.Submit)
		v1.GET("/payment", s.payments.List)
		v1.GET("/transaction-status", s.payments.Status)
		v1.GET("/pending-transactions", s.payments.Pending)
		v1.POST("/transactions/reconcile", s.payments.Reconcile)
		v1.POST("/transactions/:id/ledger", s.payments.RepostLedger)
	}
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			responses.ServiceUnavailable(c, "database unreachable")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}

// authMiddleware verifies the caller's token from the auth-token header,
// falling back to Authorization with or without a Bearer prefix
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("auth-token"))
		if token == "" {
			token = strings.TrimSpace(c.GetHeader("Authorization"))
			if len(token) > 7 && strings.EqualFold(token[:7], "Bearer ") {
				token = strings.TrimSpace(token[7:])
			}
		}
		if token == "" {
			responses.Unauthorized(c, "auth-token or Authorization header required")
			c.Abort()
			return
		}

		claims, err := s.verifier.Verify(token)
		if err != nil {
			s.logger.Info("rejected API token", zap.String("path", c.FullPath()), zap.Error(err))
			responses.Unauthorized(c, "invalid or expired token")
			c.Abort()
			return
		}

		c.Set(handlers.InitiatorKey, claims.Initiator)
		c.Set(handlers.AuthTokenKey, token)
		c.Next()
	}
}

func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
