// internal/api/router.go
package api

import (
	"context"
	"net/http"
	"time"

	"kennel-notifications/internal/common/logger"
	processdue "kennel-notifications/internal/workers/notifications/process-due"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readinessTimeout = 2 * time.Second

// PassRunner runs one notification pass. *processdue.Handler implements it.
type PassRunner interface {
	RunPass(ctx context.Context, trigger processdue.Trigger) (processdue.Summary, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Options struct {
	Runner       PassRunner
	TriggerToken string
	// Readiness is checked by /ready; any failure reports 503.
	Readiness map[string]Pinger
	Logger    logger.Logger
}

type Server struct {
	runner    PassRunner
	readiness map[string]Pinger
	logger    logger.Logger
}

// NewRouter builds the gin engine serving the trigger, health and metrics endpoints.
func NewRouter(opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}
	log := opts.Logger.WithFields(map[string]interface{}{"component": "http"})
	s := &Server{
		runner:    opts.Runner,
		readiness: opts.Readiness,
		logger:    log,
	}

	router := gin.New()
	router.Use(RequestLogger(log))

	router.GET("/health", s.health)
	router.GET("/ready", s.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	notifications := v1.Group("/notifications")
	notifications.Use(TriggerTokenAuth(opts.TriggerToken, log))
	notifications.GET("/process", s.processDue)
	notifications.POST("/process", s.processDue)

	return router
}

// processDue runs one pass synchronously. Per-job failures still answer 200;
// only a pass that could not reach the store answers 500.
func (s *Server) processDue(c *gin.Context) {
	summary, err := s.runner.RunPass(c.Request.Context(), processdue.TriggerHTTP)
	if err != nil {
		s.logger.Error("triggered pass failed", map[string]interface{}{
			"error":     err,
			"requestId": requestID(c),
		})
		failureFromError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	checks := gin.H{}
	ready := true
	for name, p := range s.readiness {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			ready = false
			continue
		}
		checks[name] = "ok"
	}

	status, label := http.StatusOK, "ready"
	if !ready {
		status, label = http.StatusServiceUnavailable, "not_ready"
	}
	c.JSON(status, gin.H{
		"status": label,
		"checks": checks,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
