package app

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/initify/flakie/internal/runner"
)

type simulateRequest struct {
	Runs  int    `json:"runs" binding:"gte=0,lte=10000"`
	Seed  int64  `json:"seed"`
	Suite string `json:"suite"`
}

// NewRouterWithServer returns a Gin engine with routes wired to s.
func NewRouterWithServer(s *Server) http.Handler {
	r := gin.New()
	r.Use(ginzap.Ginzap(s.log, time.RFC3339, true), ginzap.RecoveryWithZap(s.log, true))

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/api/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	// local and serverless paths
	r.POST("/webhook", gin.WrapH(s))
	r.POST("/api/webhook", gin.WrapH(s))

	r.GET("/api/scenarios", s.listScenarios)
	r.GET("/api/pipeline", func(c *gin.Context) { c.JSON(http.StatusOK, s.pipeline) })
	r.POST("/api/simulate", s.simulate)
	return r
}

func (s *Server) listScenarios(c *gin.Context) {
	cat, err := s.catalog.Filter(c.Query("suite"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"suites": cat.Suites(), "scenarios": cat.All()})
}

func (s *Server) simulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := s.runner.Run(c.Request.Context(), runner.Options{Runs: req.Runs, Seed: req.Seed, Suite: req.Suite})
	if err != nil {
		status := http.StatusBadRequest
		if c.Request.Context().Err() != nil {
			status = http.StatusServiceUnavailable
		}
		s.log.Warn("simulation failed", zap.Error(err))
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

// RouterFromEnv creates a Server from env and returns a Gin router wired to it.
func RouterFromEnv(log *zap.Logger) (http.Handler, error) {
	cfg, err := LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	srv, err := NewServer(cfg, log)
	if err != nil {
		return nil, err
	}
	return NewRouterWithServer(srv), nil
}
