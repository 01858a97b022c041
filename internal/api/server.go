// Package api serves the read-only operator status endpoint of the
// controller process.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gridmind/swarmplan/internal/controller"
	"github.com/sirupsen/logrus"
)

// Server is the operator-facing HTTP API.
type Server struct {
	log        *logrus.Entry
	ctrl       *controller.Controller
	httpServer *http.Server
}

// NewServer builds the API server around the controller.
func NewServer(addr string, ctrl *controller.Controller, log *logrus.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		log:  log.WithField("component", "api"),
		ctrl: ctrl,
	}

	router.GET("/health", s.health)
	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", s.status)
		v1.GET("/solution", s.solution)
	}

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves the API in the background.
func (s *Server) Start() {
	s.log.WithField("addr", s.httpServer.Addr).Info("Status API listening")
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("Status API failed")
		}
	}()
}

// Shutdown stops the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctrl.Status())
}

func (s *Server) solution(c *gin.Context) {
	solution := s.ctrl.LastSolution()
	if solution == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no negotiation has completed yet"})
		return
	}
	names := s.ctrl.AgentNames()
	agents := solution.Agents()
	sids := solution.SIDs()
	rows := make([]gin.H, len(agents))
	for i, addr := range agents {
		name := names[addr]
		if name == "" {
			name = addr
		}
		rows[i] = gin.H{"name": name, "addr": addr, "index": i, "sid": sids[i]}
	}
	c.JSON(http.StatusOK, gin.H{
		"perf":   solution.Perf(),
		"agents": rows,
	})
}
