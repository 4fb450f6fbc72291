// Package web exposes the rule store, the topology and the local hop
// simulator over a JSON API.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/user/hsafe/internal/rules"
	"github.com/user/hsafe/internal/topology"
	"github.com/user/hsafe/internal/util"
)

// Server is the API server.
type Server struct {
	config *util.Config
	rules  *rules.Store
	topo   *topology.Model
	router *gin.Engine
	srv    *http.Server
}

// NewServer creates a server over the given stores. Routes are registered
// immediately so Handler can be used without listening.
func NewServer(cfg *util.Config, rs *rules.Store, tm *topology.Model) *Server {
	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		config: cfg,
		rules:  rs,
		topo:   tm,
		router: gin.New(),
	}
	s.router.Use(gin.Recovery(), loggerMiddleware())
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	h := NewHandlers(s.config, s.rules, s.topo)
	a := NewAnalyticsHandlers(s.rules, s.topo)

	api := s.router.Group("/api")
	{
		api.GET("/health", h.Health)

		r := api.Group("/rules")
		{
			r.GET("", h.ListRules)
			r.POST("", h.CreateRule)
			r.GET("/audit", a.AuditRules)
			r.GET("/:id", h.GetRule)
			r.PUT("/:id", h.UpdateRule)
			r.DELETE("/:id", h.DeleteRule)
			r.POST("/:id/move", h.MoveRule)
			r.PATCH("/:id/status", h.SetRuleStatus)
		}

		t := api.Group("/topology")
		{
			t.GET("", h.GetTopology)
			t.DELETE("", h.ClearTopology)
			t.GET("/diagram", a.TopologyDiagram)
			t.POST("/nodes", h.AddNode)
			t.PATCH("/nodes/:id", h.UpdateNode)
			t.DELETE("/nodes/:id", h.RemoveNode)
			t.POST("/edges", h.Connect)
			t.DELETE("/edges/:id", h.Disconnect)
		}

		api.POST("/simulate/topology", h.SimulateTopology)
		api.POST("/report/summary", a.Summary)
	}
}

// Run listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.APIPort),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		util.Info("API server starting on port %d", s.config.APIPort)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to serve API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	return s.Stop()
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	util.Info("API server stopping")
	return s.srv.Shutdown(ctx)
}
