// Package server exposes the extraction engine, the source analyzer and the
// episode navigator over a local HTTP API.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nartya-app/nartya/internal/cache"
	"github.com/nartya-app/nartya/internal/extractor"
	"github.com/nartya-app/nartya/internal/playback"
	"github.com/nartya-app/nartya/internal/probe"
	"github.com/nartya-app/nartya/internal/util"
	"github.com/nartya-app/nartya/internal/version"
)

// Response is the envelope of every API response.
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// Extractor runs extractions.
type Extractor interface {
	Extract(ctx context.Context, embedURL string) extractor.Result
	ExtractMany(ctx context.Context, embedURLs []string) map[string]*string
}

// Prober checks extracted media.
type Prober interface {
	Probe(ctx context.Context, rawURL string) (probe.Report, error)
}

// Deps are the collaborators behind the routes. Prober may be nil.
type Deps struct {
	Engine    Extractor
	Navigator *playback.Navigator
	Cache     *cache.Cache
	Prober    Prober
}

// Server is the local HTTP API.
type Server struct {
	deps   Deps
	addr   string
	engine *gin.Engine
	server *http.Server
}

// New builds the router. Nothing listens until Start.
func New(addr string, deps Deps) *Server {
	s := &Server{deps: deps, addr: addr}

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.engine.Use(s.loggingMiddleware())

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)
	api.POST("/extract", s.handleExtract)
	api.POST("/extract/batch", s.handleExtractBatch)
	api.POST("/analyze", s.handleAnalyze)
	api.POST("/probe", s.handleProbe)

	api.POST("/season", s.handleLoadSeason)
	api.POST("/season/language", s.handleSwitchLanguage)
	api.POST("/season/source", s.handleSwitchSource)
	api.POST("/season/play", s.handlePlay)

	api.GET("/cache", s.handleGetCache)
	api.DELETE("/cache", s.handleClearCache)

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, Response{Code: http.StatusNotFound, Message: "not found"})
	})
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.engine }

// Start listens on the configured address until Stop.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.engine,
		ReadTimeout: 30 * time.Second,
		// Extractions and batches can run for minutes.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	util.Info("Starting API server", "addr", s.addr, "version", version.Version)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		util.Debug("API request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start).Round(time.Millisecond))
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: http.StatusOK, Data: data, Message: "ok"})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, Response{Code: status, Message: msg})
}
