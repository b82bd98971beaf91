package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/cohortlens/internal/chart"
	"github.com/tinytelemetry/cohortlens/internal/dataset"
	"github.com/tinytelemetry/cohortlens/internal/facet"
	"github.com/tinytelemetry/cohortlens/internal/model"
	"go.uber.org/zap"
)

// Dataset is the narrow contract the HTTP API needs from the dataset service.
type Dataset interface {
	Query(spec facet.FilterSpec) (*facet.Result, error)
	Chart(spec facet.FilterSpec) (*chart.Cohort, error)
	Compare(baseline, comparator facet.FilterSpec) (*chart.Comparison, error)
	Rebuild(ctx context.Context) error
	Append(ctx context.Context, r model.Record) error
	Stats() dataset.Stats
}

// Config holds optional settings for the server.
type Config struct {
	Logger *zap.Logger
}

// Server exposes the dataset over HTTP.
type Server struct {
	addr      string
	dataset   Dataset
	logger    *zap.Logger
	server    *http.Server
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
}

// NewServer creates a new HTTP API server.
func NewServer(addr string, ds Dataset, conf ...Config) *Server {
	if addr == "" {
		addr = "0.0.0.0:3000"
	}
	var cfg Config
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:    addr,
		dataset: ds,
		logger:  cfg.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/api/health", s.handleHealth)

	api := r.Group("/api/dataset")
	api.GET("/query", s.handleQuery)
	api.POST("/query", s.handleQuery)
	api.GET("/chart", s.handleChart)
	api.POST("/chart", s.handleChart)
	api.POST("/rebuild", s.handleRebuild)
	api.POST("/compare", s.handleCompare)
	api.POST("/records", s.handleAppend)
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	s.routes(r)

	s.server = &http.Server{
		Handler:           r,
		BaseContext:       func(_ net.Listener) context.Context { return s.ctx },
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}

	s.startTime = time.Now()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("httpserver: serve failed", zap.Error(err))
		}
	}()
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	s.cancel()
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// fail maps dataset and filter errors onto status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, facet.ErrMalformedFilter):
		status = http.StatusBadRequest
	case errors.Is(err, dataset.ErrNotReady):
		status = http.StatusServiceUnavailable
	case errors.Is(err, dataset.ErrDataUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("httpserver: request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// filterSpec reads the filter from the "filter" query parameter or, failing
// that, the JSON request body. A request with neither gets an empty filter.
func filterSpec(c *gin.Context) (facet.FilterSpec, error) {
	spec := facet.FilterSpec{}
	if raw := c.Query("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &spec); err != nil {
			return nil, err
		}
		return spec, nil
	}
	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return spec, nil
	}
	if err := c.ShouldBindJSON(&spec); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if spec == nil {
		spec = facet.FilterSpec{}
	}
	return spec, nil
}

func (s *Server) handleHealth(c *gin.Context) {
	stats := s.dataset.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"uptime":     time.Since(s.startTime).String(),
		"ready":      stats.Ready,
		"records":    stats.Records,
		"generation": stats.Generation,
	})
}

func (s *Server) handleQuery(c *gin.Context) {
	spec, err := filterSpec(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter: " + err.Error()})
		return
	}
	res, err := s.dataset.Query(spec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleChart(c *gin.Context) {
	spec, err := filterSpec(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter: " + err.Error()})
		return
	}
	cohort, err := s.dataset.Chart(spec)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cohort)
}

func (s *Server) handleRebuild(c *gin.Context) {
	if err := s.dataset.Rebuild(c.Request.Context()); err != nil {
		s.fail(c, err)
		return
	}
	stats := s.dataset.Stats()
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"records":    stats.Records,
		"generation": stats.Generation,
	})
}

// cohortRef is a saved cohort; CohortURL carries its JSON-encoded filter.
type cohortRef struct {
	Username   string `json:"username"`
	CohortName string `json:"cohortName"`
	CohortURL  string `json:"cohorturl"`
	CreatedDT  string `json:"createdDT"`
}

func (r *cohortRef) spec() (facet.FilterSpec, error) {
	spec := facet.FilterSpec{}
	if err := json.Unmarshal([]byte(r.CohortURL), &spec); err != nil {
		return nil, err
	}
	if spec == nil {
		spec = facet.FilterSpec{}
	}
	return spec, nil
}

func (s *Server) handleCompare(c *gin.Context) {
	var req struct {
		CohortA *cohortRef `json:"cohorta"`
		CohortB *cohortRef `json:"cohortb"`
	}
	if err := c.ShouldBindJSON(&req); err != nil ||
		req.CohortA == nil || req.CohortB == nil ||
		req.CohortA.CohortURL == "" || req.CohortB.CohortURL == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No cohorts provided"})
		return
	}

	baseline, err := req.CohortA.spec()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cohorta filter: " + err.Error()})
		return
	}
	comparator, err := req.CohortB.spec()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid cohortb filter: " + err.Error()})
		return
	}

	cmp, err := s.dataset.Compare(baseline, comparator)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmp)
}

func (s *Server) handleAppend(c *gin.Context) {
	var rec model.Record
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid record: " + err.Error()})
		return
	}
	if err := s.dataset.Append(c.Request.Context(), rec); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"records": s.dataset.Stats().Records})
}
