package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"sector-dashboard/internal/fetcher"
	"sector-dashboard/internal/macro"
	"sector-dashboard/internal/service"
	"sector-dashboard/internal/storage"
	"sector-dashboard/internal/watchlist"
)

// Querier is the dashboard query surface.
type Querier interface {
	MetricSeries(ctx context.Context, q service.MetricQuery) (*service.MetricView, error)
	SectorSeries(ctx context.Context, ticker string, years, smoothing int) (*service.Chart, error)
	MacroSeries(ctx context.Context, group string, years int, maturities []string) (*service.Chart, error)
	Watchlist(ctx context.Context, fund string) ([]watchlist.Entry, error)
	SectorWeightings(ctx context.Context) ([]watchlist.Weighting, error)
	RiskReturn(ctx context.Context, animated bool) (*service.RiskReturnView, error)
}

// Defaults mirror the dashboard's initial control values.
const (
	defaultMetricYears     = 2
	defaultSectorYears     = 1
	defaultSectorSmoothing = 7
	defaultMacroYears      = 4
	shutdownTimeout        = 10 * time.Second
)

// Options configure the HTTP server.
type Options struct {
	Addr string
	Mode string
}

// Server exposes the query surface over HTTP.
type Server struct {
	query  Querier
	engine *gin.Engine
	addr   string
	logger zerolog.Logger
}

// NewServer builds the gin engine and registers the routes.
func NewServer(query Querier, opts Options, logger zerolog.Logger) *Server {
	switch opts.Mode {
	case gin.DebugMode, gin.TestMode:
		gin.SetMode(opts.Mode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		query:  query,
		engine: gin.New(),
		addr:   opts.Addr,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.engine.Group("/api")
	r.GET("/health", s.getHealth)
	r.GET("/metrics/:metric", s.getMetricSeries)
	r.GET("/sectors/:ticker", s.getSectorSeries)
	r.GET("/macro/:group", s.getMacroSeries)
	r.GET("/watchlist", s.getWatchlist)
	r.GET("/sector-weightings", s.getSectorWeightings)
	r.GET("/risk-return", s.getRiskReturn)
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.addr).Msg("api server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	return ctx.Err()
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getMetricSeries(c *gin.Context) {
	years, ok := intParam(c, "years", defaultMetricYears)
	if !ok {
		return
	}
	smoothing, ok := intParam(c, "smoothing", 1)
	if !ok {
		return
	}
	asBar, ok := boolParam(c, "bar", false)
	if !ok {
		return
	}

	view, err := s.query.MetricSeries(c.Request.Context(), service.MetricQuery{
		Metric:    c.Param("metric"),
		Years:     years,
		Smoothing: smoothing,
		AsBar:     asBar,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) getSectorSeries(c *gin.Context) {
	years, ok := intParam(c, "years", defaultSectorYears)
	if !ok {
		return
	}
	smoothing, ok := intParam(c, "smoothing", defaultSectorSmoothing)
	if !ok {
		return
	}
	chart, err := s.query.SectorSeries(c.Request.Context(), c.Param("ticker"), years, smoothing)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (s *Server) getMacroSeries(c *gin.Context) {
	years, ok := intParam(c, "years", defaultMacroYears)
	if !ok {
		return
	}
	maturities := service.ParseMaturities(c.Query("maturities"))
	chart, err := s.query.MacroSeries(c.Request.Context(), c.Param("group"), years, maturities)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, chart)
}

func (s *Server) getWatchlist(c *gin.Context) {
	entries, err := s.query.Watchlist(c.Request.Context(), c.DefaultQuery("sector", "all"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(entries), "items": entries})
}

func (s *Server) getSectorWeightings(c *gin.Context) {
	weights, err := s.query.SectorWeightings(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"title": "Sector Weighting by Market Cap in S&P 500", "items": weights})
}

func (s *Server) getRiskReturn(c *gin.Context) {
	animated, ok := boolParam(c, "animated", true)
	if !ok {
		return
	}
	view, err := s.query.RiskReturn(c.Request.Context(), animated)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// fail maps an error to its HTTP status and writes it.
func (s *Server) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	event := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).Str("path", c.Request.URL.Path).Int("status", status).Msg("query failed")
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor classifies query errors: bad input is 400, store problems 503, provider failures 502.
func StatusFor(err error) int {
	var (
		schemaErr *storage.SchemaError
		fetchErr  *fetcher.FetchError
	)
	switch {
	case errors.Is(err, service.ErrUnknownMetric),
		errors.Is(err, service.ErrUnknownTicker),
		errors.Is(err, macro.ErrUnknownGroup),
		errors.Is(err, macro.ErrUnknownMaturity),
		errors.Is(err, watchlist.ErrUnknownSector):
		return http.StatusBadRequest
	case errors.As(err, &schemaErr), errors.Is(err, storage.ErrNotConfigured):
		return http.StatusServiceUnavailable
	case errors.As(err, &fetchErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func intParam(c *gin.Context, name string, def int) (int, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be a non-negative integer", name)})
		return 0, false
	}
	return v, true
}

func boolParam(c *gin.Context, name string, def bool) (bool, bool) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s must be a boolean", name)})
		return false, false
	}
	return v, true
}

var _ Querier = (*service.Service)(nil)
