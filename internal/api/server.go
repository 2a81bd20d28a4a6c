package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bl4ck0w1/forkhound/internal/orchestration"
	"github.com/bl4ck0w1/forkhound/internal/storage"
	"github.com/bl4ck0w1/forkhound/pkg/models"
	"github.com/bl4ck0w1/forkhound/pkg/utils"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

const maxTargetsPerRequest = 100

type Config struct {
	Addr            string        `yaml:"addr" json:"addr" mapstructure:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout" json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" json:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
}

func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:9001",
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    30 * time.Minute,
		ShutdownTimeout: 10 * time.Second,
	}
}

type Server struct {
	config  Config
	scanner *orchestration.Scanner
	results *storage.ResultsRepository
	metrics *utils.MetricsCollector
	logger  *logrus.Logger
	version string
}

func NewServer(config Config, scanner *orchestration.Scanner, results *storage.ResultsRepository,
	metrics *utils.MetricsCollector, logger *logrus.Logger, version string) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}
	return &Server{
		config:  config,
		scanner: scanner,
		results: results,
		metrics: metrics,
		logger:  logger,
		version: version,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/results", func(r chi.Router) {
		r.Get("/", s.handleListResults)
		r.Get("/{scanID}", s.handleGetResult)
	})
	r.Route("/scans", func(r chi.Router) {
		r.Post("/", s.handleRunScans)
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: s.config.ReadTimeout,
		ReadTimeout:       s.config.ReadTimeout,
		WriteTimeout:      s.config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("API listening on %s", s.config.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		timeout := s.config.ShutdownTimeout
		if timeout <= 0 {
			timeout = DefaultConfig().ShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.logger.Info("Shutting down API server")
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("api server error: %w", err)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("api request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":       "ok",
		"version":      s.version,
		"active_scans": len(s.scanner.ActiveScans()),
	})
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	var entries []storage.IndexEntry
	protocol := r.URL.Query().Get("protocol")
	level := strings.ToUpper(r.URL.Query().Get("level"))
	switch {
	case protocol != "":
		entries = s.results.FindByProtocol(r.Context(), protocol)
	case level != "":
		entries = s.results.FindByLevel(r.Context(), models.RiskLevel(level))
	default:
		entries = s.results.List(r.Context())
	}
	if entries == nil {
		entries = []storage.IndexEntry{}
	}
	render.JSON(w, r, map[string]interface{}{
		"count":   len(entries),
		"results": entries,
	})
}

func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scanID")
	result, err := s.results.FindByScanID(r.Context(), scanID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.renderError(w, r, http.StatusNotFound, "scan not found")
			return
		}
		s.logger.WithError(err).Errorf("Failed to load scan %s", scanID)
		s.renderError(w, r, http.StatusInternalServerError, "failed to load scan")
		return
	}
	render.JSON(w, r, result)
}

type scanRequest struct {
	Targets []orchestration.Target `json:"targets"`
}

func (s *Server) handleRunScans(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		s.renderError(w, r, http.StatusBadRequest, "invalid json")
		return
	}
	if len(req.Targets) == 0 {
		s.renderError(w, r, http.StatusBadRequest, "no targets")
		return
	}
	if len(req.Targets) > maxTargetsPerRequest {
		s.renderError(w, r, http.StatusBadRequest, fmt.Sprintf("at most %d targets per request", maxTargetsPerRequest))
		return
	}

	results := s.scanner.BatchScan(r.Context(), req.Targets)
	stored := s.results.StoreAll(r.Context(), results)
	s.logger.Infof("API batch scanned %d/%d targets, stored %d", len(results), len(req.Targets), stored)

	render.JSON(w, r, map[string]interface{}{
		"scanned": len(results),
		"skipped": len(req.Targets) - len(results),
		"stored":  stored,
		"results": results,
	})
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": msg})
}
