// Package server exposes the canvas page host and the visual block pipeline
// over an HTTP JSON API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mathcanvas/internal/browser"
	"mathcanvas/internal/config"
	"mathcanvas/internal/logging"
	"mathcanvas/internal/pipeline"
	"mathcanvas/internal/store"
)

// PageDriver is the slice of the browser host the API needs. Narrowed to an
// interface so handler tests can run against a fake page.
type PageDriver interface {
	pipeline.Renderer
	pipeline.Verifier
	LoadContent(ctx context.Context, html string) error
	MeasureElement(ctx context.Context, selector string) (browser.Rect, error)
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	ScreenshotElement(ctx context.Context, selector string) ([]byte, error)
	IsConnected() bool
}

// ReportHistory is the persistence surface the API needs.
type ReportHistory interface {
	Save(ctx context.Context, id string, report pipeline.Report) error
	Get(ctx context.Context, id string) (pipeline.Report, error)
	List(ctx context.Context, limit int) ([]store.ReportSummary, error)
}

// Server routes HTTP requests to the page driver and pipeline.
type Server struct {
	router   chi.Router
	driver   PageDriver
	reports  ReportHistory
	defaults config.PipelineConfig
	logger   *zap.Logger
}

// New builds the API server. reports may be nil; pipeline runs then skip
// persistence.
func New(driver PageDriver, reports ReportHistory, defaults config.PipelineConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:   chi.NewRouter(),
		driver:   driver,
		reports:  reports,
		defaults: defaults,
		logger:   logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestLogger)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Post("/pipeline", s.handlePipeline)
		r.Post("/render", s.handleRender)
		r.Post("/verify", s.handleVerify)
		r.Post("/content", s.handleContent)
		r.Post("/measure", s.handleMeasure)
		r.Post("/screenshot", s.handleScreenshot)
		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{id}", s.handleGetReport)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("encode response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ok",
		"browser_connected": s.driver.IsConnected(),
	})
}

type pipelineRequest struct {
	Document   string `json:"document"`
	Verify     *bool  `json:"verify,omitempty"`
	MaxRetries *int   `json:"max_retries,omitempty"`
}

type pipelineResponse struct {
	ID     string          `json:"id,omitempty"`
	Report pipeline.Report `json:"report"`
}

func (s *Server) handlePipeline(w http.ResponseWriter, r *http.Request) {
	var req pipelineRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	cfg := pipeline.Config{
		Verify:     s.defaults.Verify,
		MaxRetries: s.defaults.MaxRetries,
	}
	if req.Verify != nil {
		cfg.Verify = *req.Verify
	}
	if req.MaxRetries != nil {
		// Explicit zero or negative still means at least one attempt;
		// NewRunner clamps.
		cfg.MaxRetries = *req.MaxRetries
	}

	runner := pipeline.NewRunner(cfg, s.driver, s.driver)
	report, err := runner.Run(r.Context(), req.Document)
	if err != nil {
		s.logger.Error("pipeline run failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "pipeline run failed: "+err.Error())
		return
	}

	resp := pipelineResponse{Report: report}
	if s.reports != nil {
		id := uuid.NewString()
		if err := s.reports.Save(r.Context(), id, report); err != nil {
			// The run itself succeeded; losing history is not fatal.
			logging.StoreError("save report: %v", err)
			s.logger.Warn("report not persisted", zap.Error(err))
		} else {
			resp.ID = id
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type renderRequest struct {
	Kind    pipeline.Kind    `json:"kind"`
	Body    string           `json:"body"`
	Options pipeline.Options `json:"options,omitempty"`
}

type renderResponse struct {
	OK       bool   `json:"ok"`
	Artifact string `json:"artifact,omitempty"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var req renderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !pipeline.ValidKind(req.Kind) {
		writeError(w, http.StatusBadRequest, "unknown directive kind: "+string(req.Kind))
		return
	}
	result, err := s.driver.Render(r.Context(), req.Kind, req.Body, req.Options)
	if err != nil {
		writeError(w, http.StatusBadGateway, "render failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, renderResponse{OK: result.OK, Artifact: result.Artifact})
}

type verifyRequest struct {
	Kind     pipeline.Kind `json:"kind"`
	Artifact string        `json:"artifact"`
}

type verifyResponse struct {
	Passed bool     `json:"passed"`
	Errors []string `json:"errors,omitempty"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !pipeline.ValidKind(req.Kind) {
		writeError(w, http.StatusBadRequest, "unknown directive kind: "+string(req.Kind))
		return
	}
	result, err := s.driver.Verify(r.Context(), req.Kind, req.Artifact)
	if err != nil {
		writeError(w, http.StatusBadGateway, "verification failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{Passed: result.Passed, Errors: result.Errors})
}

type contentRequest struct {
	HTML string `json:"html"`
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.driver.LoadContent(r.Context(), req.HTML); err != nil {
		writeError(w, http.StatusBadGateway, "load content failed: "+err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type measureRequest struct {
	Selector string `json:"selector"`
}

func (s *Server) handleMeasure(w http.ResponseWriter, r *http.Request) {
	var req measureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Selector == "" {
		writeError(w, http.StatusBadRequest, "selector required")
		return
	}
	rect, err := s.driver.MeasureElement(r.Context(), req.Selector)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "measure failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rect)
}

type screenshotRequest struct {
	FullPage bool   `json:"full_page"`
	Selector string `json:"selector,omitempty"`
}

func (s *Server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	var req screenshotRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var (
		png []byte
		err error
	)
	if req.Selector != "" {
		png, err = s.driver.ScreenshotElement(r.Context(), req.Selector)
	} else {
		png, err = s.driver.Screenshot(r.Context(), req.FullPage)
	}
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, "screenshot failed: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		logging.ServerError("write screenshot: %v", err)
	}
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "report history disabled")
		return
	}
	summaries, err := s.reports.List(r.Context(), 50)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list reports: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reports": summaries})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusNotFound, "report history disabled")
		return
	}
	id := chi.URLParam(r, "id")
	report, err := s.reports.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "report not found: "+id)
			return
		}
		writeError(w, http.StatusInternalServerError, "get report: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}
