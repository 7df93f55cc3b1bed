package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/pbaille/mushroom/internal/assets"
	"github.com/pbaille/mushroom/internal/codec"
	"github.com/pbaille/mushroom/internal/domain"
	"github.com/pbaille/mushroom/internal/inference"
	"github.com/pbaille/mushroom/internal/metrics"
	"github.com/pbaille/mushroom/internal/pipeline"
	"github.com/pbaille/mushroom/internal/stats"
)

//go:embed dashboard.html
var dashboardHTML string

var dashboard = template.Must(template.New("dashboard").Parse(dashboardHTML))

// Server handles HTTP requests for the classifier
type Server struct {
	analyzer   *pipeline.Analyzer
	metrics    *metrics.Metrics
	background *assets.Background
	logger     *zap.Logger
	addr       string
}

// New creates a new API server. m, bg and logger may be nil.
func New(a *pipeline.Analyzer, m *metrics.Metrics, bg *assets.Background, logger *zap.Logger, addr string) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{analyzer: a, metrics: m, background: bg, logger: logger, addr: addr}
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Dashboard
	mux.HandleFunc("GET /{$}", s.showDashboard)
	mux.HandleFunc("POST /{$}", s.submitForm)

	// Pipeline
	mux.HandleFunc("GET /features", s.listFeatures)
	mux.HandleFunc("POST /analyses", s.createAnalysis)
	mux.HandleFunc("GET /logs", s.listLogs)
	mux.HandleFunc("DELETE /logs", s.resetLogs)
	mux.HandleFunc("GET /stats", s.getStats)

	// Health check
	mux.HandleFunc("GET /health", s.health)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return withCORS(mux)
}

// Run starts the HTTP server
func (s *Server) Run() error {
	s.logger.Info("starting server", zap.String("addr", s.addr))
	return http.ListenAndServe(s.addr, s.Handler())
}

// withCORS adds CORS headers for frontend development
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Feature describes one form input
type Feature struct {
	Key    string   `json:"key"`
	Title  string   `json:"title"`
	Labels []string `json:"labels"`
}

func features() []Feature {
	out := make([]Feature, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		out = append(out, Feature{Key: c.String(), Title: c.Title(), Labels: codec.Labels(c)})
	}
	return out
}

func (s *Server) listFeatures(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"features": features()})
}

// AnalysisResponse is the response for a completed analysis
type AnalysisResponse struct {
	ID        string           `json:"id"`
	Verdict   domain.Verdict   `json:"verdict"`
	Message   string           `json:"message"`
	Record    domain.LogRecord `json:"record"`
	Persisted bool             `json:"persisted"`
	Warning   string           `json:"warning,omitempty"`
}

func (s *Server) createAnalysis(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sel, err := domain.SelectionFromMap(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.analyzer.Analyze(r.Context(), sel)
	if err != nil {
		writeError(w, errorStatus(err), pipeline.UserMessage(err))
		return
	}

	resp := AnalysisResponse{
		ID:        res.ID,
		Verdict:   res.Verdict,
		Message:   res.Message,
		Record:    res.Record,
		Persisted: res.Persisted(),
	}
	status := http.StatusCreated
	if !res.Persisted() {
		resp.Warning = pipeline.UserMessage(res.PersistErr)
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (s *Server) listLogs(w http.ResponseWriter, r *http.Request) {
	records, err := s.analyzer.Records(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, pipeline.UserMessage(err))
		return
	}
	if records == nil {
		records = []domain.LogRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"logs":  records,
		"count": len(records),
	})
}

func (s *Server) resetLogs(w http.ResponseWriter, r *http.Request) {
	if err := s.analyzer.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, pipeline.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	views, err := s.analyzer.Statistics(r.Context())
	if errors.Is(err, stats.ErrNoData) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"empty":   true,
			"message": pipeline.UserMessage(err),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, pipeline.UserMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func errorStatus(err error) int {
	var te *inference.TransportError
	var mre *inference.MalformedResponseError
	switch {
	case errors.Is(err, codec.ErrUnknownLabel):
		return http.StatusBadRequest
	case errors.As(err, &te), errors.As(err, &mre):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

type field struct {
	Feature
	Selected string
}

type page struct {
	Fields     []field
	Selected   domain.Selection
	Result     *pipeline.Result
	Error      string
	Warning    string
	Views      *stats.Views
	Empty      string
	Background template.URL
}

func (s *Server) showDashboard(w http.ResponseWriter, r *http.Request) {
	s.render(r.Context(), w, &page{})
}

func (s *Server) submitForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.render(r.Context(), w, &page{Error: "invalid form"})
		return
	}

	if r.PostForm.Get("action") == "reset" {
		p := &page{}
		if err := s.analyzer.Reset(r.Context()); err != nil {
			p.Error = pipeline.UserMessage(err)
		} else {
			p.Warning = "Database cleared!"
		}
		s.render(r.Context(), w, p)
		return
	}

	var sel domain.Selection
	for _, c := range domain.Categories {
		sel.Set(c, r.PostForm.Get(c.String()))
	}

	p := &page{Selected: sel}
	res, err := s.analyzer.Analyze(r.Context(), sel)
	if err != nil {
		p.Error = pipeline.UserMessage(err)
	} else {
		p.Result = res
		if !res.Persisted() {
			p.Warning = pipeline.UserMessage(res.PersistErr)
		}
	}
	s.render(r.Context(), w, p)
}

func (s *Server) render(ctx context.Context, w http.ResponseWriter, p *page) {
	for i, f := range features() {
		p.Fields = append(p.Fields, field{Feature: f, Selected: p.Selected.Get(domain.Categories[i])})
	}
	if s.background != nil {
		// produced by assets.LoadBackground, always a base64 image data URI
		p.Background = template.URL(s.background.DataURI)
	}

	if views, err := s.analyzer.Statistics(ctx); err != nil {
		p.Empty = pipeline.UserMessage(err)
	} else {
		p.Views = views
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboard.Execute(w, p); err != nil {
		s.logger.Error("render dashboard", zap.Error(err))
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
