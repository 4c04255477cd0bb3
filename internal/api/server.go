// Package api exposes the diagnosis pipeline and the report store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/cropsense/farmops/internal/model"
	"github.com/cropsense/farmops/internal/store"
)

// Diagnosis bodies carry base64 photos; cap them before decoding.
const maxDiagnosisBody = 25 << 20

// Runner executes one diagnosis and always produces a report.
type Runner interface {
	Run(ctx context.Context, req *model.DiagnosisRequest) *model.DiagnosisReport
}

// Server holds the handlers' collaborators.
type Server struct {
	runner Runner
	store  store.Store
}

// NewServer constructs a Server around a diagnosis runner and a report store.
func NewServer(runner Runner, st store.Store) *Server {
	return &Server{runner: runner, store: st}
}

// Routes wires middlewares and endpoints.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.Post("/diagnosis", s.handleDiagnose)

		api.Route("/reports", func(rr chi.Router) {
			rr.Get("/", s.handleListReports)
			rr.Get("/stats", s.handleStats)
			rr.Get("/{id}", s.handleGetReport)
		})
	})

	return r
}

// handleDiagnose runs the full analysis pipeline for one request.
func (s *Server) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxDiagnosisBody)

	var req model.DiagnosisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.CropType) == "" {
		http.Error(w, "crop_type is required", http.StatusBadRequest)
		return
	}

	report := s.runner.Run(r.Context(), &req)
	writeJSON(w, http.StatusOK, model.NewAnalysisResponse(report))
}

type listReportsResponse struct {
	Reports  []model.ReportSummary `json:"reports"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// handleListReports returns a page of report summaries, newest first.
func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	actorID := queryInt(q.Get("actor_id"), 0)
	page := queryInt(q.Get("page"), 1)
	pageSize := queryInt(q.Get("page_size"), store.DefaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = store.DefaultPageSize
	}
	if pageSize > store.MaxPageSize {
		pageSize = store.MaxPageSize
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	reports, total, err := s.store.ListReports(ctx, actorID, page, pageSize)
	if err != nil {
		zap.L().Error("api: list reports failed", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, listReportsResponse{
		Reports:  reports,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}

// handleGetReport returns a single stored report by id.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	rec, err := s.store.GetReport(ctx, id)
	if err != nil {
		zap.L().Error("api: get report failed", zap.String("report_id", id), zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleStats aggregates the diagnosis history, optionally scoped to an actor.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	actorID := queryInt(r.URL.Query().Get("actor_id"), 0)

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	stats, err := s.store.Stats(ctx, actorID)
	if err != nil {
		zap.L().Error("api: stats failed", zap.Error(err))
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger emits one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: response encode failed", zap.Error(err))
	}
}

func queryInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
