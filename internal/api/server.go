package api

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"media-webhook-processor/internal/config"
	"media-webhook-processor/internal/models"
	"media-webhook-processor/internal/ratelimit"
	"media-webhook-processor/internal/registry"
	"media-webhook-processor/internal/scheduler"
	"media-webhook-processor/internal/telemetry"
)

// Diagnostics reports on the external transcoding tool.
type Diagnostics interface {
	Version(ctx context.Context) (string, error)
}

// Server wires the HTTP surface over the scheduler and registry.
type Server struct {
	cfg       config.Config
	scheduler *scheduler.Scheduler
	registry  *registry.Registry
	limiter   *ratelimit.SubmissionLimiter
	diag      Diagnostics
}

// New constructs the API server. limiter and diag may be nil.
func New(cfg config.Config, sched *scheduler.Scheduler, reg *registry.Registry, limiter *ratelimit.SubmissionLimiter, diag Diagnostics) *Server {
	return &Server{
		cfg:       cfg,
		scheduler: sched,
		registry:  reg,
		limiter:   limiter,
		diag:      diag,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":      "ok",
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"environment": s.cfg.Env,
		})
	})

	r.Get("/api/ffmpeg-test", s.handleFFmpegTest)
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/api/process-webhook", s.handleSubmit)
	})
	r.Get("/api/job-status/{id}", s.handleJobStatus)
	r.Get("/api/jobs", s.handleListJobs)

	return r
}

type submitRequest struct {
	Posts []models.Post `json:"posts"`
}

type submitResponse struct {
	JobID          string `json:"job_id"`
	ReceivedPosts  int    `json:"received_posts"`
	PostsToProcess int    `json:"posts_to_process"`
	StatusURL      string `json:"status_url"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		decision, err := s.limiter.AllowSubmission(r.Context(), apiKeyFrom(r))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !decision.Allowed {
			if decision.RetryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(decision.RetryAfter.Seconds()))))
			}
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	receipt, err := s.scheduler.Submit(req.Posts)
	if err != nil {
		if errors.Is(err, scheduler.ErrNoPosts) || errors.Is(err, scheduler.ErrNoEligiblePosts) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{
		JobID:          receipt.JobID,
		ReceivedPosts:  len(req.Posts),
		PostsToProcess: receipt.TotalPosts,
		StatusURL:      receipt.StatusPath,
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, ok := s.registry.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) handleListJobs(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"jobs":        s.registry.List(),
		"active_jobs": s.scheduler.ActiveJobs(),
		"queued_jobs": s.scheduler.QueueDepth(),
	})
}

func (s *Server) handleFFmpegTest(w http.ResponseWriter, r *http.Request) {
	if s.diag == nil {
		writeError(w, http.StatusServiceUnavailable, "transcoder not configured")
		return
	}
	version, err := s.diag.Version(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"version": version,
	})
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && apiKeyFrom(r) != s.cfg.APIKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func apiKeyFrom(r *http.Request) string {
	if v := r.Header.Get("x-api-key"); v != "" {
		return v
	}
	return "anonymous"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
