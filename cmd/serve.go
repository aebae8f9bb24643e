package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Kakaur/tensr-signal-agent/internal/model"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		s := newServer(e)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: s.routes(),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// server exposes the run store and pipeline over the dashboard API. One
// pipeline run at a time; concurrent triggers are rejected.
type server struct {
	env *env

	mu       sync.Mutex
	running  bool
	lastErr  string
	lastPath string
}

func newServer(e *env) *server {
	return &server{env: e}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/summary", s.handleSummary)
		r.Get("/signals", s.handleSignals)
		r.Get("/batches", s.handleBatches)
		r.Post("/batches/delete", s.handleBatchDelete)
		r.Get("/status", s.handleStatus)
		r.Post("/run-pipeline", s.handleRunPipeline)
		r.Get("/profile", s.handleGetProfile)
		r.Post("/profile", s.handleSetProfile)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := s.env.Store.GetSummary(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if summary == nil {
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.env.Store.LatestRunSignals(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if signals == nil {
		signals = []model.Signal{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"signals": signals,
		"count":   len(signals),
	})
}

func (s *server) handleBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.env.Store.ListBatches(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": batches})
}

func (s *server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunIDs []int64 `json:"run_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.RunIDs) == 0 {
		writeError(w, http.StatusBadRequest, "run_ids is required")
		return
	}

	res, err := s.env.Store.DeleteRuns(r.Context(), req.RunIDs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"running":     s.running,
		"last_error":  s.lastErr,
		"last_report": s.lastPath,
	})
}

func (s *server) handleRunPipeline(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Profile *model.Profile `json:"profile"`
	}
	if r.Body != nil {
		// An empty body runs with the default profile.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Profile != nil {
		if err := req.Profile.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "a pipeline run is already in progress")
		return
	}
	s.running = true
	s.lastErr = ""
	s.mu.Unlock()

	go func() {
		// The run outlives the triggering request.
		ctx := context.Background()
		_, scoreRes, err := s.env.Pipeline.RunAll(ctx, req.Profile, "")

		s.mu.Lock()
		defer s.mu.Unlock()
		s.running = false
		if err != nil {
			s.lastErr = err.Error()
			zap.L().Error("triggered pipeline run failed", zap.Error(err))
			return
		}
		if scoreRes != nil {
			s.lastPath = scoreRes.ReportPath
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.LatestRunProfile(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if run == nil || run.ProfileJSON == "" {
		writeError(w, http.StatusNotFound, "no profile recorded")
		return
	}

	var profile model.Profile
	if err := json.Unmarshal([]byte(run.ProfileJSON), &profile); err != nil {
		writeError(w, http.StatusInternalServerError, "stored profile is unreadable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"run_id":       run.ID,
		"profile_file": run.ProfileFile,
		"profile":      profile,
	})
}

func (s *server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RunID   int64          `json:"run_id"`
		Profile *model.Profile `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Profile == nil {
		writeError(w, http.StatusBadRequest, "profile is required")
		return
	}
	if err := req.Profile.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.RunID == 0 {
		run, err := s.env.Store.LatestRunProfile(r.Context())
		if err != nil || run == nil {
			writeError(w, http.StatusNotFound, "no run to attach the profile to")
			return
		}
		req.RunID = run.ID
	}

	data, err := json.Marshal(req.Profile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.env.Store.UpdateRunProfile(r.Context(), req.RunID, "", string(data)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run_id": req.RunID, "updated": true})
}
