// Package edgeserver implements the edge HTTP boundary: POST
// /api/prompt, POST /api/reset, POST /api/context, POST
// /api/feedback/{positive|negative}, and GET
// /api/feedback/{positive|negative}/stats.
package edgeserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/energy-assistant/internal/apperr"
	"github.com/54b3r/energy-assistant/internal/digest"
	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/feedback"
	"github.com/54b3r/energy-assistant/internal/history"
	"github.com/54b3r/energy-assistant/internal/httputil"
	"github.com/54b3r/energy-assistant/internal/logging"
	"github.com/54b3r/energy-assistant/internal/metrics"
	"github.com/54b3r/energy-assistant/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

// New constructs a Server. If cfg.Logger is nil, [logging.New] is used.
func New(orchestrator Orchestrator, hist HistoryManager, digestMgr DigestManager, feedbackStore FeedbackRecorder, cfg *Config) (*Server, error) {
	if orchestrator == nil || hist == nil || feedbackStore == nil {
		return nil, fmt.Errorf("edgeserver: orchestrator, history, and feedback store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.New(prometheus.DefaultRegisterer)
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = httputil.DefaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = httputil.DefaultRateBurst
	}

	s := &Server{
		orchestrator: orchestrator,
		history:      hist,
		digest:       digestMgr,
		feedback:     feedbackStore,
		cfg:          cfg,
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		pingers:      cfg.Pingers,
	}

	rl, stopRL := httputil.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/prompt", s.handlePrompt)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("POST /api/context", s.handleContext)
	mux.HandleFunc("POST /api/feedback/{label}", s.handleFeedback)
	mux.HandleFunc("GET /api/feedback/{label}/stats", s.handleFeedbackStats)
	mux.HandleFunc("GET /api/ready", s.handleReady)

	handler := rl.Middleware(mux)
	handler = httputil.RequestLogger(s.log, handler)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("edgeserver listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("edgeserver: listen error: %w", err)
	case <-ctx.Done():
		if s.stopRL != nil {
			s.stopRL()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("edgeserver: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handlePrompt handles POST /api/prompt: classify and dispatch a single
// user message through the orchestrator.
func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	q := r.URL.Query()
	message := q.Get("message")
	token := q.Get("token")
	locationID := q.Get("location_id")
	userEmail := q.Get("user_email")

	if message == "" {
		s.respondError(w, http.StatusBadRequest, "", "message is required")
		return
	}

	ctx := tracing.SetRequestTrace(r.Context(), "edge-prompt", history.GenerateInteractionID())
	result := s.orchestrator.Process(ctx, message, token, locationID, userEmail)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(result.Content); err != nil {
		logging.FromContext(r.Context()).Error("edgeserver: encode prompt response failed", slog.Any("error", err))
	}

	if s.metrics != nil {
		s.metrics.PromptRequestsTotal.WithLabelValues(string(result.Category), "ok").Inc()
		s.metrics.PromptDurationSeconds.WithLabelValues(string(result.Category)).Observe(time.Since(start).Seconds())
	}
}

// handleReset handles POST /api/reset: archive the active conversation
// and start a fresh one for the given user.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	userEmail := r.URL.Query().Get("user_email")

	path := s.history.GetActiveConversationPath(userEmail)
	if err := s.history.ArchiveActiveConversation(path); err != nil {
		wrapped := apperr.New(apperr.Transient, "edgeserver.handleReset.archive", err)
		log.Error("edgeserver: archive conversation failed", slog.Any("error", wrapped))
		s.respondJSON(w, apperr.StatusCode(wrapped), resetResponse{Response: "error", Message: "failed to archive conversation"})
		return
	}
	if err := s.history.Truncate(path); err != nil {
		wrapped := apperr.New(apperr.Transient, "edgeserver.handleReset.truncate", err)
		log.Error("edgeserver: truncate conversation failed", slog.Any("error", wrapped))
		s.respondJSON(w, apperr.StatusCode(wrapped), resetResponse{Response: "error", Message: "failed to reset conversation"})
		return
	}

	s.respondJSON(w, http.StatusOK, resetResponse{Response: "ok"})
}

// handleContext handles POST /api/context: the daily-digest injection.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	q := r.URL.Query()
	token := q.Get("token")
	locationID := q.Get("location_id")
	userEmail := q.Get("user_email")
	_ = token
	_ = locationID

	if s.digest == nil {
		s.respondJSON(w, http.StatusOK, contextNoDigestResponse{Status: "no_digest_today"})
		return
	}

	show, err := s.digest.ShouldShow(userEmail)
	if err != nil {
		wrapped := apperr.New(apperr.Transient, "edgeserver.handleContext", err)
		log.Error("edgeserver: digest ShouldShow failed", slog.Any("error", wrapped))
		s.respondJSON(w, apperr.StatusCode(wrapped), contextErrorResponse{Error: "digest_generation_failed"})
		return
	}
	if !show {
		s.respondJSON(w, http.StatusOK, contextNoDigestResponse{Status: "no_digest_today"})
		return
	}

	tip := digest.GenerateTip(time.Now())
	message := digest.FormattedMessage(tip)

	path := s.history.GetActiveConversationPath(userEmail)
	if err := s.history.SaveMessage(path, domain.ConversationMessage{
		Role:      domain.RoleAssistant,
		Content:   message,
		Timestamp: time.Now(),
	}); err != nil {
		log.Warn("edgeserver: failed to persist digest message", slog.Any("error", err))
	}

	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": message,
	})
}

// handleFeedback handles POST /api/feedback/{positive|negative}.
func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())
	label := domain.FeedbackLabel(r.PathValue("label"))
	if label != domain.FeedbackPositive && label != domain.FeedbackNegative {
		s.respondJSON(w, http.StatusBadRequest, feedbackResponse{Response: "error", Message: "invalid feedback label"})
		return
	}

	interactionID := r.URL.Query().Get("interaction_id")
	if interactionID == "" {
		s.respondJSON(w, http.StatusBadRequest, feedbackResponse{Response: "error", Message: "interaction_id is required"})
		return
	}

	now := time.Now()
	item := domain.FeedbackItem{
		FeedbackID:    "", // computed below
		InteractionID: interactionID,
		Label:         label,
		Score:         domain.FeedbackScore(label),
		CreatedAt:     now,
	}
	item.FeedbackID = feedback.ComputeFeedbackID(interactionID, now)

	if err := s.feedback.Record(r.Context(), item); err != nil {
		log.Error("edgeserver: record feedback failed", slog.Any("error", err))
		s.respondJSON(w, http.StatusInternalServerError, feedbackResponse{Response: "error", Message: "failed to record feedback"})
		return
	}

	s.respondJSON(w, http.StatusOK, feedbackResponse{Response: "ok", FeedbackID: item.FeedbackID})
}

// handleFeedbackStats handles GET /api/feedback/{positive|negative}/stats.
// The label path segment is accepted for URL symmetry with
// POST /api/feedback/{label}; stats are always all-time totals across
// both labels.
func (s *Server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	stats, err := s.feedback.Stats(r.Context())
	if err != nil {
		log.Error("edgeserver: feedback stats failed", slog.Any("error", err))
		s.respondJSON(w, http.StatusInternalServerError, feedbackResponse{Response: "error", Message: "failed to load feedback stats"})
		return
	}

	s.respondJSON(w, http.StatusOK, feedbackStatsResponse{Response: "ok", Data: stats})
}

// handleReady handles GET /api/ready, probing configured dependencies
// (chat model, cloud RAG endpoint) the same way ragserver's /health does.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	status := "ok"
	httpStatus := http.StatusOK
	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err := p.Ping(probeCtx)
		cancel()
		if err != nil {
			log.Warn("edgeserver: readiness probe failed", slog.String("dependency", p.Name()), slog.Any("error", err))
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	s.respondJSON(w, httpStatus, readyResponse{Status: status, Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("edgeserver: encode response failed", slog.Any("error", err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, interactionID, detail string) {
	s.respondJSON(w, code, domain.ErrorResponse{
		Message:       "Something went wrong handling your request.",
		Type:          "error",
		Detail:        detail,
		InteractionID: interactionID,
	})
}
