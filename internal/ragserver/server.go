// Package ragserver implements the cloud RAG HTTP boundary: POST
// /api/rag/answer, POST /api/feedback/sync, and GET /health.
package ragserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/energy-assistant/internal/apperr"
	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/generation"
	"github.com/54b3r/energy-assistant/internal/httputil"
	"github.com/54b3r/energy-assistant/internal/logging"
	"github.com/54b3r/energy-assistant/internal/metrics"
	"github.com/54b3r/energy-assistant/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
)

// maxBodyBytes bounds the size of any request body this server accepts.
const maxBodyBytes = 1 << 20 // 1 MiB

// New constructs a Server. If cfg.Logger is nil, [logging.New] is used.
func New(retriever Retriever, generator Answerer, feedbackStore FeedbackBatcher, evalQueue EvalEnqueuer, cfg *Config) (*Server, error) {
	if retriever == nil || generator == nil || feedbackStore == nil {
		return nil, fmt.Errorf("ragserver: retriever, generator, and feedbackStore must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.Port == 0 {
		cfg.Port = 8081
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
	if cfg.DefaultTopK == 0 {
		cfg.DefaultTopK = 3
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
		retriever: retriever,
		generator: generator,
		feedback:  feedbackStore,
		evalQueue: evalQueue,
		cfg:       cfg,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		pingers:   cfg.Pingers,
	}

	rl, stopRL := httputil.NewRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/rag/answer", s.handleRAGAnswer)
	mux.HandleFunc("POST /api/feedback/sync", s.handleFeedbackSync)
	mux.HandleFunc("GET /health", s.handleHealth)

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
		s.log.Info("ragserver listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("ragserver: listen error: %w", err)
	case <-ctx.Done():
		if s.stopRL != nil {
			s.stopRL()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("ragserver: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleRAGAnswer handles POST /api/rag/answer: retrieve then read.
func (s *Server) handleRAGAnswer(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req ragAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "", "invalid request body")
		s.observeRAG("bad_request", start)
		return
	}
	if req.Question == "" {
		s.respondError(w, http.StatusBadRequest, req.InteractionID, "question is required")
		s.observeRAG("bad_request", start)
		return
	}
	if req.TopK <= 0 {
		req.TopK = s.cfg.DefaultTopK
	}
	interactionID := req.InteractionID
	if interactionID == "" {
		interactionID = fmt.Sprintf("rag-%d", time.Now().UnixNano())
	}
	ctx := tracing.SetRequestTrace(r.Context(), "rag-answer", interactionID)

	scored := s.retriever.Retrieve(ctx, req.Question, req.TopK)
	contextDocs := make([]generation.ContextDoc, 0, len(scored))
	contextChunks := make([]string, 0, len(scored))
	for _, sc := range scored {
		contextDocs = append(contextDocs, generation.ContextDoc{
			SourceID: sc.Doc.Source,
			Chunk:    sc.Doc.Content,
			Score:    sc.Score,
		})
		contextChunks = append(contextChunks, sc.Doc.Content)
	}

	resp, err := s.generator.Answer(ctx, req.Question, interactionID, req.TopK, contextDocs)
	if err != nil {
		wrapped := apperr.New(apperr.Upstream, "ragserver.handleRAGAnswer", err)
		log.Error("ragserver: answer failed", slog.String("interaction_id", interactionID), slog.Any("error", wrapped))
		s.respondError(w, apperr.StatusCode(wrapped), interactionID, "failed to generate an answer")
		s.observeRAG("error", start)
		return
	}

	if s.evalQueue != nil {
		if err := s.evalQueue.Enqueue(ctx, interactionID, req.Question, resp.Message, contextChunks); err != nil {
			log.Warn("ragserver: failed to enqueue eval row", slog.String("interaction_id", interactionID), slog.Any("error", err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ragserver: encode answer response failed", slog.Any("error", err))
	}
	s.observeRAG("ok", start)
}

// handleFeedbackSync handles POST /api/feedback/sync.
func (s *Server) handleFeedbackSync(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req feedbackSyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "", "invalid request body")
		return
	}

	result, err := s.feedback.BatchIngest(r.Context(), req.Items)
	if err != nil {
		wrapped := apperr.New(apperr.Transient, "ragserver.handleFeedbackSync", err)
		log.Error("ragserver: feedback batch ingest failed", slog.Any("error", wrapped))
		s.respondError(w, apperr.StatusCode(wrapped), "", "failed to ingest feedback batch")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(feedbackSyncResponse{Accepted: result.Accepted, Duplicates: result.Duplicates}); err != nil {
		log.Error("ragserver: encode feedback sync response failed", slog.Any("error", err))
	}
}

// handleHealth handles GET /health for liveness and dependency checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	status := "ok"
	httpStatus := http.StatusOK
	for _, p := range s.pingers {
		probeCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		err := p.Ping(probeCtx)
		cancel()
		if err != nil {
			log.Warn("ragserver: health probe failed", slog.String("dependency", p.Name()), slog.Any("error", err))
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	resp := healthResponse{Status: status, Timestamp: time.Now().UTC().Format(time.RFC3339)}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("ragserver: encode health response failed", slog.Any("error", err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, code int, interactionID, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(domain.ErrorResponse{
		Message:       "Something went wrong handling your request.",
		Type:          "error",
		Detail:        detail,
		InteractionID: interactionID,
	})
}

func (s *Server) observeRAG(outcome string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RAGRequestsTotal.WithLabelValues(outcome).Inc()
	s.metrics.RAGDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
