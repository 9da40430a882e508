package edgeserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/edge"
	"github.com/54b3r/energy-assistant/internal/feedback"
	"github.com/54b3r/energy-assistant/internal/metrics"
)

// Config holds the edge HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	Logger *slog.Logger
	// RateLimit is the sustained request rate allowed per IP. Defaults to
	// httputil.DefaultRateLimit if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to
	// httputil.DefaultRateBurst if zero.
	RateBurst int
	// Metrics is the Prometheus registry. If nil, a fresh one is created
	// against prometheus.DefaultRegisterer.
	Metrics *metrics.Registry
	// Pingers are probed by GET /api/ready, e.g. the chat model and the
	// cloud RAG endpoint (see CloudRAGPinger).
	Pingers []Pinger
}

// Pinger is a readiness dependency probe, e.g. the chat model or the
// cloud RAG endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

// Orchestrator is the subset of edge.Orchestrator the server needs.
type Orchestrator interface {
	Process(ctx context.Context, message, token, locationID, userEmail string) edge.Result
}

// HistoryManager is the subset of history.Manager the server needs for
// POST /api/reset.
type HistoryManager interface {
	GetActiveConversationPath(userEmail string) string
	ArchiveActiveConversation(activePath string) error
	Truncate(path string) error
	SaveMessage(path string, msg domain.ConversationMessage) error
}

// DigestManager is the subset of digest.Manager the server needs for
// POST /api/context.
type DigestManager interface {
	ShouldShow(userEmail string) (bool, error)
}

// FeedbackRecorder is the subset of feedback.Store the server needs.
type FeedbackRecorder interface {
	Record(ctx context.Context, item domain.FeedbackItem) error
	Stats(ctx context.Context) (feedback.Stats, error)
}

// Server is the HTTP server exposing the edge boundary: prompt, reset,
// context (daily digest), and feedback.
type Server struct {
	orchestrator Orchestrator
	history      HistoryManager
	digest       DigestManager
	feedback     FeedbackRecorder

	cfg        *Config
	httpServer *http.Server
	log        *slog.Logger
	metrics    *metrics.Registry
	pingers    []Pinger
	stopRL     func()
}

type readyResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// resetResponse is the JSON body returned by POST /api/reset.
type resetResponse struct {
	Response string `json:"response"`
	Message  string `json:"message,omitempty"`
}

type contextNoDigestResponse struct {
	Status string `json:"status"`
}

type contextErrorResponse struct {
	Error string `json:"error"`
}

type feedbackResponse struct {
	Response   string `json:"response"`
	FeedbackID string `json:"feedback_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

type feedbackStatsResponse struct {
	Response string         `json:"response"`
	Data     feedback.Stats `json:"data"`
}
