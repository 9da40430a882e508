package ragserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/feedback"
	"github.com/54b3r/energy-assistant/internal/generation"
	"github.com/54b3r/energy-assistant/internal/metrics"
	"github.com/54b3r/energy-assistant/internal/retrieval"
)

// Config holds the cloud RAG HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 0.0.0.0).
	Host string
	// Port is the TCP port to listen on (default: 8081).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /health.
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP. Defaults to
	// httputil.DefaultRateLimit if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to
	// httputil.DefaultRateBurst if zero.
	RateBurst int
	// Metrics is the Prometheus registry. If nil, a fresh one is created
	// against prometheus.DefaultRegisterer.
	Metrics *metrics.Registry
	// DefaultTopK is used when a request omits topK.
	DefaultTopK int
}

// Retriever is the subset of retrieval.Engine the server needs.
type Retriever interface {
	Retrieve(ctx context.Context, question string, topKHint int) []retrieval.Scored
}

// Answerer is the subset of generation.Generator the server needs.
type Answerer interface {
	Answer(ctx context.Context, question, interactionID string, topK int, contextDocs []generation.ContextDoc) (*domain.EnergyEfficiencyResponse, error)
}

// FeedbackBatcher is the subset of feedback.Store the server needs.
type FeedbackBatcher interface {
	BatchIngest(ctx context.Context, items []domain.FeedbackItem) (feedback.BatchResult, error)
}

// EvalEnqueuer is the subset of evalqueue.Store the server needs to defer
// relevance scoring for every answered question.
type EvalEnqueuer interface {
	Enqueue(ctx context.Context, interactionID, question, answer string, context []string) error
}

// Pinger is implemented by any dependency GET /health probes.
type Pinger interface {
	Ping(ctx context.Context) error
	Name() string
}

// Server is the HTTP server exposing the cloud RAG boundary: answer,
// feedback sync, and health.
type Server struct {
	retriever Retriever
	generator Answerer
	feedback  FeedbackBatcher
	evalQueue EvalEnqueuer

	cfg        *Config
	httpServer *http.Server
	log        *slog.Logger
	metrics    *metrics.Registry
	pingers    []Pinger
	stopRL     func()
}

// ragAnswerRequest is the JSON body for POST /api/rag/answer.
type ragAnswerRequest struct {
	Question      string `json:"question"`
	InteractionID string `json:"interactionId"`
	TopK          int    `json:"topK"`
}

// feedbackSyncRequest is the JSON body for POST /api/feedback/sync.
type feedbackSyncRequest struct {
	Items []domain.FeedbackItem `json:"items"`
}

// feedbackSyncResponse is the JSON response for POST /api/feedback/sync.
type feedbackSyncResponse struct {
	Accepted   int `json:"accepted"`
	Duplicates int `json:"duplicates"`
}

// healthResponse is the JSON response for GET /health.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
