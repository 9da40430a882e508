package edge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/generation"
)

// EfficiencyPipeline implements the Energy-Efficiency Pipeline (spec
// 4.K): a cloud-first RAG call with a short timeout, falling back to a
// local generation when the cloud call is disabled, times out, or
// errors.
type EfficiencyPipeline struct {
	ragEnabled   bool
	ragEndpoint  string
	ragTimeout   time.Duration
	httpClient   *http.Client
	localGen     *generation.Generator
	log          *slog.Logger
}

// Config configures an EfficiencyPipeline.
type Config struct {
	RAGEnabled  bool
	RAGEndpoint string
	RAGTimeout  time.Duration
}

// NewEfficiencyPipeline constructs an EfficiencyPipeline. localGen backs
// the local fallback path and must not be nil.
func NewEfficiencyPipeline(cfg Config, localGen *generation.Generator, log *slog.Logger) *EfficiencyPipeline {
	if cfg.RAGTimeout <= 0 {
		cfg.RAGTimeout = 1500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	return &EfficiencyPipeline{
		ragEnabled:  cfg.RAGEnabled,
		ragEndpoint: cfg.RAGEndpoint,
		ragTimeout:  cfg.RAGTimeout,
		httpClient:  &http.Client{Timeout: cfg.RAGTimeout},
		localGen:    localGen,
		log:         log,
	}
}

// Run executes the pipeline, returning a validated EnergyEfficiencyResponse.
func (p *EfficiencyPipeline) Run(ctx context.Context, question, interactionID string, topK int) (*domain.EnergyEfficiencyResponse, error) {
	if p.ragEnabled {
		resp, err := p.callCloudRAG(ctx, question, interactionID, topK)
		if err == nil {
			return resp, nil
		}
		p.log.Warn("efficiencypipeline: cloud RAG call failed, falling back to local generation",
			"interaction_id", interactionID, "error", err)
	}

	return p.localGen.Answer(ctx, question, interactionID, topK, nil)
}

func (p *EfficiencyPipeline) callCloudRAG(ctx context.Context, question, interactionID string, topK int) (*domain.EnergyEfficiencyResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, p.ragTimeout)
	defer cancel()

	reqBody, err := json.Marshal(map[string]interface{}{
		"question":      question,
		"interactionId": interactionID,
		"topK":          topK,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ragEndpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http do: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cloud rag endpoint returned status %d", resp.StatusCode)
	}

	var out domain.EnergyEfficiencyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("cloud response failed schema validation: %w", err)
	}
	return &out, nil
}
