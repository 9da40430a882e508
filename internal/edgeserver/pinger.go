package edgeserver

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// CloudRAGPinger probes the cloud RAG service's GET /health endpoint. It
// satisfies the Pinger interface and is wired into readiness checks the
// same way the teacher wires LLMPinger/QdrantPinger (internal/server/pingers.go).
type CloudRAGPinger struct {
	endpoint string
	client   *http.Client
}

// NewCloudRAGPinger constructs a CloudRAGPinger for the given cloud RAG
// base URL (e.g. "https://rag.example.com").
func NewCloudRAGPinger(endpoint string) *CloudRAGPinger {
	return &CloudRAGPinger{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Name returns the dependency label used in readiness responses.
func (p *CloudRAGPinger) Name() string { return "cloud_rag" }

// Ping calls the cloud RAG service's health endpoint.
func (p *CloudRAGPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("cloud_rag: build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("cloud_rag: health check failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("cloud_rag: health check returned HTTP %d", resp.StatusCode)
	}
	return nil
}
