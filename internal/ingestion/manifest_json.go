package ingestion

import (
	"encoding/json"

	"github.com/54b3r/energy-assistant/internal/domain"
)

func marshalManifest(m domain.IngestionManifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func unmarshalManifest(data []byte, m *domain.IngestionManifest) error {
	return json.Unmarshal(data, m)
}
