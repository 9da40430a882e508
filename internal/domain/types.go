// Package domain holds the data-model types shared across the cloud and
// edge binaries: chunks, manifests, conversation messages, feedback
// items, eval queue rows, digest state, the response envelope, and the
// sync checkpoint.
package domain

import "time"

// Chunk is an immutable, normalized sentence-window text unit produced by
// the ingestion pipeline. (doc_id, chunk_index) uniquely identifies a
// chunk; ID is the canonical key used for cross-system fusion.
type Chunk struct {
	ID          string    `json:"id"`
	DocID       string    `json:"doc_id"`
	ChunkIndex  int       `json:"chunk_index"`
	SourcePath  string    `json:"source_path"`
	SourceType  string    `json:"source_type"`
	Page        *int      `json:"page,omitempty"`
	HeadingPath []string  `json:"heading_path,omitempty"`
	Text        string    `json:"text"`
	CreatedAt   time.Time `json:"created_at"`
	Hash        string    `json:"hash"`
}

// FileManifestEntry is the per-file bookkeeping record inside an
// IngestionManifest.
type FileManifestEntry struct {
	DocID       string    `json:"doc_id"`
	ContentHash string    `json:"content_hash"`
	ChunksCount int       `json:"chunks_count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SplitterConfig records the sentence-window chunking parameters a
// manifest was built with, used to detect when a config change requires
// a full re-chunk.
type SplitterConfig struct {
	SentWindowSize    int `json:"sent_window_size"`
	SentWindowOverlap int `json:"sent_window_overlap"`
}

// IngestionManifest is the single JSON object recording ingestion state,
// used to drive incremental rebuilds of the Chunk Store.
type IngestionManifest struct {
	SchemaVersion int                          `json:"schema_version"`
	Splitter      SplitterConfig               `json:"splitter"`
	ConfigFingerprint string                   `json:"config_fingerprint"`
	Files         map[string]FileManifestEntry `json:"files"`
}

// VectorIndexManifest carries the embedding model and dimension an index
// was built with, plus the splitter config used at build time. Loading an
// index whose recorded dimension does not match the active embedder's
// dimension is a fatal configuration error.
type VectorIndexManifest struct {
	Model     string         `json:"model"`
	Dimension int            `json:"dimension"`
	Splitter  SplitterConfig `json:"splitter"`
}

// Role is the speaker of a ConversationMessage.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ConversationMessage is one ordered, append-only turn in a per-user
// conversation file.
type ConversationMessage struct {
	InteractionID string    `json:"interaction_id"`
	Role          Role      `json:"role"`
	Content       string    `json:"content"`
	Timestamp     time.Time `json:"timestamp"`
}

// FeedbackLabel is the polarity of a FeedbackItem.
type FeedbackLabel string

const (
	FeedbackPositive FeedbackLabel = "positive"
	FeedbackNegative FeedbackLabel = "negative"
)

// FeedbackScore maps a FeedbackLabel to its numeric score.
func FeedbackScore(label FeedbackLabel) int {
	if label == FeedbackPositive {
		return 1
	}
	return -1
}

// FeedbackItem is a single idempotent feedback record. FeedbackID is
// globally unique; re-ingestion of the same ID is a no-op.
type FeedbackItem struct {
	FeedbackID    string        `json:"feedback_id"`
	InteractionID string        `json:"interactionId"`
	Label         FeedbackLabel `json:"label"`
	Score         int           `json:"score"`
	Comment       string        `json:"comment,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	SyncedAt      *time.Time    `json:"synced_at,omitempty"`
}

// EvalQueueRow is one deferred LLM-as-judge scoring task. At most one row
// exists per InteractionID; processed rows are never re-processed.
type EvalQueueRow struct {
	ID            int64      `json:"id"`
	InteractionID string     `json:"interaction_id"`
	Question      string     `json:"question"`
	Answer        string     `json:"answer"`
	ContextJSON   string     `json:"context_json"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	Relevance     *float64   `json:"relevance,omitempty"`
}

// DigestState is the per-user daily-digest tracking record.
type DigestState struct {
	UserHash       string    `json:"user_hash"`
	LastDigestDate string    `json:"last_digest_date"` // YYYY-MM-DD, server local time
	LastUpdated    time.Time `json:"last_updated"`
}

// EnergyEfficiencyResponse is the strict schema every cloud/efficiency
// answer must validate against before emission.
type EnergyEfficiencyResponse struct {
	Message       string        `json:"message"`
	InteractionID string        `json:"interactionId"`
	Type          string        `json:"type"`
	Content       []ContentItem `json:"content"`
}

// ContentItem is one element of an EnergyEfficiencyResponse's Content
// list, e.g. a cited source chunk.
type ContentItem struct {
	SourceID string  `json:"sourceId,omitempty"`
	Chunk    string  `json:"chunk,omitempty"`
	Score    float64 `json:"score,omitempty"`
}

// Validate reports whether r satisfies the EnergyEfficiencyResponse
// schema: non-empty Message, non-empty InteractionID, Type=="text".
func (r *EnergyEfficiencyResponse) Validate() error {
	if r.Message == "" {
		return errMissingField("message")
	}
	if r.InteractionID == "" {
		return errMissingField("interactionId")
	}
	if r.Type != "text" {
		return errInvalidType(r.Type)
	}
	if r.Content == nil {
		r.Content = []ContentItem{}
	}
	return nil
}

// SyncCheckpoint is the high-water mark of synchronized feedback.
// LastSyncedAt is nil before the first successful sync.
type SyncCheckpoint struct {
	LastSyncedAt *time.Time `json:"last_synced_at"`
}

// ErrorResponse is the standardized error envelope returned by both HTTP
// boundaries on failure. InteractionID (when known) is retained so
// clients can correlate traces.
type ErrorResponse struct {
	Message       string `json:"message"`
	Type          string `json:"type"`
	Detail        string `json:"detail,omitempty"`
	InteractionID string `json:"interactionId,omitempty"`
}

func errMissingField(name string) error {
	return &validationError{msg: "missing required field: " + name}
}

func errInvalidType(got string) error {
	return &validationError{msg: "type must be \"text\", got " + got}
}

type validationError struct{ msg string }

func (e *validationError) Error() string { return e.msg }
