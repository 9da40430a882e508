// Package config provides YAML-based configuration for the energy
// assistant platform, shared by both the edge and cloud RAG binaries.
// Configuration is loaded with a layered precedence: defaults → YAML
// file → env vars. Environment variables always win, so existing
// deployments are unaffected by adding a config file.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. ENERGYASSISTANT_CONFIG environment variable
//  3. ~/.energyassistant/config.yaml
//  4. ./energyassistant.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure. Field names use
// yaml tags that mirror spec.md section 6's schema: server, llm,
// embeddings, paths, retrieval, rerank, features, cloud_rag.
type Config struct {
	// Server configures the HTTP server (edge or cloud RAG, depending
	// on which binary loads this config).
	Server ServerConfig `yaml:"server"`

	// LLM configures the chat model provider used by the edge's
	// classifier, device-control pipeline, and the cloud RAG answerer.
	LLM LLMConfig `yaml:"llm"`

	// Embeddings configures the embedding provider and vector backend
	// used by the Retrieval Engine.
	Embeddings EmbeddingsConfig `yaml:"embeddings"`

	// Paths configures on-disk locations for seed documents, the
	// vector index, conversation history, and the feedback/eval-queue
	// databases.
	Paths PathsConfig `yaml:"paths"`

	// Retrieval configures the Retrieval Engine's build-time behavior.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Rerank configures the optional LLM-as-judge rerank stage.
	Rerank RerankConfig `yaml:"rerank"`

	// Features toggles optional platform behavior.
	Features FeaturesConfig `yaml:"features"`

	// CloudRAG configures the edge's client to the cloud RAG endpoint.
	CloudRAG CloudRAGConfig `yaml:"cloud_rag"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// LLMConfig holds LLM chat model settings.
type LLMConfig struct {
	// Provider selects the backend: ollama, openai, azure, bedrock, gemini.
	Provider string `yaml:"provider"`

	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`

	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`

	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`

	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`

	// Bedrock holds AWS Bedrock-specific settings.
	Bedrock BedrockConfig `yaml:"bedrock"`

	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// BedrockConfig holds AWS Bedrock provider settings.
type BedrockConfig struct {
	// Region is the AWS region for Bedrock.
	Region string `yaml:"region"`
	// ModelID is the Bedrock model identifier.
	ModelID string `yaml:"model_id"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// EmbeddingsConfig holds embedding provider and vector backend settings
// for the Retrieval Engine.
type EmbeddingsConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// Backend selects the vector store: sqlite_vec or qdrant.
	Backend string `yaml:"backend"`
	// Qdrant holds settings used when Backend is "qdrant".
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// APIKey is the Bearer token for API authentication.
	APIKey string `yaml:"api_key"`
}

// PathsConfig holds on-disk locations for seed data, the vector index,
// and the platform's persistence stores.
type PathsConfig struct {
	// SeedDir is the directory of seed documents ingested into the
	// vector store (spec 4.D).
	SeedDir string `yaml:"seed_dir"`
	// VectorIndexPath is the sqlite-vec database file, used when
	// embeddings.backend is sqlite_vec.
	VectorIndexPath string `yaml:"vector_index_path"`
	// ConversationsDir is the root of per-user conversation history
	// (spec 4.O / internal/history).
	ConversationsDir string `yaml:"conversations_dir"`
	// FeedbackDir holds the positive_feedback.json/negative_feedback.json
	// arrays backing feedback records (spec 4.L / internal/feedback).
	FeedbackDir string `yaml:"feedback_dir"`
	// EvalQueueDBPath is the SQLite database backing the eval queue
	// (spec 4.N / internal/evalqueue).
	EvalQueueDBPath string `yaml:"eval_queue_db_path"`
	// DigestTrackingDir holds one {user_hash}_digest_log.json file per
	// user tracking whether they've seen today's daily digest (spec
	// 4.P / internal/digest).
	DigestTrackingDir string `yaml:"digest_tracking_dir"`
	// FeedbackSyncCheckpointPath tracks the feedback sync job's
	// high-water mark (spec 4.M / internal/feedbacksync).
	FeedbackSyncCheckpointPath string `yaml:"feedback_sync_checkpoint_path"`
	// PromptTemplatePath is the system prompt template for the
	// Generation & Validation component (spec 4.F), shared by the
	// cloud RAG answerer and the edge's local-fallback generator.
	PromptTemplatePath string `yaml:"prompt_template_path"`
	// IntegratorBaseURL is the base URL of the smart-home integrator
	// HTTP API the Device-Control Pipeline calls (spec 4.J). The
	// integrator itself is an external collaborator, out of scope.
	IntegratorBaseURL string `yaml:"integrator_base_url"`
}

// RetrievalConfig holds the Retrieval Engine's build-time configuration
// (spec 4.E), frozen for the lifetime of the engine.
type RetrievalConfig struct {
	// Mode selects semantic-only or hybrid (semantic + lexical) retrieval.
	Mode string `yaml:"mode"`
	// SemanticK is the number of candidates pulled from the vector store.
	SemanticK int `yaml:"semantic_k"`
	// KeywordK is the number of candidates pulled from the lexical index.
	KeywordK int `yaml:"keyword_k"`
	// FinalTopK caps the number of documents returned after fusion/rerank.
	FinalTopK int `yaml:"final_top_k"`
	// FusionAlpha weights semantic vs. lexical scores during rank fusion.
	FusionAlpha float64 `yaml:"fusion_alpha"`
	// AllowGeneralKnowledge permits the answerer to fall back to general
	// knowledge when retrieval returns no usable context.
	AllowGeneralKnowledge bool `yaml:"allow_general_knowledge"`
}

// RerankConfig configures the optional LLM-as-judge rerank stage.
type RerankConfig struct {
	Enabled      bool `yaml:"enabled"`
	TopN         int  `yaml:"top_n"`
	TimeoutMS    int  `yaml:"timeout_ms"`
	PreviewChars int  `yaml:"preview_chars"`
	BatchSize    int  `yaml:"batch_size"`
}

// FeaturesConfig toggles optional platform behavior.
type FeaturesConfig struct {
	// RAGEnabled gates whether the Energy Efficiency pipeline calls out
	// to the cloud RAG endpoint at all; when false it answers from the
	// chat model directly with no retrieval.
	RAGEnabled bool `yaml:"rag_enabled"`
	// DeviceControlEnabled gates the Device Control pipeline's tool-
	// calling loop.
	DeviceControlEnabled bool `yaml:"device_control_enabled"`
}

// CloudRAGConfig configures the edge's HTTP client to the cloud RAG
// endpoint (spec 4.G).
type CloudRAGConfig struct {
	// Endpoint is the base URL of the cloud RAG service.
	Endpoint string `yaml:"endpoint"`
	// TimeoutMS bounds a single /api/rag/answer call.
	TimeoutMS int `yaml:"timeout_ms"`
	// APIKey is exported as CLOUD_RAG_API_KEY. The edge's cloud RAG and
	// feedback-sync HTTP clients do not send it with their requests.
	APIKey string `yaml:"api_key"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
// Env var names intentionally stay the providers' native names (e.g.
// OPENAI_API_KEY, QDRANT_HOST) rather than nesting under the YAML
// structure — internal/provider and internal/embedder read these
// directly, independent of how the YAML groups them.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.LLM.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.LLM.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.LLM.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.LLM.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.LLM.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.LLM.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.LLM.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.LLM.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.LLM.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.LLM.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.LLM.Azure.APIVersion }},
	{"AWS_REGION", func(c *Config) string { return c.LLM.Bedrock.Region }},
	{"BEDROCK_MODEL_ID", func(c *Config) string { return c.LLM.Bedrock.ModelID }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.LLM.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.LLM.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embeddings.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embeddings.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embeddings.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embeddings.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embeddings.Endpoint }},
	{"VECTOR_STORE_BACKEND", func(c *Config) string { return c.Embeddings.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.Embeddings.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Embeddings.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.Embeddings.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Embeddings.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Embeddings.Qdrant.TLS) }},
	{"ENERGYASSISTANT_SEED_DIR", func(c *Config) string { return c.Paths.SeedDir }},
	{"ENERGYASSISTANT_VECTOR_INDEX_PATH", func(c *Config) string { return c.Paths.VectorIndexPath }},
	{"ENERGYASSISTANT_CONVERSATIONS_DIR", func(c *Config) string { return c.Paths.ConversationsDir }},
	{"ENERGYASSISTANT_FEEDBACK_DIR", func(c *Config) string { return c.Paths.FeedbackDir }},
	{"ENERGYASSISTANT_EVAL_QUEUE_DB", func(c *Config) string { return c.Paths.EvalQueueDBPath }},
	{"ENERGYASSISTANT_DIGEST_TRACKING_DIR", func(c *Config) string { return c.Paths.DigestTrackingDir }},
	{"ENERGYASSISTANT_FEEDBACK_SYNC_CHECKPOINT", func(c *Config) string { return c.Paths.FeedbackSyncCheckpointPath }},
	{"ENERGYASSISTANT_PROMPT_TEMPLATE_PATH", func(c *Config) string { return c.Paths.PromptTemplatePath }},
	{"INTEGRATOR_BASE_URL", func(c *Config) string { return c.Paths.IntegratorBaseURL }},
	{"RETRIEVAL_MODE", func(c *Config) string { return c.Retrieval.Mode }},
	{"RETRIEVAL_SEMANTIC_K", func(c *Config) string { return intStr(c.Retrieval.SemanticK) }},
	{"RETRIEVAL_KEYWORD_K", func(c *Config) string { return intStr(c.Retrieval.KeywordK) }},
	{"RETRIEVAL_FINAL_TOP_K", func(c *Config) string { return intStr(c.Retrieval.FinalTopK) }},
	{"RETRIEVAL_FUSION_ALPHA", func(c *Config) string { return float32Str(float32(c.Retrieval.FusionAlpha)) }},
	{"RETRIEVAL_ALLOW_GENERAL_KNOWLEDGE", func(c *Config) string { return boolStr(c.Retrieval.AllowGeneralKnowledge) }},
	{"RERANK_ENABLED", func(c *Config) string { return boolStr(c.Rerank.Enabled) }},
	{"RERANK_TOP_N", func(c *Config) string { return intStr(c.Rerank.TopN) }},
	{"RERANK_TIMEOUT_MS", func(c *Config) string { return intStr(c.Rerank.TimeoutMS) }},
	{"RERANK_PREVIEW_CHARS", func(c *Config) string { return intStr(c.Rerank.PreviewChars) }},
	{"RERANK_BATCH_SIZE", func(c *Config) string { return intStr(c.Rerank.BatchSize) }},
	{"FEATURE_RAG_ENABLED", func(c *Config) string { return boolStr(c.Features.RAGEnabled) }},
	{"FEATURE_DEVICE_CONTROL_ENABLED", func(c *Config) string { return boolStr(c.Features.DeviceControlEnabled) }},
	{"CLOUD_RAG_ENDPOINT", func(c *Config) string { return c.CloudRAG.Endpoint }},
	{"CLOUD_RAG_TIMEOUT_MS", func(c *Config) string { return intStr(c.CloudRAG.TimeoutMS) }},
	{"CLOUD_RAG_API_KEY", func(c *Config) string { return c.CloudRAG.APIKey }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("ENERGYASSISTANT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".energyassistant", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("energyassistant.yaml"); err == nil {
		return "energyassistant.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
