package commands

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/54b3r/energy-assistant/internal/embedder"
	"github.com/54b3r/energy-assistant/internal/evalqueue"
	"github.com/54b3r/energy-assistant/internal/feedback"
	"github.com/54b3r/energy-assistant/internal/generation"
	"github.com/54b3r/energy-assistant/internal/lexicalindex"
	"github.com/54b3r/energy-assistant/internal/llm"
	"github.com/54b3r/energy-assistant/internal/provider"
	"github.com/54b3r/energy-assistant/internal/rag"
	"github.com/54b3r/energy-assistant/internal/ragserver"
	"github.com/54b3r/energy-assistant/internal/retrieval"
	"github.com/54b3r/energy-assistant/internal/tracing"
	"github.com/54b3r/energy-assistant/internal/vectorindex"
)

// openVectorStore builds the rag.VectorStore configured by
// VECTOR_STORE_BACKEND (sqlite_vec, the default, or qdrant).
func openVectorStore(ctx context.Context, dims int) (rag.VectorStore, error) {
	switch getenvDefault("VECTOR_STORE_BACKEND", "sqlite_vec") {
	case "qdrant":
		store, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       getenvDefault("QDRANT_HOST", "localhost"),
			Port:       getenvIntDefault("QDRANT_PORT", 6334),
			Collection: getenvDefault("QDRANT_COLLECTION", "energy_efficiency"),
			VectorSize: uint64(dims),
			APIKey:     getenvDefault("QDRANT_API_KEY", ""),
			UseTLS:     getenvBoolDefault("QDRANT_TLS", false),
		})
		if err != nil {
			return nil, fmt.Errorf("serve: failed to open qdrant store: %w", err)
		}
		return store, nil
	default:
		dbPath := getenvDefault("ENERGYASSISTANT_VECTOR_INDEX_PATH", "./data/vector_index.db")
		model := getenvDefault("EMBEDDING_MODEL", "default")
		store, err := vectorindex.Open(dbPath, model, dims)
		if err != nil {
			return nil, fmt.Errorf("serve: failed to open sqlite-vec store: %w", err)
		}
		return store, nil
	}
}

// NewServeCmd constructs the `serve` command, which starts the cloud RAG
// HTTP boundary: answer, feedback sync, and health.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the cloud RAG HTTP server",
		Long: `Start the cloud RAG HTTP server, which answers energy-efficiency
questions over the indexed document corpus.

Examples:
  energyassistant-cloudrag serve
  energyassistant-cloudrag serve --port 9090
  MODEL_PROVIDER=azure energyassistant-cloudrag serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			handler, flush, ok := tracing.Setup()
			if ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Printf("serve: langfuse tracing enabled")
			} else {
				log.Printf("serve: langfuse tracing disabled (LANGFUSE_PUBLIC_KEY not set)")
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			caller := llm.NewModelCaller(chatModel)
			log.Printf("serve: provider initialised successfully")

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("serve: failed to initialise embedder: %w", err)
			}
			embeddingProvider := getenvDefault("EMBEDDING_PROVIDER", getenvDefault("MODEL_PROVIDER", "ollama"))
			dims := embedder.DefaultDimensions(embeddingProvider)

			store, err := openVectorStore(ctx, dims)
			if err != nil {
				return err
			}
			defer store.Close()

			defaultTopK := getenvIntDefault("RETRIEVAL_FINAL_TOP_K", 3)
			retriever, err := rag.NewRetriever(emb, store, defaultTopK)
			if err != nil {
				return fmt.Errorf("serve: failed to construct retriever: %w", err)
			}

			lexicalPath := getenvDefault("ENERGYASSISTANT_LEXICAL_INDEX_PATH", "./data/lexical_index.db")
			lexical, err := lexicalindex.Open(lexicalPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open lexical index: %w", err)
			}
			defer lexical.Close()

			var judge retrieval.Judge
			if getenvBoolDefault("RERANK_ENABLED", false) {
				judge = caller
			}

			retrievalCfg := retrieval.Config{
				Mode:                  retrieval.Mode(getenvDefault("RETRIEVAL_MODE", string(retrieval.ModeSemantic))),
				SemanticK:             getenvIntDefault("RETRIEVAL_SEMANTIC_K", defaultTopK),
				KeywordK:              getenvIntDefault("RETRIEVAL_KEYWORD_K", defaultTopK),
				FinalTopK:             defaultTopK,
				FusionAlpha:           getenvFloatDefault("RETRIEVAL_FUSION_ALPHA", 0.5),
				AllowGeneralKnowledge: getenvBoolDefault("RETRIEVAL_ALLOW_GENERAL_KNOWLEDGE", false),
				Rerank: retrieval.RerankConfig{
					Enabled:      getenvBoolDefault("RERANK_ENABLED", false),
					TopN:         getenvIntDefault("RERANK_TOP_N", defaultTopK),
					TimeoutMS:    getenvIntDefault("RERANK_TIMEOUT_MS", 2000),
					PreviewChars: getenvIntDefault("RERANK_PREVIEW_CHARS", 200),
					BatchSize:    getenvIntDefault("RERANK_BATCH_SIZE", 10),
				},
			}
			engine := retrieval.New(retrievalCfg, retriever, lexical, judge, nil)

			promptTemplatePath := getenvDefault("ENERGYASSISTANT_PROMPT_TEMPLATE_PATH", "prompts/energy_efficiency_system.txt")
			promptTemplate, err := generation.LoadPromptTemplate(promptTemplatePath)
			if err != nil {
				return fmt.Errorf("serve: failed to load prompt template: %w", err)
			}
			generator := generation.New(promptTemplate, retrievalCfg.AllowGeneralKnowledge, caller, nil)

			feedbackDir := getenvDefault("ENERGYASSISTANT_FEEDBACK_DIR", "./user_data/feedback")
			feedbackStore, err := feedback.Open(feedbackDir)
			if err != nil {
				return fmt.Errorf("serve: failed to open feedback store: %w", err)
			}
			defer feedbackStore.Close()

			evalQueueDBPath := getenvDefault("ENERGYASSISTANT_EVAL_QUEUE_DB", "./data/eval_queue.db")
			evalStore, err := evalqueue.Open(evalQueueDBPath)
			if err != nil {
				return fmt.Errorf("serve: failed to open eval queue: %w", err)
			}
			defer evalStore.Close()

			evalProcessor := evalqueue.NewProcessor(evalStore, caller, nil)
			go runEvalProcessorLoop(ctx, evalProcessor)

			pingers := []ragserver.Pinger{
				llm.NewLLMPinger(chatModel, provider.NewHealthCheckConfig(providerCfg.Backend, providerCfg), string(providerCfg.Backend)),
			}
			if storePinger, ok := store.(ragserver.Pinger); ok {
				pingers = append(pingers, storePinger)
			}

			srv, err := ragserver.New(engine, generator, feedbackStore, evalStore, &ragserver.Config{
				Host:    host,
				Port:    port,
				Pingers: pingers,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "0.0.0.0", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8081, "TCP port to listen on")

	return cmd
}

// runEvalProcessorLoop periodically scores newly-enqueued rows until ctx
// is cancelled, matching spec 4.N's out-of-band eval scoring and section
// 5's rule that it MUST NOT block request handlers.
func runEvalProcessorLoop(ctx context.Context, p *evalqueue.Processor) {
	ticker := time.NewTicker(getenvDurationDefault("EVAL_QUEUE_POLL_INTERVAL", 30*time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx, getenvIntDefault("EVAL_QUEUE_BATCH_SIZE", 20)); err != nil {
				log.Printf("serve: eval queue processing failed: %v", err)
			}
		}
	}
}
