package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/embedder"
	"github.com/54b3r/energy-assistant/internal/ingestion"
	"github.com/54b3r/energy-assistant/internal/lexicalindex"
	"github.com/54b3r/energy-assistant/internal/rag"
)

// NewIngestCmd constructs the `ingest` command, which rebuilds the Chunk
// Store, Vector Index, and Lexical Index from the seed document
// directory (spec 4.D).
func NewIngestCmd() *cobra.Command {
	var inputDir string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest seed documents into the chunk, vector, and lexical indexes",
		Long: `Ingest scans the seed document directory, hash-diffs it against the
existing manifest, re-chunks changed files, and rewrites the Chunk
Store, Vector Index, and Lexical Index.

Examples:
  energyassistant-cloudrag ingest
  energyassistant-cloudrag ingest --input ./docs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			if inputDir == "" {
				inputDir = getenvDefault("ENERGYASSISTANT_SEED_DIR", "./seed")
			}

			chunksPath := getenvDefault("ENERGYASSISTANT_CHUNKS_PATH", "./data/chunks.jsonl")
			manifestPath := getenvDefault("ENERGYASSISTANT_MANIFEST_PATH", "./data/ingestion_manifest.json")
			pipeline := ingestion.New(chunksPath, manifestPath, nil, nil)

			result, err := pipeline.Ingest(inputDir)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			fmt.Printf("ingest: %d changed, %d deleted, %d unchanged, %d total chunks\n",
				len(result.Changed), len(result.Deleted), len(result.Skipped), len(result.Chunks))

			emb, err := embedder.NewFromEnv()
			if err != nil {
				return fmt.Errorf("ingest: failed to initialise embedder: %w", err)
			}
			embeddingProvider := getenvDefault("EMBEDDING_PROVIDER", getenvDefault("MODEL_PROVIDER", "ollama"))
			dims := embedder.DefaultDimensions(embeddingProvider)

			store, err := openVectorStore(ctx, dims)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := rebuildVectorIndex(ctx, emb, store, result.Chunks); err != nil {
				return fmt.Errorf("ingest: failed to rebuild vector index: %w", err)
			}

			lexicalPath := getenvDefault("ENERGYASSISTANT_LEXICAL_INDEX_PATH", "./data/lexical_index.db")
			lexical, err := lexicalindex.Open(lexicalPath)
			if err != nil {
				return fmt.Errorf("ingest: failed to open lexical index: %w", err)
			}
			defer lexical.Close()

			if err := lexical.Rebuild(ctx, result.Chunks); err != nil {
				return fmt.Errorf("ingest: failed to rebuild lexical index: %w", err)
			}

			fmt.Println("ingest: vector and lexical indexes rebuilt")
			return nil
		},
	}

	cmd.Flags().StringVar(&inputDir, "input", "", "Seed document directory (default: ENERGYASSISTANT_SEED_DIR or ./seed)")

	return cmd
}

// chunkEmbedBatchSize bounds how many chunks are embedded per Embed call,
// keeping individual provider requests a reasonable size.
const chunkEmbedBatchSize = 64

// rebuildVectorIndex embeds chunks in batches and upserts them into store.
func rebuildVectorIndex(ctx context.Context, emb rag.Embedder, store rag.VectorStore, chunks []domain.Chunk) error {
	for start := 0; start < len(chunks); start += chunkEmbedBatchSize {
		end := start + chunkEmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		docs := make([]rag.Document, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
			docs[i] = rag.Document{
				ID:      c.ID,
				Content: c.Text,
				Source:  c.SourcePath,
				Metadata: map[string]string{
					"doc_id": c.DocID,
				},
			}
		}

		embeddings, err := emb.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch starting at %d: %w", start, err)
		}
		if err := store.Upsert(ctx, docs, embeddings); err != nil {
			return fmt.Errorf("upsert batch starting at %d: %w", start, err)
		}
	}
	return nil
}
