// Package retrieval implements the Retrieval Engine component: semantic
// and hybrid (semantic + lexical) retrieval, weighted rank fusion, and
// an optional LLM-as-judge rerank stage.
package retrieval

import (
	"context"
	"log/slog"
	"sort"

	"github.com/54b3r/energy-assistant/internal/rag"
)

// Mode selects between semantic-only and hybrid retrieval.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeHybrid   Mode = "hybrid"
)

// RerankConfig configures the optional LLM-as-judge rerank stage.
type RerankConfig struct {
	Enabled      bool
	TopN         int
	TimeoutMS    int
	PreviewChars int
	BatchSize    int
}

// Config is the Retrieval Engine's build-time configuration, frozen for
// the lifetime of the engine (spec 4.E).
type Config struct {
	Mode                 Mode
	SemanticK            int
	KeywordK             int
	FinalTopK            int
	FusionAlpha          float64
	AllowGeneralKnowledge bool
	Rerank               RerankConfig
}

// Scored pairs a retrieved document with its final fused/reranked score.
type Scored struct {
	Doc   rag.Document
	Score float64
}

// LexicalSearcher is the capability contract for the Lexical Index.
type LexicalSearcher interface {
	Search(ctx context.Context, query string, keywordK int) ([]rag.Document, error)
	Available(ctx context.Context) bool
}

// Engine implements retrieve(question, topK_hint) -> [(chunk, score)].
type Engine struct {
	cfg       Config
	retriever rag.Retriever
	lexical   LexicalSearcher
	judge     Judge
	log       *slog.Logger

	warnedLexicalUnavailable bool
}

// New constructs a retrieval Engine. lexical may be nil, in which case
// hybrid mode always degrades to semantic. judge may be nil, in which
// case rerank is always skipped regardless of cfg.Rerank.Enabled.
func New(cfg Config, retriever rag.Retriever, lexical LexicalSearcher, judge Judge, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if cfg.FinalTopK <= 0 {
		cfg.FinalTopK = 3
	}
	if cfg.SemanticK <= 0 {
		cfg.SemanticK = cfg.FinalTopK
	}
	if cfg.KeywordK <= 0 {
		cfg.KeywordK = cfg.FinalTopK
	}
	return &Engine{cfg: cfg, retriever: retriever, lexical: lexical, judge: judge, log: log}
}

// Retrieve runs the full retrieve operation. It never returns an error to
// the caller: retrieval failures degrade to an empty result, which is a
// valid outcome per spec 4.E failure semantics.
func (e *Engine) Retrieve(ctx context.Context, question string, topKHint int) []Scored {
	topK := e.cfg.FinalTopK
	if topKHint > 0 {
		topK = topKHint
	}

	semantic, err := e.retriever.Retrieve(ctx, question, e.cfg.SemanticK)
	if err != nil {
		e.log.Warn("retrieval: semantic search failed, returning empty result", "error", err)
		semantic = nil
	}

	var fused []Scored
	if e.cfg.Mode == ModeHybrid && e.lexicalAvailable(ctx) {
		lexical, err := e.lexical.Search(ctx, question, e.cfg.KeywordK)
		if err != nil {
			e.log.Warn("retrieval: lexical search failed, degrading to semantic-only", "error", err)
			fused = semanticOnly(semantic, topK)
		} else {
			fused = fuseWeightedRank(semantic, lexical, e.cfg.FusionAlpha)
		}
	} else {
		if e.cfg.Mode == ModeHybrid && !e.warnedLexicalUnavailable {
			e.log.Warn("retrieval: lexical index unavailable, degrading hybrid mode to semantic-only")
			e.warnedLexicalUnavailable = true
		}
		fused = semanticOnly(semantic, topK)
	}

	if len(fused) > topK {
		fused = fused[:topK]
	}

	if e.cfg.Rerank.Enabled && e.judge != nil && len(fused) > 0 {
		fused = e.rerank(ctx, question, fused)
		if len(fused) > topK {
			fused = fused[:topK]
		}
	}

	return fused
}

func (e *Engine) lexicalAvailable(ctx context.Context) bool {
	return e.lexical != nil && e.lexical.Available(ctx)
}

// semanticOnly takes the first topK of the semantic results, normalized
// to (doc, score) pairs. A zero semantic score is preserved as-is; the
// engine never reinterprets the underlying store's score sign.
func semanticOnly(semantic []rag.Document, topK int) []Scored {
	n := len(semantic)
	if n > topK {
		n = topK
	}
	out := make([]Scored, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Scored{Doc: semantic[i], Score: float64(semantic[i].Score)})
	}
	return out
}

// docKey returns the stable document id used to match a result across
// the semantic and lexical result lists: metadata "sourceId", then
// "source", then "doc_id", then a positional fallback "idx_i".
func docKey(d rag.Document, idx int) string {
	if v, ok := d.Metadata["sourceId"]; ok && v != "" {
		return v
	}
	if d.Source != "" {
		return d.Source
	}
	if v, ok := d.Metadata["doc_id"]; ok && v != "" {
		return v
	}
	return sprintfIdx(idx)
}

func sprintfIdx(idx int) string {
	const digits = "0123456789"
	if idx == 0 {
		return "idx_0"
	}
	var b []byte
	n := idx
	for n > 0 {
		b = append([]byte{digits[n%10]}, b...)
		n /= 10
	}
	return "idx_" + string(b)
}

// fuseWeightedRank implements spec 4.E's Weighted Rank Fusion: each
// result list contributes a normalized score 1/(rank+1); the fused score
// is alpha*sem_norm + (1-alpha)*key_norm, with a missing side
// contributing 0. Ties are broken by insertion order (stable sort); the
// first-seen list (semantic) establishes insertion order for documents
// that appear in both.
func fuseWeightedRank(semantic, lexical []rag.Document, alpha float64) []Scored {
	type entry struct {
		doc      rag.Document
		semNorm  float64
		keyNorm  float64
		order    int
	}
	order := 0
	byKey := make(map[string]*entry)
	var keys []string

	for i, d := range semantic {
		k := docKey(d, i)
		en, ok := byKey[k]
		if !ok {
			en = &entry{doc: d, order: order}
			order++
			byKey[k] = en
			keys = append(keys, k)
		}
		en.semNorm = 1.0 / float64(i+1)
	}
	for i, d := range lexical {
		k := docKey(d, i)
		en, ok := byKey[k]
		if !ok {
			en = &entry{doc: d, order: order}
			order++
			byKey[k] = en
			keys = append(keys, k)
		}
		en.keyNorm = 1.0 / float64(i+1)
	}

	out := make([]Scored, 0, len(keys))
	for _, k := range keys {
		en := byKey[k]
		fusedScore := alpha*en.semNorm + (1-alpha)*en.keyNorm
		out = append(out, Scored{Doc: en.doc, Score: fusedScore})
	}

	// Stable sort descending by score; ties preserve insertion order
	// because sort.SliceStable only reorders elements the Less
	// function actually says are out of order.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
