// Package evalqueue implements the Eval Queue component: deferred
// LLM-as-judge relevance scoring of processed interactions.
package evalqueue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/energy-assistant/internal/llm"
)

// Store persists eval queue rows, one per interaction.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) an eval queue database at path.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("evalqueue: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS eval_queue (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    interaction_id TEXT NOT NULL UNIQUE,
    question       TEXT NOT NULL,
    answer         TEXT NOT NULL,
    context_json   TEXT NOT NULL DEFAULT '[]',
    created_at     INTEGER NOT NULL,
    processed_at   INTEGER,
    relevance      REAL
);
CREATE INDEX IF NOT EXISTS idx_eval_queue_unprocessed ON eval_queue (processed_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("evalqueue: migrate: %w", err)
	}
	return nil
}

// Enqueue inserts a row for interactionID. A second Enqueue for the same
// interactionID is a no-op (UNIQUE constraint, at-most-one row per
// interaction per spec 3's Eval Queue Row invariant).
func (s *Store) Enqueue(ctx context.Context, interactionID, question, answer string, context []string) error {
	ctxJSON, err := json.Marshal(context)
	if err != nil {
		return fmt.Errorf("evalqueue: marshal context: %w", err)
	}
	const q = `
INSERT INTO eval_queue (interaction_id, question, answer, context_json, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(interaction_id) DO NOTHING`
	_, err = s.db.ExecContext(ctx, q, interactionID, question, answer, string(ctxJSON), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("evalqueue: enqueue: %w", err)
	}
	return nil
}

// Row is a pulled eval queue entry.
type Row struct {
	ID            int64
	InteractionID string
	Question      string
	Answer        string
	Context       []string
}

// PullUnprocessed returns up to limit rows with processed_at IS NULL,
// ordered by id ascending.
func (s *Store) PullUnprocessed(ctx context.Context, limit int) ([]Row, error) {
	const q = `
SELECT id, interaction_id, question, answer, context_json
FROM eval_queue
WHERE processed_at IS NULL
ORDER BY id ASC
LIMIT ?`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("evalqueue: pull: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var ctxJSON string
		if err := rows.Scan(&r.ID, &r.InteractionID, &r.Question, &r.Answer, &ctxJSON); err != nil {
			return nil, fmt.Errorf("evalqueue: pull scan: %w", err)
		}
		_ = json.Unmarshal([]byte(ctxJSON), &r.Context)
		out = append(out, r)
	}
	return out, rows.Err()
}

// MarkProcessed stamps processed_at = now and relevance = score for all
// given ids in a single transaction (one UPDATE per id).
func (s *Store) MarkProcessed(ctx context.Context, scores map[int64]float64) error {
	if len(scores) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("evalqueue: mark processed begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE eval_queue SET processed_at = ?, relevance = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("evalqueue: mark processed prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for id, score := range scores {
		if _, err := stmt.ExecContext(ctx, now, score, id); err != nil {
			return fmt.Errorf("evalqueue: mark processed exec: %w", err)
		}
	}
	return tx.Commit()
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("evalqueue: close: %w", err)
	}
	return nil
}

const judgeSystemPrompt = `You judge the relevance of an answer to a question given supporting context. Respond with only a JSON object: {"relevance": <float between 0 and 1>}.`

// Processor pulls unprocessed rows and scores them via an LLM judge.
type Processor struct {
	store *Store
	judge llm.Caller
	log   *slog.Logger
}

// NewProcessor constructs a Processor.
func NewProcessor(store *Store, judge llm.Caller, log *slog.Logger) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{store: store, judge: judge, log: log}
}

// RunOnce pulls up to limit unprocessed rows and scores each, marking all
// handled ids processed in a single batched update regardless of
// individual scoring success or failure.
func (p *Processor) RunOnce(ctx context.Context, limit int) (int, error) {
	rows, err := p.store.PullUnprocessed(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("evalqueue: run once: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	scores := make(map[int64]float64, len(rows))
	for _, r := range rows {
		score := p.score(ctx, r)
		scores[r.ID] = score
		p.publishObservability(r.InteractionID, score)
	}

	if err := p.store.MarkProcessed(ctx, scores); err != nil {
		return 0, fmt.Errorf("evalqueue: mark processed: %w", err)
	}
	return len(rows), nil
}

// score computes a relevance score in [0,1] for a single row. Any
// failure (LLM call error, unparseable response) yields 0.0; the row is
// still marked processed by the caller.
func (p *Processor) score(ctx context.Context, r Row) float64 {
	contextChunks := r.Context
	if len(contextChunks) > 3 {
		contextChunks = contextChunks[:3]
	}
	userPrompt := fmt.Sprintf("Question: %s\n\nContext:\n%s\n\nAnswer: %s",
		r.Question, strings.Join(contextChunks, "\n---\n"), r.Answer)

	raw, err := p.judge.Call(ctx, judgeSystemPrompt, userPrompt)
	if err != nil {
		p.log.Warn("evalqueue: judge call failed", "interaction_id", r.InteractionID, "error", err)
		return 0.0
	}

	relevance, err := parseRelevance(raw)
	if err != nil {
		p.log.Warn("evalqueue: judge response unparseable", "interaction_id", r.InteractionID, "error", err)
		return 0.0
	}
	return clamp01(relevance)
}

func parseRelevance(raw string) (float64, error) {
	text := strings.TrimSpace(raw)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return 0, fmt.Errorf("no JSON object found")
	}
	var payload struct {
		Relevance float64 `json:"relevance"`
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &payload); err != nil {
		return 0, fmt.Errorf("json parse: %w", err)
	}
	return payload.Relevance, nil
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// publishObservability best-effort publishes the score to an
// observability sink (e.g. tracing spans). Failures are swallowed per
// spec 4.N.
func (p *Processor) publishObservability(interactionID string, score float64) {
	defer func() { _ = recover() }()
	p.log.Debug("evalqueue: scored", "interaction_id", interactionID, "relevance", score)
}
