// Package vectorindex implements the Vector Index component: a
// dense nearest-neighbor store over chunk embeddings. SqliteVecStore is
// the FAISS-equivalent on-disk backend, built on sqlite-vec's vec0
// virtual table; QdrantStore (kept from the teacher, internal/rag) is
// the alternate pluggable backend behind the same rag.VectorStore
// interface.
package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/54b3r/energy-assistant/internal/rag"
)

func init() {
	sqlite_vec.Auto()
}

// Manifest is the on-disk sidecar recording the embedding model and
// dimension a SqliteVecStore was built with. Loading with a mismatched
// dimension is a fatal configuration error (spec 4.B).
type Manifest struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// ErrDimensionMismatch is returned by Open when the requested dimension
// does not match the manifest recorded at build time.
type ErrDimensionMismatch struct {
	Recorded int
	Current  int
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vectorindex: dimension mismatch: index built with dimension %d, embedder reports %d", e.Recorded, e.Current)
}

// SqliteVecStore implements rag.VectorStore on top of a sqlite-vec vec0
// virtual table plus a companion documents table for content/metadata.
type SqliteVecStore struct {
	db        *sql.DB
	dbPath    string
	manifestPath string
	dimension int
}

// Open opens (creating if absent) a sqlite-vec backed vector index at
// dbPath, sized for the given embedding model/dimension. If a manifest
// already exists and its dimension differs from dimension, Open fails
// fast with *ErrDimensionMismatch before any query can be served.
func Open(dbPath, model string, dimension int) (*SqliteVecStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("vectorindex: mkdir: %w", err)
	}
	manifestPath := dbPath + ".manifest.json"

	if data, err := os.ReadFile(manifestPath); err == nil {
		var m Manifest
		if jsonErr := json.Unmarshal(data, &m); jsonErr == nil {
			if m.Dimension != dimension {
				return nil, &ErrDimensionMismatch{Recorded: m.Dimension, Current: dimension}
			}
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: ping %s: %w", dbPath, err)
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS vec_documents (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	source      TEXT,
	metadata    TEXT,
	score_hint  REAL DEFAULT 0
);

CREATE VIRTUAL TABLE IF NOT EXISTS vec_chunks USING vec0(
	doc_rowid INTEGER PRIMARY KEY,
	embedding float[%d]
);
`, dimension)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: create schema: %w", err)
	}

	m := Manifest{Model: model, Dimension: dimension}
	data, _ := json.MarshalIndent(m, "", "  ")
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		db.Close()
		return nil, fmt.Errorf("vectorindex: write manifest: %w", err)
	}

	return &SqliteVecStore{db: db, dbPath: dbPath, manifestPath: manifestPath, dimension: dimension}, nil
}

// Upsert stores docs and their embeddings. The embeddings slice must be
// parallel to docs.
func (s *SqliteVecStore) Upsert(ctx context.Context, docs []rag.Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("vectorindex: docs/embeddings length mismatch: %d vs %d", len(docs), len(embeddings))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorindex: begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, d := range docs {
		metaJSON, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("vectorindex: marshal metadata for %s: %w", d.ID, err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO vec_documents (id, content, source, metadata, score_hint) VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET content=excluded.content, source=excluded.source, metadata=excluded.metadata`,
			d.ID, d.Content, d.Source, string(metaJSON), d.Score)
		if err != nil {
			return fmt.Errorf("vectorindex: upsert document %s: %w", d.ID, err)
		}
		rowID, err := res.LastInsertId()
		if err != nil || rowID == 0 {
			// ON CONFLICT UPDATE path: LastInsertId is unreliable, look the
			// rowid up explicitly.
			if rerr := tx.QueryRowContext(ctx, `SELECT rowid FROM vec_documents WHERE id = ?`, d.ID).Scan(&rowID); rerr != nil {
				return fmt.Errorf("vectorindex: resolve rowid for %s: %w", d.ID, rerr)
			}
		}

		vecJSON, err := json.Marshal(embeddings[i])
		if err != nil {
			return fmt.Errorf("vectorindex: marshal embedding for %s: %w", d.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO vec_chunks (doc_rowid, embedding) VALUES (?, ?)
			 ON CONFLICT(doc_rowid) DO UPDATE SET embedding=excluded.embedding`,
			rowID, string(vecJSON)); err != nil {
			return fmt.Errorf("vectorindex: upsert embedding for %s: %w", d.ID, err)
		}
	}
	return tx.Commit()
}

// Search performs an ANN search over vec_chunks and returns the top-k
// documents ordered by ascending distance (lowest distance first).
func (s *SqliteVecStore) Search(ctx context.Context, queryEmbedding []float32, topK int) ([]rag.Document, error) {
	vecJSON, err := json.Marshal(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: marshal query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.content, d.source, d.metadata, v.distance
		FROM vec_chunks v
		JOIN vec_documents d ON d.rowid = v.doc_rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance ASC`, string(vecJSON), topK)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: knn query: %w", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var d rag.Document
		var metaJSON string
		var distance float64
		if err := rows.Scan(&d.ID, &d.Content, &d.Source, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("vectorindex: scan row: %w", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &d.Metadata)
		d.Score = float32(distance)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Delete removes documents (and their embeddings, via cascading rowid
// lookup) by id.
func (s *SqliteVecStore) Delete(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorindex: begin tx: %w", err)
	}
	defer tx.Rollback()
	for _, id := range ids {
		var rowID int64
		err := tx.QueryRowContext(ctx, `SELECT rowid FROM vec_documents WHERE id = ?`, id).Scan(&rowID)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return fmt.Errorf("vectorindex: resolve rowid for delete %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_chunks WHERE doc_rowid = ?`, rowID); err != nil {
			return fmt.Errorf("vectorindex: delete embedding %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM vec_documents WHERE id = ?`, id); err != nil {
			return fmt.Errorf("vectorindex: delete document %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Close releases the underlying database handle.
func (s *SqliteVecStore) Close() error {
	return s.db.Close()
}

// Ping verifies the underlying database handle is reachable. It satisfies
// the Pinger interface used by the cloud RAG server's GET /health.
func (s *SqliteVecStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Name identifies this dependency in readiness responses.
func (s *SqliteVecStore) Name() string { return "vector_index" }

var _ rag.VectorStore = (*SqliteVecStore)(nil)
