// Package lexicalindex implements the Lexical Index component: a
// BM25-style keyword retriever built from the Chunk Store, backed by
// SQLite FTS5's native bm25() ranking function. A legacy fallback path
// builds the same index from an in-memory document list when the
// canonical chunks JSONL is absent (spec 4.C).
package lexicalindex

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/54b3r/energy-assistant/internal/domain"
	"github.com/54b3r/energy-assistant/internal/rag"
)

// Store is a keyword retriever backed by an FTS5 virtual table. The
// external "chunks" table holds canonical rows; chunks_fts is a
// contentless-adjacent FTS5 index kept in sync via triggers, mirroring
// the pattern of a combined content+index table pair.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) an FTS5-backed lexical index at
// dbPath.
func Open(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("lexicalindex: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("lexicalindex: open %s: %w", dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("lexicalindex: ping %s: %w", dbPath, err)
	}

	const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	content     TEXT NOT NULL,
	source      TEXT,
	doc_id      TEXT
);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	content,
	content='chunks',
	content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS chunks_ai AFTER INSERT ON chunks BEGIN
	INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_ad AFTER DELETE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES('delete', old.rowid, old.content);
END;

CREATE TRIGGER IF NOT EXISTS chunks_au AFTER UPDATE ON chunks BEGIN
	INSERT INTO chunks_fts(chunks_fts, rowid, content) VALUES('delete', old.rowid, old.content);
	INSERT INTO chunks_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("lexicalindex: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Rebuild replaces the index contents with chunks, the preferred path
// (built from the Chunk Store).
func (s *Store) Rebuild(ctx context.Context, chunks []domain.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("lexicalindex: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks`); err != nil {
		return fmt.Errorf("lexicalindex: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, content, source, doc_id) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("lexicalindex: prepare insert: %w", err)
	}
	defer stmt.Close()
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, c.Text, c.SourcePath, c.DocID); err != nil {
			return fmt.Errorf("lexicalindex: insert chunk %s: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// RebuildFromDocuments is the legacy fallback path: builds the same
// index from an in-memory document list (e.g. the vector store's
// internal document map) when the canonical chunks JSONL is absent.
func (s *Store) RebuildFromDocuments(ctx context.Context, docs []rag.Document) error {
	chunks := make([]domain.Chunk, 0, len(docs))
	for _, d := range docs {
		chunks = append(chunks, domain.Chunk{ID: d.ID, Text: d.Content, SourcePath: d.Source})
	}
	return s.Rebuild(ctx, chunks)
}

// Search returns the top-keywordK documents matching query, ranked by
// FTS5's bm25() function (lower is more relevant; we negate for a
// conventional higher-is-better score).
func (s *Store) Search(ctx context.Context, query string, keywordK int) ([]rag.Document, error) {
	if keywordK <= 0 {
		keywordK = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.content, c.source, bm25(chunks_fts) AS rank
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY rank ASC
		LIMIT ?`, escapeFTSQuery(query), keywordK)
	if err != nil {
		return nil, fmt.Errorf("lexicalindex: search: %w", err)
	}
	defer rows.Close()

	var docs []rag.Document
	for rows.Next() {
		var d rag.Document
		var rank float64
		if err := rows.Scan(&d.ID, &d.Content, &d.Source, &rank); err != nil {
			return nil, fmt.Errorf("lexicalindex: scan: %w", err)
		}
		d.Score = float32(-rank)
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Available reports whether the index has at least one indexed chunk.
// The Retrieval Engine uses this to decide whether to degrade hybrid
// mode to semantic-only.
func (s *Store) Available(ctx context.Context) bool {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return false
	}
	return count > 0
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// escapeFTSQuery wraps each whitespace-separated term of the raw user
// query in double quotes and joins them with OR, so FTS5 matches any term
// (ranked by bm25) rather than parsing user input as FTS5 query-syntax
// operators.
func escapeFTSQuery(q string) string {
	terms := strings.Fields(q)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " OR ")
}
