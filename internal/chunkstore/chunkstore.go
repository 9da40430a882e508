// Package chunkstore implements the Chunk Store component: a
// stream-oriented JSONL file of canonical text chunks, rewritten
// atomically on each ingestion run and read tolerantly (malformed or
// text-less lines are skipped with a warning, never an error).
package chunkstore

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/54b3r/energy-assistant/internal/domain"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeText collapses internal whitespace to single spaces and trims
// the result, matching the Chunk invariant text == normalize(text).
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// HashText returns the hex-encoded SHA-256 of text, matching the Chunk
// invariant hash == SHA256(text).
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// NormalizeDocID derives the canonical doc_id from a filename stem:
// lowercase, any run of non [a-z0-9] characters collapsed to a single
// underscore, leading/trailing underscores trimmed.
func NormalizeDocID(stem string) string {
	lower := strings.ToLower(stem)
	var b strings.Builder
	lastWasSep := false
	for _, r := range lower {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			lastWasSep = false
			continue
		}
		if !lastWasSep {
			b.WriteByte('_')
			lastWasSep = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// ChunkID returns the stable, canonical chunk id doc_id#chunk_index.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s#%d", docID, index)
}

// Store reads and rewrites the canonical chunks JSONL file at Path.
type Store struct {
	Path string
	log  *slog.Logger
}

// New constructs a Store bound to path.
func New(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{Path: path, log: log}
}

// Load streams the JSONL file line by line, skipping malformed or
// text-less lines with a warning rather than failing. A missing file
// returns an empty slice, not an error.
func (s *Store) Load() ([]domain.Chunk, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return []domain.Chunk{}, nil
		}
		return nil, fmt.Errorf("chunkstore: open %s: %w", s.Path, err)
	}
	defer f.Close()

	var chunks []domain.Chunk
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var c domain.Chunk
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			s.log.Warn("chunkstore: skipping malformed line", "line", lineNo, "error", err)
			continue
		}
		if strings.TrimSpace(c.Text) == "" {
			s.log.Warn("chunkstore: skipping text-less line", "line", lineNo, "id", c.ID)
			continue
		}
		chunks = append(chunks, c)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("chunkstore: scan %s: %w", s.Path, err)
	}
	return chunks, nil
}

// Write rewrites the JSONL file atomically: chunks are serialized to a
// temp file in the same directory, then renamed over Path.
func (s *Store) Write(chunks []domain.Chunk) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("chunkstore: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".chunks-*.jsonl.tmp")
	if err != nil {
		return fmt.Errorf("chunkstore: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		tmp.Close()
		if !success {
			os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return fmt.Errorf("chunkstore: encode chunk %s: %w", c.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("chunkstore: flush: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("chunkstore: sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("chunkstore: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("chunkstore: rename into place: %w", err)
	}
	success = true
	return nil
}
