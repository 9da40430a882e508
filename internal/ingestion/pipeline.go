// Package ingestion implements the Ingestion Pipeline component:
// document loading, sentence-window chunking, and an idempotent,
// manifest-driven incremental rebuild of the Chunk Store plus the
// downstream vector and lexical indexes.
package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/54b3r/energy-assistant/internal/chunkstore"
	"github.com/54b3r/energy-assistant/internal/domain"
)

// supportedExtensions are the file extensions enumerated during a scan.
// Non-recursive: only immediate children of the input directory are
// considered.
var supportedExtensions = map[string]string{
	".pdf": "pdf",
	".txt": "txt",
	".md":  "md",
}

// sentenceSplitRe splits on sentence-ending punctuation followed by
// whitespace, matching spec 4.D step 6: `(?<=[.!?])\s+`. Go's regexp
// (RE2) has no lookbehind, so this pattern also matches the punctuation
// mark; splitSentences uses it to find boundaries and keeps the
// punctuation with the preceding sentence.
var sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)

// Config holds the sentence-window chunking parameters (spec 4.D step 7).
type Config struct {
	// SentWindowSize is the number of sentences per chunk. Defaults to
	// 10 if zero.
	SentWindowSize int
	// SentWindowOverlap is the number of sentences overlapping between
	// consecutive windows. Defaults to 2 when the Config is nil or the
	// value is negative; an explicit zero means no overlap.
	SentWindowOverlap int
}

func (c *Config) withDefaults() Config {
	out := Config{SentWindowSize: 10, SentWindowOverlap: 2}
	if c != nil {
		if c.SentWindowSize > 0 {
			out.SentWindowSize = c.SentWindowSize
		}
		if c.SentWindowOverlap >= 0 {
			out.SentWindowOverlap = c.SentWindowOverlap
		}
	}
	return out
}

// ConfigFingerprint returns the SHA-256 hex digest of the splitter
// config, used to detect when a config change requires a full re-chunk.
func (c Config) ConfigFingerprint() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("sent_window_size=%d;sent_window_overlap=%d", c.SentWindowSize, c.SentWindowOverlap)))
	return hex.EncodeToString(sum[:])
}

// Pipeline runs the ingest(input_dir) -> chunks.jsonl, manifest.json
// operation.
type Pipeline struct {
	cfg         Config
	chunkStore  *chunkstore.Store
	manifestPath string
	log         *slog.Logger
}

// New constructs a Pipeline writing to chunksPath/manifestPath.
func New(chunksPath, manifestPath string, cfg *Config, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:          cfg.withDefaults(),
		chunkStore:   chunkstore.New(chunksPath, log),
		manifestPath: manifestPath,
		log:          log,
	}
}

// LoadManifest reads the current manifest, returning an empty manifest
// (not an error) if none exists yet.
func (p *Pipeline) LoadManifest() (domain.IngestionManifest, error) {
	data, err := os.ReadFile(p.manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.IngestionManifest{SchemaVersion: 1, Files: map[string]domain.FileManifestEntry{}}, nil
		}
		return domain.IngestionManifest{}, fmt.Errorf("ingestion: read manifest: %w", err)
	}
	var m domain.IngestionManifest
	if err := unmarshalManifest(data, &m); err != nil {
		return domain.IngestionManifest{}, fmt.Errorf("ingestion: parse manifest: %w", err)
	}
	if m.Files == nil {
		m.Files = map[string]domain.FileManifestEntry{}
	}
	return m, nil
}

// Result summarizes one Ingest run.
type Result struct {
	Changed []string
	Deleted []string
	Skipped []string
	Chunks  []domain.Chunk
}

// Ingest runs the full ingest(input_dir) algorithm from spec 4.D:
// enumerate, hash-diff against the manifest, re-chunk changed files,
// preserve unchanged ones, remove deleted entries, and rewrite both the
// Chunk Store and the manifest.
func (p *Pipeline) Ingest(inputDir string) (Result, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return Result{}, fmt.Errorf("ingestion: read dir %s: %w", inputDir, err)
	}

	manifest, err := p.LoadManifest()
	if err != nil {
		return Result{}, err
	}
	fingerprint := p.cfg.ConfigFingerprint()
	configChanged := manifest.ConfigFingerprint != "" && manifest.ConfigFingerprint != fingerprint

	existingChunks, err := p.chunkStore.Load()
	if err != nil {
		return Result{}, err
	}
	bySource := make(map[string][]domain.Chunk)
	for _, c := range existingChunks {
		bySource[c.SourcePath] = append(bySource[c.SourcePath], c)
	}

	onDisk := map[string]string{} // relative path -> source type
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		sourceType, ok := supportedExtensions[ext]
		if !ok {
			continue
		}
		onDisk[e.Name()] = sourceType
	}

	var result Result
	newManifestFiles := map[string]domain.FileManifestEntry{}
	var allChunks []domain.Chunk

	relPaths := make([]string, 0, len(onDisk))
	for rel := range onDisk {
		relPaths = append(relPaths, rel)
	}
	sort.Strings(relPaths)

	for _, rel := range relPaths {
		sourceType := onDisk[rel]
		fullPath := filepath.Join(inputDir, rel)
		contentHash, err := hashFile(fullPath)
		if err != nil {
			p.log.Warn("ingestion: failed to hash file, skipping", "path", fullPath, "error", err)
			result.Skipped = append(result.Skipped, rel)
			// Preserve any prior entry/chunks so a transient read error
			// does not silently delete existing data.
			if prev, ok := manifest.Files[rel]; ok {
				newManifestFiles[rel] = prev
				allChunks = append(allChunks, preservedFor(rel, bySource, prev.UpdatedAt)...)
			}
			continue
		}

		prev, existed := manifest.Files[rel]
		changed := configChanged || !existed || prev.ContentHash != contentHash

		if !changed {
			preserved := preservedChunksMatching(rel, fullPath, bySource)
			allChunks = append(allChunks, preserved...)
			newManifestFiles[rel] = prev
			continue
		}

		docID := chunkstore.NormalizeDocID(strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel)))
		chunks, err := p.loadAndChunk(fullPath, rel, sourceType, docID)
		if err != nil {
			p.log.Warn("ingestion: loader failed, skipping file", "path", fullPath, "error", err)
			result.Skipped = append(result.Skipped, rel)
			continue
		}

		allChunks = append(allChunks, chunks...)
		newManifestFiles[rel] = domain.FileManifestEntry{
			DocID:       docID,
			ContentHash: contentHash,
			ChunksCount: len(chunks),
			UpdatedAt:   time.Now(),
		}
		result.Changed = append(result.Changed, rel)
	}

	for rel := range manifest.Files {
		if _, stillPresent := onDisk[rel]; !stillPresent {
			result.Deleted = append(result.Deleted, rel)
		}
	}
	sort.Strings(result.Deleted)

	if err := p.chunkStore.Write(allChunks); err != nil {
		return Result{}, err
	}

	newManifest := domain.IngestionManifest{
		SchemaVersion:     1,
		Splitter:          domain.SplitterConfig{SentWindowSize: p.cfg.SentWindowSize, SentWindowOverlap: p.cfg.SentWindowOverlap},
		ConfigFingerprint: fingerprint,
		Files:             newManifestFiles,
	}
	if err := p.writeManifest(newManifest); err != nil {
		return Result{}, err
	}

	result.Chunks = allChunks
	return result, nil
}

// preservedChunksMatching returns chunks from bySource whose
// source_path matches rel, recognizing both the absolute and the
// project-relative form (spec 4.D tie-break rule).
func preservedChunksMatching(rel, fullPath string, bySource map[string][]domain.Chunk) []domain.Chunk {
	if chunks, ok := bySource[rel]; ok {
		return chunks
	}
	if chunks, ok := bySource[fullPath]; ok {
		return chunks
	}
	return nil
}

func preservedFor(rel string, bySource map[string][]domain.Chunk, _ time.Time) []domain.Chunk {
	return bySource[rel]
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// loadAndChunk loads a single file's content (PDF/txt/md) and produces
// its sentence-window chunks.
func (p *Pipeline) loadAndChunk(fullPath, rel, sourceType, docID string) ([]domain.Chunk, error) {
	text, err := load(fullPath, sourceType)
	if err != nil {
		return nil, err
	}
	sentences := splitSentences(chunkstore.NormalizeText(text))
	windows := windowSentences(sentences, p.cfg.SentWindowSize, p.cfg.SentWindowOverlap)

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, 0, len(windows))
	for i, w := range windows {
		norm := chunkstore.NormalizeText(w)
		if norm == "" {
			continue
		}
		chunks = append(chunks, domain.Chunk{
			ID:         chunkstore.ChunkID(docID, i),
			DocID:      docID,
			ChunkIndex: i,
			SourcePath: rel,
			SourceType: sourceType,
			Text:       norm,
			CreatedAt:  now,
			Hash:       chunkstore.HashText(norm),
		})
	}
	return chunks, nil
}

// load reads a single source file as UTF-8 text. PDFs prefer a
// layout-aware loader, falling back to a plain page-extraction loader on
// failure; text/markdown is read directly as a single record.
func load(path, sourceType string) (string, error) {
	switch sourceType {
	case "pdf":
		text, err := loadPDFLayoutAware(path)
		if err == nil {
			return text, nil
		}
		return loadPDFPages(path)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// splitSentences tokenizes on whitespace-normalized text, splitting
// after '.', '!', or '?' followed by whitespace (spec 4.D step 6). RE2
// has no lookbehind, so the delimiter is re-attached to the preceding
// sentence explicitly.
func splitSentences(text string) []string {
	if text == "" {
		return nil
	}
	locs := sentenceSplitRe.FindAllStringIndex(text, -1)
	if locs == nil {
		return []string{text}
	}
	var sentences []string
	start := 0
	for _, loc := range locs {
		end := loc[0] + 1 // include the punctuation, drop the trailing whitespace
		sentences = append(sentences, strings.TrimSpace(text[start:end]))
		start = loc[1]
	}
	if start < len(text) {
		sentences = append(sentences, strings.TrimSpace(text[start:]))
	}
	out := sentences[:0]
	for _, s := range sentences {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// windowSentences groups sentences into overlapping windows of size
// sentences with the given overlap, stride = max(1, size-overlap),
// concatenating with single spaces (spec 4.D step 7).
func windowSentences(sentences []string, size, overlap int) []string {
	if len(sentences) == 0 {
		return nil
	}
	stride := size - overlap
	if stride < 1 {
		stride = 1
	}
	var windows []string
	for start := 0; start < len(sentences); start += stride {
		end := start + size
		if end > len(sentences) {
			end = len(sentences)
		}
		windows = append(windows, strings.Join(sentences[start:end], " "))
		if end == len(sentences) {
			break
		}
	}
	return windows
}

func (p *Pipeline) writeManifest(m domain.IngestionManifest) error {
	data, err := marshalManifest(m)
	if err != nil {
		return fmt.Errorf("ingestion: marshal manifest: %w", err)
	}
	dir := filepath.Dir(p.manifestPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ingestion: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".manifest-*.json.tmp")
	if err != nil {
		return fmt.Errorf("ingestion: create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("ingestion: write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ingestion: close temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, p.manifestPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("ingestion: rename manifest into place: %w", err)
	}
	return nil
}
