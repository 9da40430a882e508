package ingestion

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSplitSentences(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"empty", "", nil},
		{"single", "Unplug idle devices.", []string{"Unplug idle devices."}},
		{
			"three",
			"Unplug idle devices. Use LED bulbs. Lower your thermostat.",
			[]string{"Unplug idle devices.", "Use LED bulbs.", "Lower your thermostat."},
		},
		{
			"question and exclamation",
			"Really? Yes! Great.",
			[]string{"Really?", "Yes!", "Great."},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := splitSentences(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("sentence %d: got %q, want %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestWindowSentences(t *testing.T) {
	sentences := make([]string, 12)
	for i := range sentences {
		sentences[i] = "s" + string(rune('a'+i))
	}
	windows := windowSentences(sentences, 10, 2)
	if len(windows) != 2 {
		t.Fatalf("expected 2 windows for 12 sentences with size=10 overlap=2, got %d: %v", len(windows), windows)
	}
}

func TestIngestScenario1(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "tipsA.md"), []byte("Unplug idle devices. Use LED bulbs. Lower your thermostat."), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tipsB.txt"), []byte("Run dishwasher full. Insulate the attic. Close curtains during heat."), 0o644); err != nil {
		t.Fatal(err)
	}

	chunksPath := filepath.Join(dir, "out", "chunks.jsonl")
	manifestPath := filepath.Join(dir, "out", "manifest.json")
	p := New(chunksPath, manifestPath, nil, nil)

	result, err := p.Ingest(dir)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(result.Chunks) < 2 {
		t.Fatalf("expected >= 2 chunks, got %d", len(result.Chunks))
	}
	seen := map[string]bool{}
	for _, c := range result.Chunks {
		seen[c.DocID] = true
	}
	if !seen["tipsa"] || !seen["tipsb"] {
		t.Fatalf("expected doc_ids tipsa and tipsb, got %v", seen)
	}

	manifest, err := p.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(manifest.Files) != 2 {
		t.Fatalf("expected 2 manifest file entries, got %d", len(manifest.Files))
	}
	for rel, entry := range manifest.Files {
		if entry.ChunksCount <= 0 {
			t.Errorf("file %s: expected chunks_count > 0, got %d", rel, entry.ChunksCount)
		}
	}

	// Re-ingesting with no changes should leave every file unchanged.
	result2, err := p.Ingest(dir)
	if err != nil {
		t.Fatalf("second Ingest: %v", err)
	}
	if len(result2.Changed) != 0 {
		t.Errorf("expected no changed files on second ingest, got %v", result2.Changed)
	}
}
