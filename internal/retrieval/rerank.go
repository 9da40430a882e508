package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/54b3r/energy-assistant/internal/llm"
)

// Judge is the LLM-as-judge capability used by the rerank stage.
type Judge = llm.Caller

const rerankSystemPrompt = `You are a relevance judge. Given a question and a JSON array of candidate documents with "id" and "preview" fields, return a strict JSON array of objects {"id": <id>, "score": <float in [0,1]>} ranking every candidate by relevance to the question. Return ONLY the JSON array, no prose, no markdown fences.`

type rerankCandidate struct {
	ID      string `json:"id"`
	Preview string `json:"preview"`
}

type rerankScore struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// rerank takes the first cfg.Rerank.TopN of fused, asks the judge to
// score each candidate in [0,1], and returns the input list re-sorted by
// judge score. On any parse failure the input order is kept and all
// scores are zeroed (spec 4.E / scenario 6). A soft timeout logs but does
// not discard a late-but-successful response.
func (e *Engine) rerank(ctx context.Context, question string, fused []Scored) []Scored {
	topN := e.cfg.Rerank.TopN
	if topN <= 0 || topN > len(fused) {
		topN = len(fused)
	}
	head := fused[:topN]
	tail := fused[topN:]

	previewChars := e.cfg.Rerank.PreviewChars
	if previewChars <= 0 {
		previewChars = 200
	}

	candidates := make([]rerankCandidate, 0, len(head))
	for i, s := range head {
		id := docKey(s.Doc, i)
		preview := s.Doc.Content
		if len(preview) > previewChars {
			preview = preview[:previewChars]
		}
		candidates = append(candidates, rerankCandidate{ID: id, Preview: preview})
	}
	candidatesJSON, err := json.Marshal(candidates)
	if err != nil {
		e.log.Warn("retrieval: rerank: failed to marshal candidates, skipping rerank", "error", err)
		return fused
	}
	userPrompt := fmt.Sprintf("Question: %s\n\nCandidates: %s", question, candidatesJSON)

	start := time.Now()
	raw, err := e.judge.Call(ctx, rerankSystemPrompt, userPrompt)
	elapsed := time.Since(start)
	if e.cfg.Rerank.TimeoutMS > 0 && elapsed.Milliseconds() > int64(e.cfg.Rerank.TimeoutMS) {
		e.log.Warn("retrieval: rerank exceeded soft timeout, using result anyway", "elapsed_ms", elapsed.Milliseconds(), "timeout_ms", e.cfg.Rerank.TimeoutMS)
	}
	if err != nil {
		e.log.Warn("retrieval: rerank judge call failed, keeping fused order with zero scores", "error", err)
		return zeroedStable(head, tail)
	}

	scores, parseErr := parseRerankResponse(raw)
	if parseErr != nil {
		e.log.Warn("retrieval: rerank response was not valid JSON, keeping fused order with zero scores", "error", parseErr)
		return zeroedStable(head, tail)
	}

	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		byID[s.ID] = s.Score
	}

	reranked := make([]Scored, len(head))
	copy(reranked, head)
	for i := range reranked {
		id := docKey(reranked[i].Doc, i)
		score, ok := byID[id]
		if !ok {
			score = 0
		}
		reranked[i].Score = score
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		return reranked[i].Score > reranked[j].Score
	})

	return append(reranked, tail...)
}

// zeroedStable returns head unchanged (stable input order) with every
// score set to zero, followed by tail.
func zeroedStable(head, tail []Scored) []Scored {
	out := make([]Scored, 0, len(head)+len(tail))
	for _, s := range head {
		out = append(out, Scored{Doc: s.Doc, Score: 0})
	}
	return append(out, tail...)
}

// rawRerankEntry tolerates an id encoded as either a JSON string or a
// bare number, since judges are inconsistent about quoting ids.
type rawRerankEntry struct {
	ID    json.RawMessage `json:"id"`
	Score float64         `json:"score"`
}

func (e rawRerankEntry) normalizedID() string {
	var s string
	if err := json.Unmarshal(e.ID, &s); err == nil {
		return s
	}
	return strings.Trim(string(e.ID), `"`)
}

// parseRerankResponse performs spec 4.E's single-pass parse: strip any
// fenced code block, take the substring between the first '[' and the
// last ']', parse as JSON, coerce/clamp each score.
func parseRerankResponse(raw string) ([]rerankScore, error) {
	text := stripFencedBlock(raw)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("retrieval: no JSON array found in rerank response")
	}
	candidate := text[start : end+1]

	var entries []rawRerankEntry
	if err := json.Unmarshal([]byte(candidate), &entries); err != nil {
		return nil, fmt.Errorf("retrieval: rerank response is not a JSON array of {id,score}: %w", err)
	}

	rawScores := make([]float64, len(entries))
	for i, en := range entries {
		rawScores[i] = en.Score
	}
	rescaled := rescaleBatch(rawScores)

	out := make([]rerankScore, 0, len(entries))
	for i, en := range entries {
		out = append(out, rerankScore{ID: en.normalizedID(), Score: clamp01(rescaled[i])})
	}
	return out, nil
}

// rescaleBatch decides once, for the whole batch, whether the judge
// scored on a 1-10 scale: if the batch max is in (1,10], every score is
// divided by 10. The decision is made over the whole batch rather than
// per score, since a batch like [0.9, 5.0, 0.3] must become
// [0.09, 0.5, 0.03] rather than rescaling only the 5.0 (spec.md:119,271).
// Returns a new slice; scores is left unmodified.
func rescaleBatch(scores []float64) []float64 {
	max := 0.0
	for _, s := range scores {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	copy(out, scores)
	if max > 1 && max <= 10 {
		for i := range out {
			out[i] /= 10
		}
	}
	return out
}

// clamp01 clamps f to [0,1].
func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func stripFencedBlock(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) < 2 {
		return s
	}
	lines = lines[1:]
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
