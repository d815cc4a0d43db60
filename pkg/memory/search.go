package memory

import (
	"math"
	"sort"
	"strings"
	"unicode"
)

// SearchConfig tunes hybrid scoring. Weights are normalized to sum to one
// (zero/zero falls back to 0.7/0.3) and limits are clamped to at least 1.
type SearchConfig struct {
	VectorWeight        float64
	TextWeight          float64
	MinScore            float64
	MaxResults          int
	CandidateMultiplier int
}

const (
	defaultVectorWeight = 0.7
	defaultTextWeight   = 0.3

	// DefaultMaxResults bounds a search when no limit is configured.
	DefaultMaxResults = 8
	// DefaultCandidateMultiplier controls per-strategy candidate depth.
	DefaultCandidateMultiplier = 4
)

// Hit is a chunk scored against one query. It is a query-scoped projection
// and is never persisted.
type Hit struct {
	Chunk       ChunkRecord
	Score       float64
	VectorScore float64
	TextScore   float64
}

// NormalizeWeights clamps both weights to [0,1] and rescales them to sum to
// one. A zero/zero input yields the 0.7/0.3 defaults.
func NormalizeWeights(vectorWeight, textWeight float64) (float64, float64) {
	vectorWeight = clamp01(vectorWeight)
	textWeight = clamp01(textWeight)

	sum := vectorWeight + textWeight
	if sum == 0 {
		return defaultVectorWeight, defaultTextWeight
	}
	return vectorWeight / sum, textWeight / sum
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeSearchConfig applies clamping and defaults to every knob.
func normalizeSearchConfig(cfg SearchConfig) SearchConfig {
	cfg.VectorWeight, cfg.TextWeight = NormalizeWeights(cfg.VectorWeight, cfg.TextWeight)
	cfg.MinScore = clamp01(cfg.MinScore)
	if cfg.MaxResults < 1 {
		cfg.MaxResults = 1
	}
	if cfg.CandidateMultiplier < 1 {
		cfg.CandidateMultiplier = 1
	}
	return cfg
}

// CosineSimilarity compares two vectors over their shared prefix length and
// clamps the result to [0,1]. Missing, zero-norm or non-finite vectors score
// zero.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	return clamp01(sim)
}

// JaccardSimilarity is intersection-over-union of the two texts' lowercased
// token sets, tokenized on whitespace and punctuation.
func JaccardSimilarity(a, b string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for token := range setA {
		if _, ok := setB[token]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// HybridSearch scores every candidate chunk against the query, generates
// candidates from two independent rankings (top-k by vector score and top-k
// by text score, unioned), then filters by minimum score, sorts by combined
// score descending and truncates to the result limit. The two-strategy union
// keeps one modality from starving the other when weights are unbalanced.
func HybridSearch(query string, queryEmbedding []float32, chunks []ChunkRecord, cfg SearchConfig) []Hit {
	cfg = normalizeSearchConfig(cfg)
	if len(chunks) == 0 {
		return nil
	}

	hits := make([]Hit, len(chunks))
	for i, chunk := range chunks {
		var vectorScore, textScore float64
		if cfg.VectorWeight > 0 && len(queryEmbedding) > 0 && len(chunk.Embedding) > 0 {
			vectorScore = CosineSimilarity(queryEmbedding, chunk.Embedding)
		}
		if cfg.TextWeight > 0 {
			textScore = JaccardSimilarity(query, chunk.Content)
		}
		hits[i] = Hit{
			Chunk:       chunk,
			VectorScore: vectorScore,
			TextScore:   textScore,
			Score:       cfg.VectorWeight*vectorScore + cfg.TextWeight*textScore,
		}
	}

	candidateCount := cfg.MaxResults * cfg.CandidateMultiplier
	if candidateCount < 1 {
		candidateCount = 1
	}

	byVector := rankedIndices(hits, func(h Hit) float64 { return h.VectorScore })
	byText := rankedIndices(hits, func(h Hit) float64 { return h.TextScore })

	candidates := make(map[int]struct{})
	for i := 0; i < candidateCount && i < len(byVector); i++ {
		candidates[byVector[i]] = struct{}{}
	}
	for i := 0; i < candidateCount && i < len(byText); i++ {
		candidates[byText[i]] = struct{}{}
	}

	selected := make([]Hit, 0, len(candidates))
	for idx := range candidates {
		if hits[idx].Score >= cfg.MinScore {
			selected = append(selected, hits[idx])
		}
	}

	sort.SliceStable(selected, func(i, j int) bool {
		if selected[i].Score != selected[j].Score {
			return selected[i].Score > selected[j].Score
		}
		return selected[i].Chunk.ID < selected[j].Chunk.ID
	})

	if len(selected) > cfg.MaxResults {
		selected = selected[:cfg.MaxResults]
	}
	return selected
}

// rankedIndices returns hit indices sorted descending by the given score,
// with chunk id as a deterministic tiebreak.
func rankedIndices(hits []Hit, score func(Hit) float64) []int {
	indices := make([]int, len(hits))
	for i := range hits {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		sa, sb := score(hits[indices[a]]), score(hits[indices[b]])
		if sa != sb {
			return sa > sb
		}
		return hits[indices[a]].Chunk.ID < hits[indices[b]].Chunk.ID
	})
	return indices
}
