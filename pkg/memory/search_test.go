package memory

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero left", []float32{0, 0}, []float32{1, 1}, 0},
		{"zero right", []float32{1, 1}, []float32{0, 0}, 0},
		{"missing left", nil, []float32{1, 1}, 0},
		{"missing right", []float32{1, 1}, nil, 0},
		{"opposite clamped", []float32{1, 0}, []float32{-1, 0}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestCosineSimilarity_SharedPrefix(t *testing.T) {
	// Vectors of different length are compared over the shared prefix.
	a := []float32{1, 0, 5, 5, 5}
	b := []float32{1, 0}
	assert.InDelta(t, 1, CosineSimilarity(a, b), 1e-9)
}

func TestCosineSimilarity_NonFinite(t *testing.T) {
	a := []float32{float32(math.Inf(1)), 1}
	b := []float32{1, 1}
	assert.Equal(t, float64(0), CosineSimilarity(a, b))
}

func TestJaccardSimilarity(t *testing.T) {
	assert.InDelta(t, 1, JaccardSimilarity("alpha beta", "alpha beta"), 1e-9)
	assert.InDelta(t, 0, JaccardSimilarity("alpha beta", "gamma delta"), 1e-9)
	// {a,b,c} vs {b,c,d}: 2 shared / 4 total.
	assert.InDelta(t, 0.5, JaccardSimilarity("a b c", "b c d"), 1e-9)
	assert.InDelta(t, 0, JaccardSimilarity("", "alpha"), 1e-9)
	assert.InDelta(t, 0, JaccardSimilarity("alpha", ""), 1e-9)
}

func TestJaccardSimilarity_Normalization(t *testing.T) {
	// Case and punctuation do not matter.
	assert.InDelta(t, 1, JaccardSimilarity("Quarterly, Revenue!", "quarterly revenue"), 1e-9)
}

func TestNormalizeWeights(t *testing.T) {
	tests := []struct {
		name                 string
		vector, text         float64
		wantVector, wantText float64
	}{
		{"defaults on zero", 0, 0, 0.7, 0.3},
		{"already normalized", 0.7, 0.3, 0.7, 0.3},
		{"rescaled", 1, 1, 0.5, 0.5},
		{"clamped negative", -1, 0.5, 0, 1},
		{"clamped above one", 4, 1, 0.5, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vector, text := NormalizeWeights(tt.vector, tt.text)
			assert.InDelta(t, tt.wantVector, vector, 1e-9)
			assert.InDelta(t, tt.wantText, text, 1e-9)
			assert.InDelta(t, 1, vector+text, 1e-9)
		})
	}
}

func searchChunks() []ChunkRecord {
	var chunks []ChunkRecord
	for i := 0; i < 20; i++ {
		content := fmt.Sprintf("filler document number %d", i)
		if i%5 == 0 {
			content = fmt.Sprintf("quarterly revenue figures report %d", i)
		}
		chunks = append(chunks, ChunkRecord{
			ID:        int64(i + 1),
			Content:   content,
			Embedding: hashEmbed(content),
		})
	}
	return chunks
}

func TestHybridSearch_Properties(t *testing.T) {
	chunks := searchChunks()
	query := "quarterly revenue"
	queryEmbedding := hashEmbed(query)

	cfg := SearchConfig{
		VectorWeight:        0.7,
		TextWeight:          0.3,
		MinScore:            0.05,
		MaxResults:          3,
		CandidateMultiplier: 4,
	}

	hits := HybridSearch(query, queryEmbedding, chunks, cfg)
	require.NotEmpty(t, hits)
	assert.LessOrEqual(t, len(hits), cfg.MaxResults)

	for i, hit := range hits {
		assert.GreaterOrEqual(t, hit.Score, cfg.MinScore)
		if i > 0 {
			assert.LessOrEqual(t, hit.Score, hits[i-1].Score)
		}
	}
}

func TestHybridSearch_VectorWeightZero(t *testing.T) {
	chunks := searchChunks()
	hits := HybridSearch("quarterly revenue", hashEmbed("quarterly revenue"), chunks, SearchConfig{
		VectorWeight: 0,
		TextWeight:   1,
		MaxResults:   10,
	})
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Zero(t, hit.VectorScore)
	}
}

func TestHybridSearch_TextWeightZero(t *testing.T) {
	chunks := searchChunks()
	hits := HybridSearch("quarterly revenue", hashEmbed("quarterly revenue"), chunks, SearchConfig{
		VectorWeight: 1,
		TextWeight:   0,
		MaxResults:   10,
	})
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Zero(t, hit.TextScore)
	}
}

func TestHybridSearch_MissingQueryEmbedding(t *testing.T) {
	chunks := searchChunks()
	hits := HybridSearch("quarterly revenue", nil, chunks, SearchConfig{
		VectorWeight: 0.7,
		TextWeight:   0.3,
		MaxResults:   10,
	})
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		assert.Zero(t, hit.VectorScore)
		assert.Greater(t, hit.TextScore, float64(0))
	}
}

func TestHybridSearch_MinScoreFiltersAll(t *testing.T) {
	chunks := searchChunks()
	hits := HybridSearch("zzz unrelated qqq", nil, chunks, SearchConfig{
		VectorWeight: 0,
		TextWeight:   1,
		MinScore:     0.9,
		MaxResults:   10,
	})
	assert.Empty(t, hits)
}

func TestHybridSearch_EmptyCandidates(t *testing.T) {
	assert.Empty(t, HybridSearch("anything", nil, nil, SearchConfig{}))
}

func TestHybridSearch_LexicalRanking(t *testing.T) {
	chunks := []ChunkRecord{
		{ID: 1, Path: "a.md", Content: "quarterly revenue figures"},
		{ID: 2, Path: "b.md", Content: "unrelated travel notes"},
	}

	hits := HybridSearch("quarterly revenue", nil, chunks, SearchConfig{
		VectorWeight: 0,
		TextWeight:   1,
		MaxResults:   2,
	})

	require.NotEmpty(t, hits)
	assert.Equal(t, "a.md", hits[0].Chunk.Path)
	assert.Greater(t, hits[0].TextScore, float64(0))
}

func TestHybridSearch_CandidateUnionKeepsBothModalities(t *testing.T) {
	// One chunk matches only lexically, another only by vector. Both must
	// survive candidate generation even with a tiny multiplier.
	query := "quarterly revenue"
	lexical := ChunkRecord{ID: 1, Content: "quarterly revenue figures"}
	vectorOnly := ChunkRecord{ID: 2, Content: "zzz yyy xxx", Embedding: hashEmbed(query)}

	hits := HybridSearch(query, hashEmbed(query), []ChunkRecord{lexical, vectorOnly}, SearchConfig{
		VectorWeight:        0.5,
		TextWeight:          0.5,
		MaxResults:          2,
		CandidateMultiplier: 1,
	})

	require.Len(t, hits, 2)
	ids := []int64{hits[0].Chunk.ID, hits[1].Chunk.ID}
	assert.Contains(t, ids, int64(1))
	assert.Contains(t, ids, int64(2))
}
