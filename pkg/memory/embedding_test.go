package memory

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider()

	a, err := p.Embed(context.Background(), []string{"alpha beta gamma"})
	require.NoError(t, err)
	b, err := p.Embed(context.Background(), []string{"alpha beta gamma"})
	require.NoError(t, err)

	require.Len(t, a, 1)
	assert.Equal(t, a[0], b[0])
	assert.Len(t, a[0], HashDimension)
}

func TestHashProvider_Normalized(t *testing.T) {
	vectors, err := NewHashProvider().Embed(context.Background(), []string{"one two three four"})
	require.NoError(t, err)

	var norm float64
	for _, v := range vectors[0] {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1, math.Sqrt(norm), 1e-6)
}

func TestHashProvider_EmptyTextUnnormalized(t *testing.T) {
	vectors, err := NewHashProvider().Embed(context.Background(), []string{""})
	require.NoError(t, err)
	for _, v := range vectors[0] {
		assert.Zero(t, v)
	}
}

func TestHashProvider_DistinctTexts(t *testing.T) {
	vectors, err := NewHashProvider().Embed(context.Background(), []string{"alpha", "omega"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.NotEqual(t, vectors[0], vectors[1])
}

func TestNoneProvider(t *testing.T) {
	vectors, err := NoneProvider{}.Embed(context.Background(), []string{"anything"})
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Equal(t, "none", NoneProvider{}.Name())
}

func TestResolveProvider_AutoPrefersLocal(t *testing.T) {
	logger := zerolog.Nop()

	p := ResolveProvider(ProviderConfig{
		Provider:   "auto",
		LocalModel: "all-MiniLM-L6-v2",
	}, logger)
	assert.Equal(t, "local", p.Name())
}

func TestResolveProvider_AutoFallsThrough(t *testing.T) {
	logger := zerolog.Nop()

	p := ResolveProvider(ProviderConfig{
		Provider:     "auto",
		OpenAIAPIKey: "sk-test",
	}, logger)
	assert.Equal(t, "openai", p.Name())

	p = ResolveProvider(ProviderConfig{
		Provider:     "auto",
		GeminiAPIKey: "g-test",
	}, logger)
	assert.Equal(t, "gemini", p.Name())
}

func TestResolveProvider_AutoNothingResolves(t *testing.T) {
	p := ResolveProvider(ProviderConfig{Provider: "auto"}, zerolog.Nop())
	assert.Equal(t, "none", p.Name())
}

func TestResolveProvider_ExplicitUnavailableUsesFallback(t *testing.T) {
	p := ResolveProvider(ProviderConfig{
		Provider:   "openai",
		Fallback:   "local",
		LocalModel: "all-MiniLM-L6-v2",
	}, zerolog.Nop())
	assert.Equal(t, "local", p.Name())
}

func TestResolveProvider_ExplicitAndFallbackUnavailable(t *testing.T) {
	p := ResolveProvider(ProviderConfig{
		Provider: "openai",
		Fallback: "gemini",
	}, zerolog.Nop())
	assert.Equal(t, "none", p.Name())
}

func TestResolveProvider_FallbackAutoIgnored(t *testing.T) {
	p := ResolveProvider(ProviderConfig{
		Provider: "gemini",
		Fallback: "auto",
	}, zerolog.Nop())
	assert.Equal(t, "none", p.Name())
}

func TestLocalModelResolves(t *testing.T) {
	assert.False(t, localModelResolves(""))
	// Remote identifiers are accepted as-is.
	assert.True(t, localModelResolves("all-MiniLM-L6-v2"))

	// Path-like references must exist on disk.
	dir := t.TempDir()
	missing := filepath.Join(dir, "model.gguf")
	assert.False(t, localModelResolves(missing))

	require.NoError(t, os.WriteFile(missing, []byte("weights"), 0o644))
	assert.True(t, localModelResolves(missing))
}

func TestResolveProvider_ExplicitNone(t *testing.T) {
	p := ResolveProvider(ProviderConfig{Provider: "none"}, zerolog.Nop())
	assert.Equal(t, "none", p.Name())
}
