package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/naralabs/nara/internal/observability"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog"
)

// Provider turns text into fixed-length vectors. Implementations must return
// one vector per input, in order.
type Provider interface {
	// Embed returns one embedding per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name identifies the provider ("local", "openai", "gemini", "none").
	Name() string
}

// ProviderConfig selects and configures an embedding provider.
type ProviderConfig struct {
	// Provider is one of auto, local, openai, gemini, none.
	Provider string
	// Fallback is tried when an explicitly requested provider does not
	// resolve. Ignored when it equals Provider or is "auto".
	Fallback string

	// LocalModel is a remote model identifier or a local file path. The
	// local provider resolves only when this is declared.
	LocalModel string

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	GeminiAPIKey  string
	GeminiBaseURL string
	GeminiModel   string
}

const (
	providerAuto   = "auto"
	providerLocal  = "local"
	providerOpenAI = "openai"
	providerGemini = "gemini"
	providerNone   = "none"
)

// ResolveProvider picks a provider for cfg. Resolution never fails: when
// nothing resolves the "none" provider is returned and retrieval degrades to
// lexical-only scoring.
func ResolveProvider(cfg ProviderConfig, logger zerolog.Logger) Provider {
	requested := cfg.Provider
	if requested == "" {
		requested = providerAuto
	}

	if requested == providerAuto {
		for _, name := range []string{providerLocal, providerOpenAI, providerGemini} {
			if p := buildProvider(name, cfg); p != nil {
				logger.Debug().Str("provider", p.Name()).Msg("Resolved embedding provider")
				return instrument(p)
			}
		}
		return NoneProvider{}
	}

	if p := buildProvider(requested, cfg); p != nil {
		return instrument(p)
	}

	if cfg.Fallback != "" && cfg.Fallback != requested && cfg.Fallback != providerAuto {
		if p := buildProvider(cfg.Fallback, cfg); p != nil {
			logger.Warn().
				Str("requested", requested).
				Str("fallback", cfg.Fallback).
				Msg("Embedding provider unavailable, using fallback")
			return instrument(p)
		}
	}

	logger.Warn().Str("requested", requested).Msg("No embedding provider resolved, vectors disabled")
	return NoneProvider{}
}

// buildProvider returns nil when the named provider is unavailable.
func buildProvider(name string, cfg ProviderConfig) Provider {
	switch name {
	case providerLocal:
		if !localModelResolves(cfg.LocalModel) {
			return nil
		}
		return NewHashProvider()
	case providerOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil
		}
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	case providerGemini:
		if cfg.GeminiAPIKey == "" {
			return nil
		}
		return NewGeminiProvider(cfg.GeminiAPIKey, cfg.GeminiBaseURL, cfg.GeminiModel)
	case providerNone:
		return NoneProvider{}
	default:
		return nil
	}
}

// localModelResolves reports whether the declared model reference resolves:
// a path-like reference must exist on disk, anything else is accepted as a
// remote model identifier.
func localModelResolves(ref string) bool {
	if ref == "" {
		return false
	}
	if strings.ContainsRune(ref, os.PathSeparator) || strings.HasPrefix(ref, ".") {
		info, err := os.Stat(ref)
		return err == nil && !info.IsDir()
	}
	return true
}

// HashDimension is the fixed dimensionality of the feature-hashing provider.
const HashDimension = 384

// HashProvider is a deterministic, non-semantic pseudo-embedding: tokens are
// feature-hashed into a fixed 384-dim count vector which is then
// L2-normalized. It exists so the vector path stays exercisable without a
// trained model; scores from it carry no semantic meaning.
type HashProvider struct{}

// NewHashProvider returns the feature-hashing provider.
func NewHashProvider() HashProvider {
	return HashProvider{}
}

// Name implements Provider.
func (HashProvider) Name() string { return providerLocal }

// Embed implements Provider.
func (HashProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = hashEmbed(text)
	}
	return vectors, nil
}

func hashEmbed(text string) []float32 {
	vec := make([]float32, HashDimension)
	for _, token := range strings.Fields(text) {
		sum := sha256.Sum256([]byte(token))
		bucket := binary.BigEndian.Uint32(sum[:4]) % HashDimension
		vec[bucket]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// OpenAIProvider calls a batch embeddings endpoint: {model, input[]} in, one
// vector per input out.
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds the batch provider. baseURL and model fall back to
// the service defaults when empty.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return providerOpenAI }

// Embed implements Provider.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embeddings response has %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, item := range resp.Data {
		vec := make([]float32, len(item.Embedding))
		for j, v := range item.Embedding {
			vec[j] = float32(v)
		}
		vectors[int(item.Index)] = vec
	}
	return vectors, nil
}

// GeminiProvider calls an embedContent-style endpoint once per text.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewGeminiProvider builds the per-item provider.
func NewGeminiProvider(apiKey, baseURL, model string) *GeminiProvider {
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if model == "" {
		model = "text-embedding-004"
	}
	return &GeminiProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name implements Provider.
func (p *GeminiProvider) Name() string { return providerGemini }

// Embed implements Provider.
func (p *GeminiProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (p *GeminiProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]any{
		"content": map[string]any{
			"parts": []map[string]any{{"text": text}},
		},
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:embedContent?key=%s", p.baseURL, p.model, url.QueryEscape(p.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedContent request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedContent error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Embedding struct {
			Values []float32 `json:"values"`
		} `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return result.Embedding.Values, nil
}

// NoneProvider is always available and produces no vectors. With it active
// the search path scores chunks on lexical overlap only.
type NoneProvider struct{}

// Name implements Provider.
func (NoneProvider) Name() string { return providerNone }

// Embed implements Provider.
func (NoneProvider) Embed(context.Context, []string) ([][]float32, error) {
	return nil, nil
}

// instrumentedProvider records call counts and durations per provider.
type instrumentedProvider struct {
	inner Provider
}

func instrument(p Provider) Provider {
	if _, ok := p.(NoneProvider); ok {
		return p
	}
	return instrumentedProvider{inner: p}
}

func (ip instrumentedProvider) Name() string { return ip.inner.Name() }

func (ip instrumentedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	start := time.Now()
	vectors, err := ip.inner.Embed(ctx, texts)
	observability.RecordEmbeddingCall(ip.inner.Name(), time.Since(start), err)
	return vectors, err
}
