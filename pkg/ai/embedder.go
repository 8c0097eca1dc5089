package ai

import (
	"context"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stratum-kg/stratum/internal/util"
	"github.com/stratum-kg/stratum/pkg/cache"
	"github.com/stratum-kg/stratum/pkg/logger"
)

const (
	DefaultEmbeddingDimensions = 384
	DefaultEmbeddingTokenLimit = 512
	embeddingTokenEncoding     = "cl100k_base"

	// Embeddings are deterministic per model, so they cache longer and
	// in larger numbers than extraction payloads.
	embeddingCacheEntries = 5000
	embeddingCacheMaxAge  = 2 * time.Hour
)

// EmbedderParams configures an Embedder. Zero values get defaults.
type EmbedderParams struct {
	Client     GraphAIClient
	Dimensions int
	TokenLimit int
	// Cache overrides the embedding cache, keyed by normalized input
	// text. Nil gets a default long-TTL cache.
	Cache *cache.Cache[[]float32]
}

// Embedder wraps a GraphAIClient with the guarantees the pipeline needs
// from embedding vectors: input is normalized and truncated to the token
// budget, the output length always equals Dimensions, a backend failure
// yields a zero vector instead of an error, and repeated input is served
// from the cache without a backend call.
type Embedder struct {
	client     GraphAIClient
	dimensions int
	tokenLimit int
	enc        *tiktoken.Tiktoken
	cache      *cache.Cache[[]float32]
}

func NewEmbedder(params EmbedderParams) *Embedder {
	if params.Dimensions <= 0 {
		params.Dimensions = DefaultEmbeddingDimensions
	}
	if params.TokenLimit <= 0 {
		params.TokenLimit = DefaultEmbeddingTokenLimit
	}
	if params.Cache == nil {
		params.Cache = cache.New[[]float32](cache.Config{
			MaxEntries: embeddingCacheEntries,
			MaxAge:     embeddingCacheMaxAge,
		})
	}

	enc, err := tiktoken.GetEncoding(embeddingTokenEncoding)
	if err != nil {
		logger.Warn("embedder falls back to byte truncation", "error", err)
	}

	return &Embedder{
		client:     params.Client,
		dimensions: params.Dimensions,
		tokenLimit: params.TokenLimit,
		enc:        enc,
		cache:      params.Cache,
	}
}

func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the embedding vector for the text. It never fails: empty
// input and backend errors both produce a zero vector of full length.
// Failure vectors are not cached, so the next call retries the backend.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	text = e.normalize(text)
	if text == "" {
		return make([]float32, e.dimensions)
	}

	key := cache.Key(text)
	if vec, ok := e.cache.Get(key); ok {
		return vec
	}

	vec, err := util.RetryWithContext(ctx, 2, func(ctx context.Context) ([]float32, error) {
		return e.client.GenerateEmbedding(ctx, []byte(text))
	})
	if err != nil {
		logger.Warn("embedding failed, using zero vector", "error", err)
		return make([]float32, e.dimensions)
	}

	out := e.fit(vec)
	e.cache.Set(key, out)
	return out
}

// EmbedAll embeds a batch, sending only cache misses to the backend in
// one call. On backend error the missing entries become zero vectors.
func (e *Embedder) EmbedAll(ctx context.Context, texts []string) [][]float32 {
	if len(texts) == 0 {
		return nil
	}

	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	normalized := make([]string, len(texts))

	var missing []int
	for i, t := range texts {
		normalized[i] = e.normalize(t)
		if normalized[i] == "" {
			out[i] = make([]float32, e.dimensions)
			continue
		}
		keys[i] = cache.Key(normalized[i])
		if vec, ok := e.cache.Get(keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out
	}

	inputs := make([][]byte, len(missing))
	for j, i := range missing {
		inputs[j] = []byte(normalized[i])
	}

	vecs, err := util.RetryWithContext(ctx, 2, func(ctx context.Context) ([][]float32, error) {
		return e.client.GenerateEmbeddings(ctx, inputs)
	})
	if err != nil || len(vecs) != len(missing) {
		logger.Warn("batch embedding failed, using zero vectors", "count", len(missing), "error", err)
		for _, i := range missing {
			out[i] = make([]float32, e.dimensions)
		}
		return out
	}

	for j, i := range missing {
		out[i] = e.fit(vecs[j])
		e.cache.Set(keys[i], out[i])
	}
	return out
}

// normalize collapses whitespace and truncates to the token budget.
func (e *Embedder) normalize(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	if e.enc == nil {
		// Rough budget of 4 bytes per token when no encoder is available.
		limit := e.tokenLimit * 4
		if len(text) > limit {
			text = text[:limit]
		}
		return text
	}

	tokens := e.enc.Encode(text, nil, nil)
	if len(tokens) <= e.tokenLimit {
		return text
	}
	return e.enc.Decode(tokens[:e.tokenLimit])
}

// fit pads or truncates a vector to exactly Dimensions entries.
func (e *Embedder) fit(vec []float32) []float32 {
	if len(vec) == e.dimensions {
		return vec
	}
	out := make([]float32, e.dimensions)
	copy(out, vec)
	return out
}
