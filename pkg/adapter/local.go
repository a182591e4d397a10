package adapter

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
)

// LocalEmbedder produces deterministic unit-normalized vectors without a
// network: each word token contributes a pseudo-random vector seeded from its
// hash, and the sum is normalized. Identical text always maps to the
// identical vector, and texts sharing words land close in cosine space. It
// backs the 384-dimension memory collections and serves as the test double.
type LocalEmbedder struct {
	dimension int
	maxTokens int
}

type LocalOption func(*LocalEmbedder)

// WithLocalMaxTokens caps how many tokens of the input are embedded; longer
// text is truncated before hashing.
func WithLocalMaxTokens(n int) LocalOption {
	return func(e *LocalEmbedder) {
		e.maxTokens = n
	}
}

func NewLocalEmbedder(dimension int, opts ...LocalOption) *LocalEmbedder {
	if dimension <= 0 {
		dimension = 384
	}
	e := &LocalEmbedder{dimension: dimension, maxTokens: 2048}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	lower := strings.ToLower(truncateTokens(text, e.maxTokens))
	tokens := tokenize(lower)
	if len(tokens) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "cannot embed empty text")
	}

	acc := make([]float64, e.dimension)
	for _, t := range tokens {
		h := fnv.New64a()
		h.Write([]byte(lower[t.start:t.end]))

		// LCG over the token hash, mapped into [-1, 1] per component.
		state := h.Sum64()
		for i := range acc {
			state = state*6364136223846793005 + 1442695040888963407
			acc[i] += float64(int64(state>>11))/float64(1<<52) - 1
		}
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dimension)
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec, nil
}

func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *LocalEmbedder) CountTokens(text string) int {
	return countTokens(text)
}

func (e *LocalEmbedder) ChunkText(text string, chunkSize, overlap int) []model.Chunk {
	return chunkText(text, chunkSize, overlap)
}

func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}
