package interfaces

import (
	"context"

	"github.com/m-mizutani/llbmem/pkg/model"
)

// Embedder converts text into fixed-size vectors and exposes the tokenizer
// bookkeeping that chunking depends on.
type Embedder interface {
	// Embed returns one vector for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per input text, in input order
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// CountTokens returns the token count the chunker budgets against
	CountTokens(text string) int

	// ChunkText splits text into token-bounded chunks with overlap
	ChunkText(text string, chunkSize, overlap int) []model.Chunk

	// Dimension returns the width of the vectors this embedder produces
	Dimension() int
}
