package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type ChunkID string

func NewChunkID() ChunkID {
	return ChunkID(uuid.New().String())
}

// Chunk is one tokenizer-bounded slice of a source text.
type Chunk struct {
	Index      int    `json:"index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// DocumentChunk is a chunk enriched with provenance and an embedding, as
// stored in the truth base collection.
type DocumentChunk struct {
	ID         ChunkID           `json:"id"`
	SourcePath string            `json:"source_path"`
	Section    string            `json:"section"`
	ChunkIndex int               `json:"chunk_index"`
	TokenCount int               `json:"token_count"`
	Text       string            `json:"text"`
	Embedding  []float32         `json:"-"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`

	// Override marks chunks synthesized from a fact override rather than an
	// indexed document.
	Override bool   `json:"override,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// Citation renders the provenance marker expected in grounded answers.
func (c *DocumentChunk) Citation() string {
	return fmt.Sprintf("[Source: %s#%s]", c.SourcePath, c.Section)
}

// ScoredChunk is a chunk paired with its retrieval similarity.
type ScoredChunk struct {
	Chunk *DocumentChunk `json:"chunk"`
	Score float64        `json:"score"`
}

// GroundedPrompt is the assembled generation input: retrieved context plus the
// instruction to answer only from it.
type GroundedPrompt struct {
	Prompt     string      `json:"prompt"`
	Context    string      `json:"context"`
	Question   string      `json:"question"`
	Sources    []SourceRef `json:"sources"`
	Confidence float64     `json:"confidence"`
}

// SourceRef names one source that contributed to a grounded prompt.
type SourceRef struct {
	File    string  `json:"file"`
	Section string  `json:"section"`
	Score   float64 `json:"score"`
}

// GroundedAnswer is a generated answer together with the prompt bundle it was
// produced from and the citation audit of the generated text.
type GroundedAnswer struct {
	Answer    string          `json:"answer"`
	Prompt    *GroundedPrompt `json:"prompt"`
	Citations []SourceRef     `json:"citations,omitempty"`
	Report    *CitationReport `json:"report"`
}

// CitationReport is the result of validating the citations in a generated
// answer against the retrieved sources.
type CitationReport struct {
	Total    int      `json:"total"`
	Valid    int      `json:"valid"`
	Invalid  []string `json:"invalid,omitempty"`
	Accuracy float64  `json:"accuracy"`
}

// Override is an authoritative correction keyed by topic. The latest write
// for a topic wins.
type Override struct {
	Topic      string    `json:"topic"`
	Content    string    `json:"content"`
	SourcePath string    `json:"source_path"`
	Section    string    `json:"section"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func (o *Override) Validate() error {
	if o.Topic == "" {
		return goerr.Wrap(ErrInvalidInput, "override requires a topic")
	}
	if o.Content == "" {
		return goerr.Wrap(ErrInvalidInput, "override requires content")
	}
	return nil
}
