package truthbase

import (
	"context"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

// IndexReport summarizes one document ingestion.
type IndexReport struct {
	SourcePath  string   `json:"source_path"`
	Chunks      int      `json:"chunks"`
	TotalTokens int      `json:"total_tokens"`
	Sections    []string `json:"sections"`
}

// IndexDocument chunks a document, embeds every chunk and upserts the batch
// into the truth base collection. Each chunk keeps its source_path and
// section for citation. Indexing invalidates the query cache.
func (uc *UseCase) IndexDocument(ctx context.Context, sourcePath, text string, metadata map[string]string) (*IndexReport, error) {
	if sourcePath == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document requires a source path")
	}
	if strings.TrimSpace(text) == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document text is empty",
			goerr.V("source_path", sourcePath))
	}

	chunks := uc.embedder.ChunkText(text, uc.cfg.Embedding.ChunkSize, uc.cfg.Embedding.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidInput, "document produced no chunks",
			goerr.V("source_path", sourcePath))
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed document chunks", goerr.V("source_path", sourcePath))
	}

	now := uc.now()
	report := &IndexReport{SourcePath: sourcePath}
	points := make([]interfaces.VectorPoint, 0, len(chunks))

	for i, c := range chunks {
		if len(vectors[i]) != uc.cfg.Embedding.Dimension {
			return nil, goerr.Wrap(model.ErrInvalidInput, "embedding dimension mismatch",
				goerr.V("source_path", sourcePath),
				goerr.V("expected", uc.cfg.Embedding.Dimension),
				goerr.V("actual", len(vectors[i])))
		}

		section := sectionName(metadata, c.Index, len(chunks))
		chunk := &model.DocumentChunk{
			ID:         model.NewChunkID(),
			SourcePath: sourcePath,
			Section:    section,
			ChunkIndex: c.Index,
			TokenCount: c.TokenCount,
			Text:       c.Text,
			Embedding:  vectors[i],
			Metadata:   metadata,
			CreatedAt:  now,
		}
		points = append(points, chunkPoint(chunk))
		report.Sections = append(report.Sections, section)
		report.TotalTokens += c.TokenCount
	}
	report.Chunks = len(points)

	if err := uc.vectors.Upsert(ctx, model.CollectionTruthBase, points); err != nil {
		return nil, err
	}

	uc.mu.Lock()
	for _, section := range report.Sections {
		uc.registerSourceLocked(sourcePath, section)
	}
	uc.documents++
	uc.chunks += report.Chunks
	uc.mu.Unlock()
	uc.cache.Clear()

	logging.From(ctx).Info("indexed document",
		"source_path", sourcePath,
		"chunks", report.Chunks,
		"tokens", report.TotalTokens,
	)
	return report, nil
}

// sectionName derives the section label for one chunk. An explicit section in
// the metadata names the whole document; multi-chunk documents append the
// chunk index to keep citations unambiguous.
func sectionName(metadata map[string]string, index, total int) string {
	base := ""
	if metadata != nil {
		base = metadata["section"]
	}
	if base == "" {
		return fmt.Sprintf("chunk_%d", index)
	}
	if total == 1 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, index)
}

func chunkPoint(chunk *model.DocumentChunk) interfaces.VectorPoint {
	return interfaces.VectorPoint{
		ID:     string(chunk.ID),
		Vector: chunk.Embedding,
		Payload: map[string]any{
			"source_path": chunk.SourcePath,
			"section":     chunk.Section,
			"chunk_index": chunk.ChunkIndex,
			"token_count": chunk.TokenCount,
			"text":        chunk.Text,
			"override":    chunk.Override,
			"topic":       chunk.Topic,
		},
	}
}
