package truthbase

import (
	"fmt"
	"strings"

	"github.com/m-mizutani/llbmem/pkg/model"
)

const (
	groundedPromptHeader = "Com base exclusivamente no contexto abaixo, responda à pergunta. " +
		"Cite as fontes utilizadas no formato [Source: arquivo#seção]."
	emptyPromptHeader = "Nenhuma fonte relevante foi encontrada na base de verdade. " +
		"Responda que não há informação confiável disponível para esta pergunta."
)

// GenerateWithContext assembles the grounded prompt bundle from retrieved
// chunks: prompt text, citation-tagged context block, source list and an
// advisory confidence. It never calls a text generator itself. With no chunks
// it returns the structured empty answer rather than an error.
func (uc *UseCase) GenerateWithContext(query string, chunks []model.ScoredChunk, includeCitations bool) *model.GroundedPrompt {
	if len(chunks) == 0 {
		return &model.GroundedPrompt{
			Prompt:     fmt.Sprintf("%s\n\nPergunta: %s", emptyPromptHeader, query),
			Question:   query,
			Confidence: 0,
		}
	}

	var b strings.Builder
	sources := make([]model.SourceRef, 0, len(chunks))
	for i, sc := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if includeCitations {
			b.WriteString(sc.Chunk.Citation())
			b.WriteString("\n")
		}
		b.WriteString(sc.Chunk.Text)
		sources = append(sources, model.SourceRef{
			File:    sc.Chunk.SourcePath,
			Section: sc.Chunk.Section,
			Score:   sc.Score,
		})
	}

	context := b.String()
	prompt := fmt.Sprintf("%s\n\nContexto:\n%s\n\nPergunta: %s", groundedPromptHeader, context, query)

	return &model.GroundedPrompt{
		Prompt:     prompt,
		Context:    context,
		Question:   query,
		Sources:    sources,
		Confidence: promptConfidence(len(sources)),
	}
}

// promptConfidence grows with the number of supporting sources, capped at 1.
func promptConfidence(numSources int) float64 {
	if numSources == 0 {
		return 0
	}
	conf := 0.3 + 0.15*float64(numSources)
	if conf > 1 {
		return 1
	}
	return conf
}
