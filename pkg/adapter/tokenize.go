package adapter

import (
	"strings"
	"unicode"

	"github.com/m-mizutani/llbmem/pkg/model"
)

// token is one word with its byte span in the source text.
type token struct {
	start int
	end   int
}

// tokenize splits text into word tokens on unicode space and punctuation
// boundaries. Punctuation runs count as tokens of their own so that token
// counts stay stable across formatting changes.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		switch {
		case unicode.IsSpace(r):
			if start >= 0 {
				tokens = append(tokens, token{start: start, end: i})
				start = -1
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			if start >= 0 {
				tokens = append(tokens, token{start: start, end: i})
				start = -1
			}
			tokens = append(tokens, token{start: i, end: i + len(string(r))})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start: start, end: len(text)})
	}
	return tokens
}

// countTokens returns the deterministic token count used for chunk budgeting.
func countTokens(text string) int {
	return len(tokenize(text))
}

// truncateTokens cuts text after maxTokens word tokens. Non-positive
// maxTokens leaves the text untouched.
func truncateTokens(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	tokens := tokenize(text)
	if len(tokens) <= maxTokens {
		return text
	}
	return text[:tokens[maxTokens-1].end]
}

// chunkText slices text into chunks of at most chunkSize tokens, with the
// last overlap tokens of each chunk repeated at the head of the next one.
// Empty or whitespace-only input produces no chunks.
func chunkText(text string, chunkSize, overlap int) []model.Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize - 1
	}

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []model.Chunk
	step := chunkSize - overlap
	for pos := 0; pos < len(tokens); pos += step {
		end := pos + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		window := tokens[pos:end]
		raw := text[window[0].start:window[len(window)-1].end]
		chunks = append(chunks, model.Chunk{
			Index:      len(chunks),
			Text:       raw,
			TokenCount: len(window),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
