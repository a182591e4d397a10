package interfaces

import "context"

// GenerateClient produces text from a grounded prompt. The production
// implementation wraps the Gemini API; tests substitute a canned client.
type GenerateClient interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
}
