package adapter_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/adapter"
)

func TestGeminiEmbedAndGenerate(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	client, err := adapter.NewGemini(ctx, projectID, "us-central1",
		adapter.WithEmbeddingDimension(384))
	gt.NoError(t, err)

	vec, err := client.Embed(ctx, "marketplace deal with acme")
	gt.NoError(t, err)
	gt.A(t, vec).Length(384)

	resp, err := client.GenerateContent(ctx, "Hello, what is the capital of France?")
	gt.NoError(t, err)
	gt.S(t, resp).Contains("Paris")
}
