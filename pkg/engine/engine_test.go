package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/llbmem/pkg/adapter"
	"github.com/m-mizutani/llbmem/pkg/engine"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/usecase/memory"
	"github.com/m-mizutani/llbmem/pkg/usecase/truthbase"
)

// cannedClient replays a fixed generation result.
type cannedClient struct {
	response string
	prompts  []string
}

func (c *cannedClient) GenerateContent(ctx context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.response, nil
}

func newEngine(t *testing.T, opts ...engine.Option) *engine.Engine {
	t.Helper()
	ctx := context.Background()
	base := t.TempDir()

	cfg := model.DefaultConfig()
	cfg.BaseDir = base

	blobs, err := repository.NewBlobStore(base, 0)
	gt.NoError(t, err)
	indexes, err := repository.NewIndexStore(base, cfg.Storage.CheckpointEvery)
	gt.NoError(t, err)

	mgr := memory.New(
		adapter.NewLocalEmbedder(cfg.Embedding.MemoryDimension),
		adapter.NewChromemIndex(),
		blobs,
		indexes,
		cfg,
	)
	truth, err := truthbase.New(
		adapter.NewLocalEmbedder(cfg.Embedding.Dimension),
		adapter.NewChromemIndex(),
		cfg,
	)
	gt.NoError(t, err)

	eng := engine.New(mgr, truth, opts...)
	gt.NoError(t, eng.Initialize(ctx))
	t.Cleanup(func() {
		_ = eng.Shutdown(context.Background())
	})
	return eng
}

func seedExperience(t *testing.T, eng *engine.Engine, ctx context.Context) {
	t.Helper()
	_, err := eng.StoreExperience(ctx, &model.Experience{
		EventType:      "contract_negotiation",
		Description:    "closed marketplace deal with acme",
		Owner:          "diana",
		Outcome:        map[string]any{"success": true},
		LessonsLearned: []string{"stay firm"},
		Emotional: &model.EmotionalObservation{
			Response:  0.8,
			Valence:   0.8,
			Intensity: 0.9,
			Behavior:  "negotiated hard",
		},
	})
	gt.NoError(t, err)
}

func TestEngineRetrieveKnowledgeCombinesSources(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	seedExperience(t, eng, ctx)

	_, err := eng.IndexDocument(ctx, "docs/marketplace.md",
		"marketplace deal terms require a legal review before signing",
		map[string]string{"section": "deals"})
	gt.NoError(t, err)

	answer, err := eng.RetrieveKnowledge(ctx, &model.RetrievalQuery{
		QueryType:   model.QueryDecision,
		Description: "marketplace deal with acme",
	})
	gt.NoError(t, err)
	gt.NotNil(t, answer.PrimaryRecommendation)
	gt.Number(t, answer.SourcesUsed.Episodic).GreaterOrEqual(1)
	gt.Number(t, answer.SourcesUsed.TruthBase).GreaterOrEqual(1)
	gt.Number(t, answer.Confidence).GreaterOrEqual(0.5)

	var cited bool
	for _, ev := range answer.SupportingEvidence {
		if ev == fmt.Sprintf("[Source: docs/marketplace.md#deals] %s",
			"marketplace deal terms require a legal review before signing") {
			cited = true
		}
	}
	gt.True(t, cited)
}

func TestEngineRetrieveKnowledgeEmpty(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	answer, err := eng.RetrieveKnowledge(ctx, &model.RetrievalQuery{
		QueryType:   model.QueryDecision,
		Description: "nothing was ever stored about this",
	})
	gt.NoError(t, err)
	gt.V(t, answer.Confidence).Equal(0.0)
	gt.V(t, answer.SourcesUsed.Episodic).Equal(0)

	_, err = eng.RetrieveKnowledge(ctx, nil)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestEngineAnswerGrounded(t *testing.T) {
	ctx := context.Background()
	gen := &cannedClient{
		response: "Service Y launched in 2022. [Source: docs/services.md#service-y]",
	}
	eng := newEngine(t, engine.WithGenerateClient(gen))

	_, err := eng.IndexDocument(ctx, "docs/services.md",
		"Service Y launched in 2022 as the marketplace integration layer.",
		map[string]string{"section": "service-y"})
	gt.NoError(t, err)

	answer, err := eng.AnswerGrounded(ctx, "when did Service Y launch", true)
	gt.NoError(t, err)
	gt.S(t, answer.Answer).Contains("2022")
	gt.A(t, answer.Citations).Length(1)
	gt.V(t, answer.Citations[0].File).Equal("docs/services.md")
	gt.V(t, answer.Report.Accuracy).Equal(100.0)
	gt.A(t, answer.Prompt.Sources).Longer(0)

	// the generation prompt carries the retrieved context
	gt.A(t, gen.prompts).Length(1)
	gt.S(t, gen.prompts[0]).Contains("marketplace integration layer")
}

func TestEngineAnswerGroundedRequiresClient(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)

	_, err := eng.AnswerGrounded(ctx, "any question", true)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestEngineStatus(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	seedExperience(t, eng, ctx)

	status := eng.Status(ctx)
	gt.Number(t, status.Memory.Total).GreaterOrEqual(1)
	gt.True(t, status.MemoryHealth.VectorIndex)
	gt.True(t, status.MemoryHealth.BlobStore)
	gt.V(t, status.TruthBase.Queries).Equal(0)
}

func TestEngineRunMaintenance(t *testing.T) {
	ctx := context.Background()
	eng := newEngine(t)
	seedExperience(t, eng, ctx)

	report, err := eng.RunMaintenance(ctx)
	gt.NoError(t, err)
	gt.Number(t, report.Scanned).GreaterOrEqual(1)
}
