// Package engine is the top-level facade of the memory engine. It wires the
// memory manager, the truth base and knowledge fusion into the two end-to-end
// paths: cross-stripe knowledge retrieval and grounded answer generation.
package engine

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/usecase/fusion"
	"github.com/m-mizutani/llbmem/pkg/usecase/memory"
	"github.com/m-mizutani/llbmem/pkg/usecase/truthbase"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

type Engine struct {
	memory *memory.Manager
	truth  *truthbase.UseCase
	gen    interfaces.GenerateClient
}

// Option is a functional option for Engine
type Option func(*Engine)

// WithGenerateClient enables AnswerGrounded. Without it the engine still
// retrieves and fuses but cannot generate text.
func WithGenerateClient(gen interfaces.GenerateClient) Option {
	return func(e *Engine) {
		e.gen = gen
	}
}

func New(mem *memory.Manager, truth *truthbase.UseCase, opts ...Option) *Engine {
	e := &Engine{
		memory: mem,
		truth:  truth,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Initialize prepares both subsystems. It must be called before any other
// operation.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.memory.Initialize(ctx); err != nil {
		return err
	}
	return e.truth.Initialize(ctx)
}

func (e *Engine) Shutdown(ctx context.Context) error {
	return e.memory.Shutdown(ctx)
}

// StoreExperience ingests one experience through the memory manager.
func (e *Engine) StoreExperience(ctx context.Context, x *model.Experience) (*memory.StoreResult, error) {
	return e.memory.StoreExperience(ctx, x)
}

// ConsolidateMemories folds the given episodic units into one derived
// semantic unit.
func (e *Engine) ConsolidateMemories(ctx context.Context, ids []model.MemoryID, method model.ConsolidationMethod) (*model.ConsolidationResult, error) {
	return e.memory.ConsolidateMemories(ctx, ids, method)
}

// IndexDocument ingests one document into the truth base.
func (e *Engine) IndexDocument(ctx context.Context, sourcePath, text string, metadata map[string]string) (*truthbase.IndexReport, error) {
	return e.truth.IndexDocument(ctx, sourcePath, text, metadata)
}

// FactOverride records an authoritative correction in the truth base.
func (e *Engine) FactOverride(ctx context.Context, topic, content, sourcePath string) (*model.Override, error) {
	return e.truth.FactOverride(ctx, topic, content, sourcePath)
}

// RetrieveKnowledge answers a query from both experiential memory and the
// truth base. Stripe hits and truth base chunks are fused into one ranked
// answer; with nothing found the answer is the structured empty one.
func (e *Engine) RetrieveKnowledge(ctx context.Context, q *model.RetrievalQuery) (*model.FusedAnswer, error) {
	if q == nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query is nil")
	}

	stripes, err := e.memory.RetrieveStripes(ctx, q)
	if err != nil {
		return nil, err
	}

	chunks, err := e.truth.Retrieve(ctx, q.Description, 0, 0)
	if err != nil {
		return nil, err
	}

	return fusion.Fuse(q.QueryType, stripes, chunks), nil
}

// AnswerGrounded retrieves truth base context for the query, generates an
// answer restricted to that context, and audits the citations in the
// generated text.
func (e *Engine) AnswerGrounded(ctx context.Context, query string, includeCitations bool) (*model.GroundedAnswer, error) {
	if e.gen == nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "no generate client configured")
	}

	chunks, err := e.truth.Retrieve(ctx, query, 0, 0)
	if err != nil {
		return nil, err
	}

	bundle := e.truth.GenerateWithContext(query, chunks, includeCitations)
	text, err := e.gen.GenerateContent(ctx, bundle.Prompt)
	if err != nil {
		return nil, goerr.Wrap(err, "grounded generation failed")
	}

	report := e.truth.ValidateCitations(text)
	logging.From(ctx).Info("grounded answer generated",
		"sources", len(bundle.Sources),
		"citations", report.Total,
		"accuracy", report.Accuracy,
	)

	return &model.GroundedAnswer{
		Answer:    text,
		Prompt:    bundle,
		Citations: truthbase.ExtractCitations(text),
		Report:    report,
	}, nil
}

// Status is the combined operational snapshot of the engine.
type Status struct {
	Memory       *model.MemoryStats    `json:"memory"`
	MemoryHealth memory.Health         `json:"memory_health"`
	TruthBase    *truthbase.TruthStats `json:"truth_base"`
}

func (e *Engine) Status(ctx context.Context) *Status {
	return &Status{
		Memory:       e.memory.Stats(),
		MemoryHealth: e.memory.Health(ctx),
		TruthBase:    e.truth.Stats(),
	}
}

// RebuildIndexes reconstructs the keyword, metadata and vector indexes from
// the persisted blobs.
func (e *Engine) RebuildIndexes(ctx context.Context) (*memory.RebuildReport, error) {
	return e.memory.RebuildIndexes(ctx)
}

// RunMaintenance runs one memory sweep and drops expired truth base cache
// entries.
func (e *Engine) RunMaintenance(ctx context.Context) (*memory.SweepReport, error) {
	report, err := e.memory.RunMaintenance(ctx)
	if err != nil {
		return nil, err
	}
	if dropped := e.truth.CacheGC(); dropped > 0 {
		logging.From(ctx).Debug("dropped expired truth base cache entries", "count", dropped)
	}
	return report, nil
}
