package truthbase

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/interfaces"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

const defaultOverrideSource = "fact_override"

// FactOverride records an authoritative correction for a topic. The override
// is embedded and upserted under a topic-stable vector id, so a later
// override for the same topic replaces the earlier one everywhere: vector
// index, override file, and citation registry. Last write wins per topic.
func (uc *UseCase) FactOverride(ctx context.Context, topic, content, sourcePath string) (*model.Override, error) {
	if sourcePath == "" {
		sourcePath = defaultOverrideSource
	}
	override := &model.Override{
		Topic:      topic,
		Content:    content,
		SourcePath: sourcePath,
		Section:    topic,
		UpdatedAt:  uc.now(),
	}
	if err := override.Validate(); err != nil {
		return nil, err
	}

	if err := uc.indexOverride(ctx, override); err != nil {
		return nil, err
	}

	uc.mu.Lock()
	uc.overrides[topic] = override
	uc.registerSourceLocked(sourcePath, topic)
	err := uc.saveOverridesLocked()
	uc.mu.Unlock()
	if err != nil {
		return nil, err
	}
	uc.cache.Clear()

	logging.From(ctx).Info("fact override recorded",
		"topic", topic,
		"source_path", sourcePath,
	)
	return override, nil
}

// LookupOverride returns the current override for a topic.
func (uc *UseCase) LookupOverride(topic string) (*model.Override, error) {
	uc.mu.RLock()
	override, ok := uc.overrides[topic]
	uc.mu.RUnlock()
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "no override for topic", goerr.V("topic", topic))
	}
	return override, nil
}

// Overrides returns every current override, one per topic.
func (uc *UseCase) Overrides() []*model.Override {
	uc.mu.RLock()
	defer uc.mu.RUnlock()

	out := make([]*model.Override, 0, len(uc.overrides))
	for _, o := range uc.overrides {
		out = append(out, o)
	}
	return out
}

// indexOverride embeds and upserts the override chunk under its topic-stable
// vector id.
func (uc *UseCase) indexOverride(ctx context.Context, override *model.Override) error {
	vec, err := uc.embedder.Embed(ctx, override.Topic+": "+override.Content)
	if err != nil {
		return goerr.Wrap(err, "failed to embed override", goerr.V("topic", override.Topic))
	}

	point := interfaces.VectorPoint{
		ID:     overrideVectorID(override.Topic),
		Vector: vec,
		Payload: map[string]any{
			"source_path": override.SourcePath,
			"section":     override.Section,
			"text":        override.Content,
			"override":    true,
			"topic":       override.Topic,
		},
	}
	return uc.vectors.Upsert(ctx, model.CollectionTruthBase, []interfaces.VectorPoint{point})
}

func overrideVectorID(topic string) string {
	return "override:" + strings.ToLower(strings.ReplaceAll(topic, " ", "_"))
}

// saveOverridesLocked writes the override file atomically. Caller holds uc.mu.
func (uc *UseCase) saveOverridesLocked() error {
	raw, err := json.MarshalIndent(uc.overrides, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode overrides")
	}

	path := uc.overridePath()
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return goerr.Wrap(err, "failed to create override file", goerr.V("path", tmp))
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return goerr.Wrap(err, "failed to write override file", goerr.V("path", tmp))
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return goerr.Wrap(err, "failed to sync override file", goerr.V("path", tmp))
	}
	if err := f.Close(); err != nil {
		return goerr.Wrap(err, "failed to close override file", goerr.V("path", tmp))
	}
	if err := os.Rename(tmp, path); err != nil {
		return goerr.Wrap(err, "failed to replace override file", goerr.V("path", path))
	}
	return nil
}
