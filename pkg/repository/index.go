package repository

import (
	"context"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

const (
	searchIndexFile   = "search_index.bin"
	metadataIndexFile = "metadata_index.json"
)

// MemorySummary is the metadata index record kept per unit, enough to answer
// filtered listings without touching the blob store.
type MemorySummary struct {
	ID         model.MemoryID       `json:"id"`
	Type       model.MemoryType     `json:"memory_type"`
	Priority   model.MemoryPriority `json:"priority"`
	Status     model.MemoryStatus   `json:"status"`
	Owner      string               `json:"owner,omitempty"`
	Tags       []string             `json:"tags,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
	AccessedAt time.Time            `json:"accessed_at"`
	Relevance  float64              `json:"relevance"`
	Decay      float64              `json:"decay_factor"`
}

// SummaryFilter selects summaries in listing operations
type SummaryFilter func(*MemorySummary) bool

// IndexStore maintains the keyword and metadata indexes over the blob store.
// The keyword index maps lowercased tokens to memory ids and checkpoints to
// disk every few writes; the metadata index is rewritten as JSON on every
// checkpoint.
type IndexStore struct {
	mu              sync.RWMutex
	dir             string
	checkpointEvery int
	writesSince     int

	keywords map[string]map[model.MemoryID]struct{}
	metadata map[model.MemoryID]*MemorySummary
}

func NewIndexStore(baseDir string, checkpointEvery int) (*IndexStore, error) {
	dir := filepath.Join(baseDir, "memory_store", "index")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create index directory", goerr.V("dir", dir))
	}
	if checkpointEvery <= 0 {
		checkpointEvery = 10
	}

	s := &IndexStore{
		dir:             dir,
		checkpointEvery: checkpointEvery,
		keywords:        make(map[string]map[model.MemoryID]struct{}),
		metadata:        make(map[model.MemoryID]*MemorySummary),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *IndexStore) load() error {
	if f, err := os.Open(filepath.Join(s.dir, searchIndexFile)); err == nil {
		defer f.Close()
		var flat map[string][]model.MemoryID
		if err := gob.NewDecoder(f).Decode(&flat); err != nil {
			return goerr.Wrap(model.ErrCorruptedMemory, "search index is unreadable", goerr.V("file", searchIndexFile))
		}
		for token, ids := range flat {
			set := make(map[model.MemoryID]struct{}, len(ids))
			for _, id := range ids {
				set[id] = struct{}{}
			}
			s.keywords[token] = set
		}
	}

	if raw, err := os.ReadFile(filepath.Join(s.dir, metadataIndexFile)); err == nil {
		if err := json.Unmarshal(raw, &s.metadata); err != nil {
			return goerr.Wrap(model.ErrCorruptedMemory, "metadata index is unreadable", goerr.V("file", metadataIndexFile))
		}
	}
	return nil
}

// Summarize builds the index record for a unit.
func Summarize(unit *model.MemoryUnit) *MemorySummary {
	return &MemorySummary{
		ID:         unit.ID,
		Type:       unit.Type,
		Priority:   unit.Priority,
		Status:     unit.Status,
		Owner:      unit.Owner,
		Tags:       unit.Tags,
		CreatedAt:  unit.CreatedAt,
		AccessedAt: unit.AccessedAt,
		Relevance:  unit.Relevance,
		Decay:      unit.DecayFactor,
	}
}

// Index adds or refreshes one unit in both indexes. Every checkpointEvery
// writes the indexes are flushed to disk.
func (s *IndexStore) Index(ctx context.Context, unit *model.MemoryUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropKeywordsLocked(unit.ID)
	for _, token := range ExtractKeywords(unit) {
		set, ok := s.keywords[token]
		if !ok {
			set = make(map[model.MemoryID]struct{})
			s.keywords[token] = set
		}
		set[unit.ID] = struct{}{}
	}
	s.metadata[unit.ID] = Summarize(unit)

	s.writesSince++
	if s.writesSince >= s.checkpointEvery {
		if err := s.checkpointLocked(); err != nil {
			return err
		}
		logging.From(ctx).Debug("checkpointed memory indexes", "entries", len(s.metadata))
	}
	return nil
}

// Remove drops one unit from both indexes.
func (s *IndexStore) Remove(ctx context.Context, id model.MemoryID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.dropKeywordsLocked(id)
	delete(s.metadata, id)

	s.writesSince++
	if s.writesSince >= s.checkpointEvery {
		return s.checkpointLocked()
	}
	return nil
}

func (s *IndexStore) dropKeywordsLocked(id model.MemoryID) {
	for token, set := range s.keywords {
		if _, ok := set[id]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(s.keywords, token)
			}
		}
	}
}

// SearchKeywords returns ids matching any query token, ordered by how many
// tokens they match.
func (s *IndexStore) SearchKeywords(query string) []model.MemoryID {
	tokens := TokenizeQuery(query)
	if len(tokens) == 0 {
		return nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[model.MemoryID]int)
	for _, token := range tokens {
		for id := range s.keywords[token] {
			counts[id]++
		}
	}

	ids := make([]model.MemoryID, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}

// Summary returns the metadata record for one unit.
func (s *IndexStore) Summary(id model.MemoryID) (*MemorySummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.metadata[id]
	if !ok {
		return nil, false
	}
	clone := *rec
	return &clone, true
}

// List returns summaries passing every filter, newest first.
func (s *IndexStore) List(filters ...SummaryFilter) []*MemorySummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*MemorySummary
	for _, rec := range s.metadata {
		match := true
		for _, f := range filters {
			if !f(rec) {
				match = false
				break
			}
		}
		if match {
			clone := *rec
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of indexed units.
func (s *IndexStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.metadata)
}

// Checkpoint forces both indexes to disk.
func (s *IndexStore) Checkpoint(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointLocked()
}

func (s *IndexStore) checkpointLocked() error {
	flat := make(map[string][]model.MemoryID, len(s.keywords))
	for token, set := range s.keywords {
		ids := make([]model.MemoryID, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		flat[token] = ids
	}

	path := filepath.Join(s.dir, searchIndexFile)
	f, err := os.Create(path + ".tmp")
	if err != nil {
		return goerr.Wrap(err, "failed to create search index file", goerr.V("path", path))
	}
	if err := gob.NewEncoder(f).Encode(flat); err != nil {
		f.Close()
		return goerr.Wrap(err, "failed to encode search index")
	}
	if err := f.Close(); err != nil {
		return goerr.Wrap(err, "failed to close search index file")
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return goerr.Wrap(err, "failed to move search index into place", goerr.V("path", path))
	}

	raw, err := json.MarshalIndent(s.metadata, "", "  ")
	if err != nil {
		return goerr.Wrap(err, "failed to encode metadata index")
	}
	metaPath := filepath.Join(s.dir, metadataIndexFile)
	if err := os.WriteFile(metaPath+".tmp", raw, 0o644); err != nil {
		return goerr.Wrap(err, "failed to write metadata index", goerr.V("path", metaPath))
	}
	if err := os.Rename(metaPath+".tmp", metaPath); err != nil {
		return goerr.Wrap(err, "failed to move metadata index into place", goerr.V("path", metaPath))
	}

	s.writesSince = 0
	return nil
}

// Reset clears both indexes in memory, ahead of a rebuild.
func (s *IndexStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = make(map[string]map[model.MemoryID]struct{})
	s.metadata = make(map[model.MemoryID]*MemorySummary)
	s.writesSince = 0
}

// ExtractKeywords returns the lowercased tokens indexed for a unit: content
// strings, context and metadata values, and tags. Tokens shorter than three
// characters are skipped.
func ExtractKeywords(unit *model.MemoryUnit) []string {
	seen := make(map[string]struct{})

	var collect func(texts ...string)
	collect = func(texts ...string) {
		for _, text := range texts {
			for _, token := range TokenizeQuery(text) {
				seen[token] = struct{}{}
			}
		}
	}

	collect(unit.Content.Texts()...)
	collect(unit.Tags...)
	for k, v := range unit.Context {
		collect(k)
		if s, ok := v.(string); ok {
			collect(s)
		}
	}
	for k, v := range unit.Metadata {
		collect(k)
		if s, ok := v.(string); ok {
			collect(s)
		}
	}

	out := make([]string, 0, len(seen))
	for token := range seen {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

// TokenizeQuery lowercases and splits text into index tokens.
func TokenizeQuery(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 3 {
			out = append(out, f)
		}
	}
	return out
}
