package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/usecase/fusion"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

// Per-stripe retrieval budgets and score floors.
const (
	episodicTopK       = 5
	semanticTopK       = 3
	proceduralTopK     = 3
	episodicMinScore   = 0.3
	semanticMinScore   = 0.2
	proceduralMinScore = 0.3
)

// RetrieveKnowledge answers a query with a fused cross-stripe answer. The
// per-stripe candidates come from RetrieveStripes; fusion ranks them and
// attaches provenance.
func (m *Manager) RetrieveKnowledge(ctx context.Context, q *model.RetrievalQuery) (*model.FusedAnswer, error) {
	stripes, err := m.RetrieveStripes(ctx, q)
	if err != nil {
		return nil, err
	}
	return fusion.Fuse(q.QueryType, stripes, nil), nil
}

// RetrieveStripes searches the stripes relevant to the query type and
// returns scored hits per stripe. Every returned unit is reinforced: its
// access counter increments and decay is partially relieved.
func (m *Manager) RetrieveStripes(ctx context.Context, q *model.RetrievalQuery) (*model.StripeResults, error) {
	if q == nil {
		return nil, goerr.Wrap(model.ErrInvalidInput, "query is nil")
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	results := &model.StripeResults{}
	var err error

	switch q.QueryType {
	case model.QueryLearning:
		results.Semantic, err = m.searchStripe(ctx, q, model.MemoryTypeSemantic, semanticTopK, semanticMinScore)
	case model.QueryExecution:
		results.Procedural, err = m.searchStripe(ctx, q, model.MemoryTypeProcedural, proceduralTopK, proceduralMinScore)
		if err == nil {
			results.Episodic, err = m.searchStripe(ctx, q, model.MemoryTypeEpisodic, episodicTopK, episodicMinScore)
		}
	case model.QueryDecision, model.QueryGeneral, "":
		results.Episodic, err = m.searchStripe(ctx, q, model.MemoryTypeEpisodic, episodicTopK, episodicMinScore)
		if err == nil {
			results.Semantic, err = m.searchStripe(ctx, q, model.MemoryTypeSemantic, semanticTopK, semanticMinScore)
		}
		if err == nil {
			results.Procedural, err = m.searchStripe(ctx, q, model.MemoryTypeProcedural, proceduralTopK, proceduralMinScore)
		}
	}
	if err != nil {
		return nil, err
	}

	results.Emotional = m.EmotionalContext(q.Description)

	logging.From(ctx).Debug("retrieved knowledge",
		"query_type", q.QueryType,
		"episodic", len(results.Episodic),
		"semantic", len(results.Semantic),
		"procedural", len(results.Procedural),
	)
	return results, nil
}

// searchStripe combines vector search with the keyword index, scores each
// candidate by its current relevance, and reinforces the returned units.
func (m *Manager) searchStripe(ctx context.Context, q *model.RetrievalQuery, stripe model.MemoryType, topK int, minScore float64) ([]model.MemoryHit, error) {
	now := m.now()

	candidates := make(map[model.MemoryID]float64)

	vec, err := m.embedder.Embed(ctx, q.Description)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}
	vhits, err := m.vectors.Search(ctx, model.CollectionAgentMemories, vec, topK*4, 0,
		map[string]string{"memory_type": string(stripe)})
	if err != nil {
		return nil, err
	}
	for _, h := range vhits {
		candidates[model.MemoryID(h.ID)] = h.Score
	}

	// keyword matches join the candidate set with a neutral vector score
	for _, id := range m.indexes.SearchKeywords(q.Description) {
		if _, ok := candidates[id]; !ok {
			candidates[id] = 0.5
		}
	}

	qctx := &model.QueryContext{Tags: q.ContextTags}
	var hits []model.MemoryHit
	for id, vectorScore := range candidates {
		if h := m.scoreCandidate(ctx, q, stripe, id, vectorScore, now, qctx, minScore); h != nil {
			hits = append(hits, *h)
		}
	}

	// each hit pulls in its first related memories, one hop only, joining
	// with the neutral vector score and the same gates
	if limit := m.cfg.Retrieval.MaxExpansion; limit > 0 {
		for _, h := range hits {
			expanded := 0
			for _, rel := range h.Unit.RelatedMemories {
				if expanded >= limit {
					break
				}
				if _, ok := candidates[rel]; ok {
					continue
				}
				candidates[rel] = 0.5
				expanded++
				if eh := m.scoreCandidate(ctx, q, stripe, rel, 0.5, now, qctx, minScore); eh != nil {
					hits = append(hits, *eh)
				}
			}
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].Unit.ID < hits[j].Unit.ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}

	for _, h := range hits {
		h.Unit.Access(now)
		if err := m.blobs.Save(ctx, h.Unit); err != nil {
			return nil, err
		}
		if err := m.indexes.Index(ctx, h.Unit); err != nil {
			return nil, err
		}
	}
	return hits, nil
}

// scoreCandidate gates one candidate through the stripe, status and filter
// checks, loads it and scores it. Returns nil when the candidate is filtered
// out or unreadable.
func (m *Manager) scoreCandidate(ctx context.Context, q *model.RetrievalQuery, stripe model.MemoryType, id model.MemoryID, vectorScore float64, now time.Time, qctx *model.QueryContext, minScore float64) *model.MemoryHit {
	rec, ok := m.indexes.Summary(id)
	if !ok || rec.Type != stripe {
		return nil
	}
	// Forgotten units never surface, whatever status filter the caller asks for
	if rec.Status == model.StatusForgotten {
		return nil
	}
	// by default only live units surface, consolidated sources are
	// reachable through the derived unit's relationships
	if len(q.Statuses) == 0 && rec.Status != model.StatusActive && rec.Status != model.StatusDecaying {
		return nil
	}
	if !matchesFilters(rec, q) {
		return nil
	}

	unit, err := m.blobs.Load(ctx, id)
	if err != nil {
		m.noteCorrupted(id, err)
		logging.From(ctx).Warn("skipping unreadable memory", "memory_id", id, "error", err)
		return nil
	}

	score := 0.6*unit.CalculateRelevance(now, qctx) + 0.4*clamp01(vectorScore)
	if stripe == model.MemoryTypeProcedural {
		if boost := skillMatch(unit, q.RequiredSkills); boost > 0 {
			score = clamp01(score + boost)
		}
	}
	if score < minScore {
		return nil
	}
	return &model.MemoryHit{Unit: unit, Relevance: score}
}

func matchesFilters(rec *repository.MemorySummary, q *model.RetrievalQuery) bool {
	if q.Owner != "" && rec.Owner != q.Owner {
		return false
	}
	if len(q.Priorities) > 0 {
		found := false
		for _, p := range q.Priorities {
			if rec.Priority == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Statuses) > 0 {
		found := false
		for _, s := range q.Statuses {
			if rec.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// skillMatch boosts procedural units whose skill name matches a required
// skill.
func skillMatch(unit *model.MemoryUnit, required []string) float64 {
	if unit.Content.Procedural == nil || len(required) == 0 {
		return 0
	}
	skill := strings.ToLower(unit.Content.Procedural.SkillName)
	for _, r := range required {
		if strings.Contains(skill, strings.ToLower(r)) || strings.Contains(strings.ToLower(r), skill) {
			return 0.2
		}
	}
	return 0
}

// EmotionalContext aggregates the emotional ring for a situation: average
// response and valence, behavioral patterns, and the congruence between
// response and outcome.
func (m *Manager) EmotionalContext(situation string) *model.EmotionalAggregate {
	m.emoMu.RLock()
	snapshot := make([]*emotionalEntry, len(m.ring))
	copy(snapshot, m.ring)
	m.emoMu.RUnlock()

	if len(snapshot) == 0 {
		return nil
	}

	tokens := repository.TokenizeQuery(situation)
	var matched []*model.EmotionalContent
	for _, e := range snapshot {
		if situationMatches(e.content.Situation, tokens) {
			matched = append(matched, e.content)
		}
	}
	if len(matched) == 0 {
		return nil
	}

	agg := &model.EmotionalAggregate{SampleSize: len(matched)}
	behaviors := make(map[string]int)
	var congruence float64
	for _, c := range matched {
		agg.AvgResponse += c.EmotionalResponse
		agg.AvgValence += c.OutcomeValence
		congruence += 1 - abs(c.EmotionalResponse-c.OutcomeValence)
		if c.BehavioralResponse != "" {
			behaviors[c.BehavioralResponse]++
		}
	}
	n := float64(len(matched))
	agg.AvgResponse /= n
	agg.AvgValence /= n
	agg.Congruence = congruence / n

	for b := range behaviors {
		agg.BehavioralPatterns = append(agg.BehavioralPatterns, b)
	}
	sort.Slice(agg.BehavioralPatterns, func(i, j int) bool {
		bi, bj := agg.BehavioralPatterns[i], agg.BehavioralPatterns[j]
		if behaviors[bi] != behaviors[bj] {
			return behaviors[bi] > behaviors[bj]
		}
		return bi < bj
	})
	return agg
}

func situationMatches(situation string, queryTokens []string) bool {
	if len(queryTokens) == 0 {
		return true
	}
	lower := strings.ToLower(situation)
	for _, t := range queryTokens {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
