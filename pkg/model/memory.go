package model

import (
	"time"

	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// MemoryType identifies the stripe a memory unit belongs to
type MemoryType string

const (
	MemoryTypeEpisodic     MemoryType = "episodic"
	MemoryTypeSemantic     MemoryType = "semantic"
	MemoryTypeProcedural   MemoryType = "procedural"
	MemoryTypeEmotional    MemoryType = "emotional"
	MemoryTypeReflection   MemoryType = "reflection_insight"
	MemoryTypeMetaPattern  MemoryType = "meta_pattern"
	MemoryTypeConsolidated MemoryType = "consolidated_summary"
)

type MemoryPriority string

const (
	PriorityCritical MemoryPriority = "critical"
	PriorityHigh     MemoryPriority = "high"
	PriorityMedium   MemoryPriority = "medium"
	PriorityLow      MemoryPriority = "low"
	PriorityArchival MemoryPriority = "archival"
)

// Weight returns the importance weight of the priority level
func (p MemoryPriority) Weight() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.8
	case PriorityMedium:
		return 0.6
	case PriorityLow:
		return 0.4
	case PriorityArchival:
		return 0.2
	default:
		return 0.5
	}
}

type MemoryStatus string

const (
	StatusActive       MemoryStatus = "active"
	StatusDecaying     MemoryStatus = "decaying"
	StatusConsolidated MemoryStatus = "consolidated"
	StatusArchived     MemoryStatus = "archived"
	StatusForgotten    MemoryStatus = "forgotten"
)

// MemoryUnit is the envelope shared by every memory stripe. The per-stripe
// payload is the single non-nil branch of Content, tagged by Type.
type MemoryUnit struct {
	ID       MemoryID       `json:"id"`
	Type     MemoryType     `json:"memory_type"`
	Priority MemoryPriority `json:"priority"`
	Owner    string         `json:"owner"`

	Content  MemoryContent  `json:"content"`
	Context  map[string]any `json:"context,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	AccessedAt time.Time  `json:"accessed_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`

	Confidence  float64 `json:"confidence"`
	Relevance   float64 `json:"relevance"`
	DecayFactor float64 `json:"decay_factor"`
	AccessCount int     `json:"access_count"`

	RelatedMemories []MemoryID   `json:"related_memories,omitempty"`
	Status          MemoryStatus `json:"status"`
	Version         int          `json:"version"`
}

// NewMemoryUnit creates a unit with fresh scores and Active status.
func NewMemoryUnit(memType MemoryType, owner string, content MemoryContent, now time.Time) *MemoryUnit {
	return &MemoryUnit{
		ID:         NewMemoryID(),
		Type:       memType,
		Priority:   PriorityMedium,
		Owner:      owner,
		Content:    content,
		Context:    map[string]any{},
		Metadata:   map[string]any{},
		CreatedAt:  now,
		AccessedAt: now,
		UpdatedAt:  now,
		Confidence: 1.0,
		Relevance:  1.0,
		Status:     StatusActive,
		Version:    1,
	}
}

// QueryContext carries the situational hints used by relevance scoring.
type QueryContext struct {
	Tags []string
}

// CalculateRelevance scores the unit against the current time and an optional
// query context. The result is clamped to [0, 1].
//
//	recency      = 1 / (1 + hours_since_access * 0.1)
//	frequency    = min(1, access_count / 10)
//	importance   = priority weight
//	emotional    = 1 + |valence| * 0.5
//	context_bias = 1 + 0.2 * |tag overlap|
func (u *MemoryUnit) CalculateRelevance(now time.Time, qctx *QueryContext) float64 {
	hours := now.Sub(u.AccessedAt).Hours()
	if hours < 0 {
		hours = 0
	}
	recency := 1 / (1 + hours*0.1)

	frequency := float64(u.AccessCount) / 10
	if frequency > 1 {
		frequency = 1
	}

	importance := u.Priority.Weight()

	emotional := 1 + abs(u.emotionalValence())*0.5

	contextBias := 1.0
	if qctx != nil {
		overlap := tagOverlap(u.Tags, qctx.Tags)
		contextBias = 1 + float64(overlap)*0.2
	}

	relevance := recency*0.30 + frequency*0.20 + importance*0.25 +
		emotional*0.15 + contextBias*0.10
	return clamp01(relevance)
}

// emotionalValence returns the valence used by the emotional scoring factor.
// Only episodic and emotional stripes carry one; other stripes score neutral.
func (u *MemoryUnit) emotionalValence() float64 {
	switch {
	case u.Content.Episodic != nil:
		return u.Content.Episodic.EmotionalImpact
	case u.Content.Emotional != nil:
		return u.Content.Emotional.EmotionalResponse
	default:
		return 0
	}
}

// ImportanceScore combines priority, confidence and relevance, discounted by
// the accumulated decay.
func (u *MemoryUnit) ImportanceScore() float64 {
	base := (u.Priority.Weight() + u.Confidence + u.Relevance) / 3
	return clamp01(base * (1 - u.DecayFactor))
}

// ApplyDecay advances the decay factor by the per-stripe daily rate applied to
// the inactive period, plus a smaller creation-age component. DecayFactor is
// capped at 0.9 and never decreases here; relevance loses half the same
// increment. Crossing 0.7 flips the unit to Decaying, crossing 0.9 to
// Forgotten.
func (u *MemoryUnit) ApplyDecay(now time.Time, rate float64) {
	daysSinceAccess := now.Sub(u.AccessedAt).Hours() / 24
	daysSinceCreation := now.Sub(u.CreatedAt).Hours() / 24
	if daysSinceAccess < 0 {
		daysSinceAccess = 0
	}
	if daysSinceCreation < 0 {
		daysSinceCreation = 0
	}

	accessComponent := daysSinceAccess * rate
	timeComponent := daysSinceCreation * rate * 0.2
	if timeComponent > 0.5 {
		timeComponent = 0.5
	}

	increment := timeComponent + accessComponent
	u.DecayFactor = min(0.9, u.DecayFactor+increment)
	u.Relevance = max(0, u.Relevance-increment*0.5)

	if u.Status == StatusActive || u.Status == StatusDecaying {
		if u.DecayFactor >= 0.9 {
			u.Status = StatusForgotten
		} else if u.DecayFactor >= 0.7 {
			u.Status = StatusDecaying
		}
	}
}

// Access records a read of the unit: the access counter increments, decay is
// relieved by a bounded amount and relevance gets a small reinforcement.
func (u *MemoryUnit) Access(now time.Time) {
	u.AccessCount++
	u.AccessedAt = now
	u.DecayFactor = max(0, u.DecayFactor-0.05)
	u.Relevance = min(1, u.Relevance+0.01)
}

// ShouldConsolidate reports whether the unit is a consolidation candidate:
// high relevance and accessed within the last 30 days.
func (u *MemoryUnit) ShouldConsolidate(now time.Time) bool {
	hoursSinceAccess := now.Sub(u.AccessedAt).Hours()
	return u.Relevance >= 0.7 && hoursSinceAccess <= 24*30
}

// ShouldArchive reports whether the unit has gone stale: low relevance and no
// access for over 90 days.
func (u *MemoryUnit) ShouldArchive(now time.Time) bool {
	daysSinceAccess := now.Sub(u.AccessedAt).Hours() / 24
	return u.Relevance < 0.3 && daysSinceAccess > 90
}

// Expired reports whether the unit has an expiry in the past.
func (u *MemoryUnit) Expired(now time.Time) bool {
	return u.ExpiresAt != nil && now.After(*u.ExpiresAt)
}

// UpdateContent replaces the content branch, bumps the version and appends an
// entry to the update history kept in metadata.
func (u *MemoryUnit) UpdateContent(content MemoryContent, updatedBy string, now time.Time) {
	u.Content = content
	u.UpdatedAt = now
	u.Version++

	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}
	history, _ := u.Metadata["update_history"].([]any)
	history = append(history, map[string]any{
		"timestamp":  now.Format(time.RFC3339),
		"updated_by": updatedBy,
		"version":    u.Version,
	})
	u.Metadata["update_history"] = history
}

// AddRelationship links another unit by id and records the edge kind in
// metadata. Duplicate ids are ignored.
func (u *MemoryUnit) AddRelationship(id MemoryID, kind string, now time.Time) {
	for _, existing := range u.RelatedMemories {
		if existing == id {
			return
		}
	}
	u.RelatedMemories = append(u.RelatedMemories, id)

	if u.Metadata == nil {
		u.Metadata = map[string]any{}
	}
	rels, _ := u.Metadata["relationships"].(map[string]any)
	if rels == nil {
		rels = map[string]any{}
	}
	rels[string(id)] = map[string]any{
		"type":     kind,
		"added_at": now.Format(time.RFC3339),
	}
	u.Metadata["relationships"] = rels
}

// ConsolidatedInto returns the id of the derived memory this unit was folded
// into, if any.
func (u *MemoryUnit) ConsolidatedInto() (MemoryID, bool) {
	rels, _ := u.Metadata["relationships"].(map[string]any)
	for id, raw := range rels {
		edge, _ := raw.(map[string]any)
		if edge != nil && edge["type"] == "consolidated_into" {
			return MemoryID(id), true
		}
	}
	return "", false
}

func tagOverlap(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(a))
	for _, t := range a {
		set[t] = struct{}{}
	}
	n := 0
	for _, t := range b {
		if _, ok := set[t]; ok {
			n++
		}
	}
	return n
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
