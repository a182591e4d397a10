package memory

import (
	"strings"

	"github.com/m-mizutani/llbmem/pkg/model"
)

// conceptVocabulary is the closed domain vocabulary used to tag experiences.
// Matching is case-insensitive substring search over the experience text.
var conceptVocabulary = map[string][]string{
	"business":    {"revenue", "profit", "market", "customer", "sales", "strategy"},
	"technical":   {"code", "algorithm", "system", "database", "api", "performance"},
	"operational": {"process", "efficiency", "automation", "workflow", "optimization"},
	"emotional":   {"motivation", "satisfaction", "stress", "engagement", "confidence"},
}

const maxKeyConcepts = 5

// extractKeyConcepts scans text for domain vocabulary terms and returns up to
// five of them, category-qualified, in stable category order.
func extractKeyConcepts(text string) []string {
	lower := strings.ToLower(text)

	var concepts []string
	for _, category := range []string{"business", "technical", "operational", "emotional"} {
		for _, term := range conceptVocabulary[category] {
			if strings.Contains(lower, term) {
				concepts = append(concepts, category+":"+term)
				if len(concepts) >= maxKeyConcepts {
					return concepts
				}
			}
		}
	}
	return concepts
}

// inferPriority picks a priority for a fresh experience: strong emotional
// impact or an explicit critical marker raises it, trivial chatter lowers it.
func inferPriority(x *model.Experience) model.MemoryPriority {
	if v, ok := x.Context["critical"].(bool); ok && v {
		return model.PriorityCritical
	}
	impact := x.EmotionalImpact
	if impact < 0 {
		impact = -impact
	}
	if impact > 0.7 {
		return model.PriorityHigh
	}
	if len(x.LessonsLearned) > 0 || x.Process != nil {
		return model.PriorityMedium
	}
	if impact < 0.1 && len(x.Outcome) == 0 {
		return model.PriorityLow
	}
	return model.PriorityMedium
}
