package truthbase

import (
	"regexp"

	"github.com/m-mizutani/llbmem/pkg/model"
)

var citationPattern = regexp.MustCompile(`\[Source: ([^#\]]+)#([^\]]+)\]`)

// ExtractCitations parses the [Source: path#section] markers out of a
// generated answer, in order of appearance.
func ExtractCitations(text string) []model.SourceRef {
	matches := citationPattern.FindAllStringSubmatch(text, -1)
	refs := make([]model.SourceRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, model.SourceRef{File: m[1], Section: m[2]})
	}
	return refs
}

// ValidateCitations checks every citation in an answer against the indexed
// sources and recorded overrides. A text with no citations validates
// vacuously.
func (uc *UseCase) ValidateCitations(text string) *model.CitationReport {
	refs := ExtractCitations(text)
	report := &model.CitationReport{Total: len(refs)}
	if len(refs) == 0 {
		report.Accuracy = 100
		return report
	}

	uc.mu.RLock()
	defer uc.mu.RUnlock()

	for _, ref := range refs {
		if sections, ok := uc.sources[ref.File]; ok {
			if _, ok := sections[ref.Section]; ok {
				report.Valid++
				continue
			}
		}
		report.Invalid = append(report.Invalid, ref.File+"#"+ref.Section)
	}
	report.Accuracy = float64(report.Valid) / float64(report.Total) * 100
	return report
}
