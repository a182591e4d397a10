package memory

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/llbmem/pkg/model"
	"github.com/m-mizutani/llbmem/pkg/repository"
	"github.com/m-mizutani/llbmem/pkg/utils/logging"
)

// SweepReport summarizes one maintenance pass.
type SweepReport struct {
	Scanned      int `json:"scanned"`
	Decayed      int `json:"decayed"`
	Forgotten    int `json:"forgotten"`
	Archived     int `json:"archived"`
	Expired      int `json:"expired"`
	Consolidated int `json:"consolidated"`
	Evicted      int `json:"evicted"`
}

// RunMaintenance performs one full sweep: decay advance, expiry, archival,
// consolidation, capacity eviction, and an index checkpoint. Forgotten and
// archived units keep their blobs but leave the vector index.
func (m *Manager) RunMaintenance(ctx context.Context) (*SweepReport, error) {
	now := m.now()
	report := &SweepReport{}

	var dropVectors []string
	for _, rec := range m.indexes.List() {
		if rec.Status == model.StatusForgotten || rec.Status == model.StatusArchived {
			continue
		}
		report.Scanned++

		unit, err := m.blobs.Load(ctx, rec.ID)
		if err != nil {
			logging.From(ctx).Warn("skipping unreadable memory during sweep",
				"memory_id", rec.ID, "error", err)
			continue
		}

		before := unit.Status
		changed := false

		if unit.Expired(now) {
			unit.Status = model.StatusArchived
			report.Expired++
			changed = true
		} else {
			unit.ApplyDecay(now, m.cfg.DecayRate(unit.Type))
			report.Decayed++
			changed = true

			if unit.Status == model.StatusForgotten && before != model.StatusForgotten {
				report.Forgotten++
			} else if unit.Status != model.StatusForgotten && unit.ShouldArchive(now) {
				unit.Status = model.StatusArchived
				report.Archived++
			}
		}

		if changed {
			unit.UpdatedAt = now
			if err := m.blobs.Save(ctx, unit); err != nil {
				return nil, err
			}
			if err := m.indexes.Index(ctx, unit); err != nil {
				return nil, err
			}
			if unit.Status == model.StatusForgotten || unit.Status == model.StatusArchived {
				dropVectors = append(dropVectors, string(unit.ID))
			}
		}
	}

	if len(dropVectors) > 0 {
		if err := m.dropVectorPoints(ctx, dropVectors); err != nil {
			return nil, err
		}
	}

	results, err := m.Consolidate(ctx)
	if err != nil {
		return nil, err
	}
	report.Consolidated = len(results)

	evicted, err := m.enforceCapacity(ctx)
	if err != nil {
		return nil, err
	}
	report.Evicted = evicted

	if err := m.indexes.Checkpoint(ctx); err != nil {
		return nil, err
	}

	logging.From(ctx).Info("maintenance sweep finished",
		"scanned", report.Scanned,
		"forgotten", report.Forgotten,
		"archived", report.Archived,
		"expired", report.Expired,
		"consolidated", report.Consolidated,
		"evicted", report.Evicted,
	)
	return report, nil
}

// enforceCapacity keeps the episodic stripe at the configured maximum: the
// lowest-importance units are dropped from disk and both indexes, and the
// evicted period is recorded as one consolidated summary unit.
func (m *Manager) enforceCapacity(ctx context.Context) (int, error) {
	live := m.indexes.List(func(rec *repository.MemorySummary) bool {
		return rec.Type == model.MemoryTypeEpisodic &&
			(rec.Status == model.StatusActive || rec.Status == model.StatusDecaying)
	})
	excess := len(live) - m.cfg.Storage.MaxMemories
	if excess <= 0 {
		return 0, nil
	}

	now := m.now()
	units := make([]*model.MemoryUnit, 0, len(live))
	for _, rec := range live {
		unit, err := m.blobs.Load(ctx, rec.ID)
		if err != nil {
			continue
		}
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].ImportanceScore() < units[j].ImportanceScore()
	})
	if excess > len(units) {
		excess = len(units)
	}

	evicted := units[:excess]
	patterns := make(map[string]int)
	owners := make(map[string]struct{})
	var oldest, newest time.Time
	var dropIDs []string

	for i, unit := range evicted {
		if err := m.indexes.Remove(ctx, unit.ID); err != nil {
			return i, err
		}
		if err := m.blobs.Delete(ctx, unit.ID); err != nil {
			return i, err
		}
		dropIDs = append(dropIDs, string(unit.ID))

		patterns[string(unit.Type)]++
		owners[unit.Owner] = struct{}{}
		if oldest.IsZero() || unit.CreatedAt.Before(oldest) {
			oldest = unit.CreatedAt
		}
		if unit.CreatedAt.After(newest) {
			newest = unit.CreatedAt
		}
	}
	if err := m.dropVectorPoints(ctx, dropIDs); err != nil {
		return len(evicted), err
	}

	ownerList := make([]string, 0, len(owners))
	for o := range owners {
		ownerList = append(ownerList, o)
	}
	sort.Strings(ownerList)

	summary := model.NewMemoryUnit(model.MemoryTypeConsolidated, "", model.MemoryContent{
		Summary: &model.SummaryContent{
			TotalMemories: len(evicted),
			RangeStart:    oldest.Format(time.RFC3339),
			RangeEnd:      newest.Format(time.RFC3339),
			Owners:        ownerList,
			Patterns:      patterns,
		},
	}, now)
	summary.Priority = model.PriorityArchival
	if err := m.persist(ctx, summary, ""); err != nil {
		return len(evicted), err
	}

	return len(evicted), nil
}
