package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/STRATINT/mentionwatch/internal/models"
)

// RunHistory stores finished run reports. *database.RunRepository and
// *MemoryRunHistory implement it.
type RunHistory interface {
	Record(ctx context.Context, report models.RunReport) error
	List(ctx context.Context, limit int) ([]models.RunReport, error)
	DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// MemoryRunHistory keeps run reports in process memory.
type MemoryRunHistory struct {
	mu   sync.RWMutex
	runs []models.RunReport
	now  func() time.Time
}

// NewMemoryRunHistory creates an empty history.
func NewMemoryRunHistory() *MemoryRunHistory {
	return &MemoryRunHistory{now: time.Now}
}

func (h *MemoryRunHistory) Record(ctx context.Context, report models.RunReport) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, report)
	return nil
}

// List returns up to limit runs, most recent first.
func (h *MemoryRunHistory) List(ctx context.Context, limit int) ([]models.RunReport, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	runs := append([]models.RunReport(nil), h.runs...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (h *MemoryRunHistory) DeleteOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-age)
	kept := h.runs[:0]
	var deleted int64
	for _, run := range h.runs {
		if run.StartedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, run)
	}
	h.runs = kept
	return deleted, nil
}
