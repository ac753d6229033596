package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/mentionwatch/internal/models"
)

// SnapshotRepository is the storage boundary for mention snapshots.
type SnapshotRepository interface {
	// InsertSnapshot stores snap unless a row with the same PostID exists.
	// It reports whether a row was written; an existing row is not an error.
	InsertSnapshot(ctx context.Context, snap models.MentionSnapshot) (bool, error)

	// Count returns the total number of stored snapshots.
	Count(ctx context.Context) (int, error)

	// GetByPostID returns the snapshot for postID, or nil when none is stored.
	GetByPostID(ctx context.Context, postID string) (*models.MentionSnapshot, error)

	// ListRecent returns up to limit snapshots for handle created at or after
	// since, newest first.
	ListRecent(ctx context.Context, handle string, since time.Time, limit int) ([]models.MentionSnapshot, error)
}

// SnapshotWriter persists pages of raw mentions one item at a time. A bad
// item or a failed write never stops the rest of the page.
type SnapshotWriter struct {
	repo   SnapshotRepository
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// NewSnapshotWriter creates a writer over repo.
func NewSnapshotWriter(repo SnapshotRepository, logger *slog.Logger) *SnapshotWriter {
	return &SnapshotWriter{
		repo:   repo,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// PersistBatch writes items for handle and returns the per-outcome counts.
// When any write failed the counts are still returned together with a
// *RetryableError, so the run can stop and a later trigger can resume.
func (w *SnapshotWriter) PersistBatch(ctx context.Context, handle string, items []models.RawMention) (models.BatchResult, error) {
	var result models.BatchResult
	collectedAt := w.now()

	var lastErr error
	for _, item := range items {
		snap, err := item.ToSnapshot(handle, collectedAt)
		if err != nil {
			result.SkippedMalformed++
			w.logger.Warn("skipping malformed mention", "handle", handle, "post_id", item.ID, "error", err)
			continue
		}
		snap.ID = w.newID()

		inserted, err := w.repo.InsertSnapshot(ctx, snap)
		if err != nil {
			result.FailedWrites++
			lastErr = err
			w.logger.Error("failed to store mention snapshot", "handle", handle, "post_id", snap.PostID, "error", err)
			continue
		}

		if inserted {
			result.Stored++
		} else {
			result.SkippedDuplicates++
		}
	}

	if result.FailedWrites > 0 {
		return result, NewRetryableError(fmt.Errorf("%d of %d snapshot writes failed: %w", result.FailedWrites, len(items), lastErr))
	}
	return result, nil
}

// MemorySnapshotRepository implements an in-memory snapshot repository for
// testing and STORE_DRIVER=memory.
type MemorySnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string]models.MentionSnapshot // post id -> snapshot
}

// NewMemorySnapshotRepository creates an empty repository.
func NewMemorySnapshotRepository() *MemorySnapshotRepository {
	return &MemorySnapshotRepository{
		snapshots: make(map[string]models.MentionSnapshot),
	}
}

// InsertSnapshot stores snap unless its post id is already present.
func (r *MemorySnapshotRepository) InsertSnapshot(ctx context.Context, snap models.MentionSnapshot) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.snapshots[snap.PostID]; exists {
		return false, nil
	}
	r.snapshots[snap.PostID] = snap
	return true, nil
}

// Count returns the number of stored snapshots.
func (r *MemorySnapshotRepository) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots), nil
}

// GetByPostID retrieves a snapshot by its post id.
func (r *MemorySnapshotRepository) GetByPostID(ctx context.Context, postID string) (*models.MentionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.snapshots[postID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

// ListRecent returns up to limit snapshots for handle created at or after
// since, newest first.
func (r *MemorySnapshotRepository) ListRecent(ctx context.Context, handle string, since time.Time, limit int) ([]models.MentionSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var snapshots []models.MentionSnapshot
	for _, snap := range r.snapshots {
		if snap.MentionedHandle == handle && !snap.CreatedAt.Before(since) {
			snapshots = append(snapshots, snap)
		}
	}
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].PostID > snapshots[j].PostID
		}
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})
	if limit > 0 && len(snapshots) > limit {
		snapshots = snapshots[:limit]
	}
	return snapshots, nil
}

// PostIDs returns all stored post ids in ascending order.
func (r *MemorySnapshotRepository) PostIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.snapshots))
	for id := range r.snapshots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
