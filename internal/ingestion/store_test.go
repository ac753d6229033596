package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/mentionwatch/internal/models"
)

func TestSnapshotWriter_PersistBatchIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySnapshotRepository()
	writer := NewSnapshotWriter(repo, discardLogger())

	first := makeMentions("m", 30)
	result, err := writer.PersistBatch(ctx, "@alephium", first)
	if err != nil {
		t.Fatalf("PersistBatch returned error: %v", err)
	}
	if result.Stored != 30 || result.SkippedDuplicates != 0 {
		t.Fatalf("unexpected first result %+v", result)
	}

	// Overlapping batch: 20 already seen, 10 new.
	overlap := append(makeMentions("m", 30)[10:], makeMentions("n", 10)...)
	result, err = writer.PersistBatch(ctx, "alephium", overlap)
	if err != nil {
		t.Fatalf("PersistBatch returned error: %v", err)
	}
	if result.Stored != 10 || result.SkippedDuplicates != 20 {
		t.Errorf("unexpected overlap result %+v", result)
	}

	result, err = writer.PersistBatch(ctx, "alephium", first)
	if err != nil {
		t.Fatalf("PersistBatch returned error: %v", err)
	}
	if result.Stored != 0 || result.SkippedDuplicates != 30 {
		t.Errorf("identical batch should be all duplicates, got %+v", result)
	}

	if count, _ := repo.Count(ctx); count != 40 {
		t.Errorf("expected 40 rows, got %d", count)
	}
}

func TestSnapshotWriter_SnapshotFields(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySnapshotRepository()
	writer := NewSnapshotWriter(repo, discardLogger())
	collected := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	writer.now = func() time.Time { return collected }

	items := []models.RawMention{{
		ID:            "1890",
		AuthorID:      "42",
		CreatedAt:     "2026-03-01T10:11:12.000Z",
		PublicMetrics: json.RawMessage(`{"like_count":3}`),
	}}
	if _, err := writer.PersistBatch(ctx, "@alephium", items); err != nil {
		t.Fatalf("PersistBatch returned error: %v", err)
	}

	snap, err := repo.GetByPostID(ctx, "1890")
	if err != nil || snap == nil {
		t.Fatalf("expected stored snapshot, got %v / %v", snap, err)
	}
	if _, err := uuid.Parse(snap.ID); err != nil {
		t.Errorf("expected a UUID row id, got %q", snap.ID)
	}
	if snap.MentionedHandle != "alephium" || snap.AuthorID != "42" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if !snap.CollectedAt.Equal(collected) {
		t.Errorf("unexpected collected_at %v", snap.CollectedAt)
	}
	if string(snap.EngagementMetrics) != `{"like_count":3}` {
		t.Errorf("metrics must be stored verbatim, got %s", snap.EngagementMetrics)
	}
}

func TestSnapshotWriter_MalformedItemsSkipped(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySnapshotRepository()
	writer := NewSnapshotWriter(repo, discardLogger())

	items := makeMentions("x", 4)
	items[0].ID = ""
	items[2].CreatedAt = "not a time"

	result, err := writer.PersistBatch(ctx, "alephium", items)
	if err != nil {
		t.Fatalf("malformed items must not fail the batch: %v", err)
	}
	if result.Stored != 2 || result.SkippedMalformed != 2 {
		t.Errorf("unexpected result %+v", result)
	}
	if got := repo.PostIDs(); len(got) != 2 || got[0] != "x-1" || got[1] != "x-3" {
		t.Errorf("unexpected stored ids %v", got)
	}
}

func TestMemorySnapshotRepository_ListRecent(t *testing.T) {
	ctx := context.Background()
	repo := NewMemorySnapshotRepository()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		snap := models.MentionSnapshot{
			ID:              uuid.New().String(),
			PostID:          fmt.Sprintf("p-%d", i),
			MentionedHandle: "alephium",
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
		}
		if _, err := repo.InsertSnapshot(ctx, snap); err != nil {
			t.Fatalf("InsertSnapshot: %v", err)
		}
	}
	other := models.MentionSnapshot{ID: uuid.New().String(), PostID: "o-1", MentionedHandle: "other", CreatedAt: base.Add(5 * time.Hour)}
	if _, err := repo.InsertSnapshot(ctx, other); err != nil {
		t.Fatalf("InsertSnapshot: %v", err)
	}

	recent, err := repo.ListRecent(ctx, "alephium", base.Add(time.Hour), 2)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(recent) != 2 || recent[0].PostID != "p-3" || recent[1].PostID != "p-2" {
		t.Errorf("expected newest two mentions of the handle, got %+v", recent)
	}

	all, _ := repo.ListRecent(ctx, "alephium", base, 0)
	if len(all) != 4 {
		t.Errorf("expected 4 mentions without a limit, got %d", len(all))
	}
}
