package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/STRATINT/mentionwatch/internal/auth"
	"github.com/STRATINT/mentionwatch/internal/config"
	"github.com/STRATINT/mentionwatch/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStore(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.StoreConfig
		wantHealth bool
	}{
		{name: "memory", cfg: config.StoreConfig{Driver: "memory"}},
		{
			name:       "sqlite",
			cfg:        config.StoreConfig{Driver: "sqlite", URL: filepath.Join(t.TempDir(), "data", "mentions.db")},
			wantHealth: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store, err := openStore(ctx, tt.cfg, discardLogger())
			if err != nil {
				t.Fatalf("openStore returned error: %v", err)
			}
			defer store.close()

			if (store.health != nil) != tt.wantHealth {
				t.Fatalf("health check present = %v, want %v", store.health != nil, tt.wantHealth)
			}
			if store.health != nil {
				if err := store.health(ctx); err != nil {
					t.Errorf("health check failed: %v", err)
				}
			}

			snap := models.MentionSnapshot{
				ID:              "00000000-0000-0000-0000-000000000001",
				PostID:          "1",
				AuthorID:        "2",
				MentionedHandle: "alephium",
				CreatedAt:       time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
				CollectedAt:     time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC),
			}
			if inserted, err := store.snapshots.InsertSnapshot(ctx, snap); err != nil || !inserted {
				t.Fatalf("InsertSnapshot: inserted=%v err=%v", inserted, err)
			}
			if count, err := store.snapshots.Count(ctx); err != nil || count != 1 {
				t.Errorf("Count = %d, %v", count, err)
			}

			report := models.RunReport{
				RunID:      "00000000-0000-0000-0000-000000000002",
				Handle:     "alephium",
				Status:     models.RunStatusSucceeded,
				StartedAt:  time.Now().UTC(),
				FinishedAt: time.Now().UTC(),
			}
			if err := store.runs.Record(ctx, report); err != nil {
				t.Fatalf("Record: %v", err)
			}
			runs, err := store.runs.List(ctx, 5)
			if err != nil || len(runs) != 1 {
				t.Errorf("List = %d runs, %v", len(runs), err)
			}
		})
	}
}

func TestOpenStoreRejectsMissingURL(t *testing.T) {
	if _, err := openStore(context.Background(), config.StoreConfig{Driver: "postgres"}, discardLogger()); err == nil {
		t.Fatal("expected an error without a database URL")
	}
}

func TestHashPassword(t *testing.T) {
	if code := hashPassword(nil); code != 2 {
		t.Errorf("expected usage exit code 2, got %d", code)
	}
	if code := hashPassword([]string{"a", "b"}); code != 2 {
		t.Errorf("expected usage exit code 2, got %d", code)
	}
	if code := hashPassword([]string{"s3cret"}); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
	hash, err := auth.HashPassword("s3cret")
	if err != nil || !auth.CheckPassword("s3cret", hash) {
		t.Errorf("hash does not verify: %v", err)
	}
}
