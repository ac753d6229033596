package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestRawMentionToSnapshot(t *testing.T) {
	collected := time.Date(2024, 3, 2, 0, 5, 0, 0, time.UTC)

	t.Run("valid mention", func(t *testing.T) {
		raw := RawMention{
			ID:            "1763",
			AuthorID:      "42",
			CreatedAt:     "2024-03-01T12:30:45.000Z",
			PublicMetrics: json.RawMessage(`{"like_count":3,"reply_count":1,"retweet_count":0,"quote_count":0}`),
		}

		snap, err := raw.ToSnapshot("@alephium", collected)
		if err != nil {
			t.Fatalf("ToSnapshot returned error: %v", err)
		}
		if snap.PostID != "1763" || snap.AuthorID != "42" {
			t.Errorf("unexpected ids: %+v", snap)
		}
		if snap.MentionedHandle != "alephium" {
			t.Errorf("expected handle without @, got %q", snap.MentionedHandle)
		}
		want := time.Date(2024, 3, 1, 12, 30, 45, 0, time.UTC)
		if !snap.CreatedAt.Equal(want) {
			t.Errorf("expected created_at %v, got %v", want, snap.CreatedAt)
		}
		if !snap.CollectedAt.Equal(collected) {
			t.Errorf("expected collected_at %v, got %v", collected, snap.CollectedAt)
		}
		if string(snap.EngagementMetrics) != string(raw.PublicMetrics) {
			t.Errorf("engagement metrics not kept verbatim: %s", snap.EngagementMetrics)
		}
	})

	t.Run("missing metrics default to empty object", func(t *testing.T) {
		raw := RawMention{ID: "1", CreatedAt: "2024-03-01T12:30:45Z"}
		snap, err := raw.ToSnapshot("alephium", collected)
		if err != nil {
			t.Fatalf("ToSnapshot returned error: %v", err)
		}
		if string(snap.EngagementMetrics) != "{}" {
			t.Errorf("expected {}, got %s", snap.EngagementMetrics)
		}
	})

	tests := map[string]RawMention{
		"missing id":      {CreatedAt: "2024-03-01T12:30:45Z"},
		"bad timestamp":   {ID: "2", CreatedAt: "yesterday"},
		"empty timestamp": {ID: "3"},
		"invalid metrics": {ID: "4", CreatedAt: "2024-03-01T12:30:45Z", PublicMetrics: json.RawMessage(`{"like_count":`)},
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := raw.ToSnapshot("alephium", collected)
			var malformed *MalformedItemError
			if !errors.As(err, &malformed) {
				t.Fatalf("expected MalformedItemError, got %v", err)
			}
		})
	}
}

func TestNormalizeHandle(t *testing.T) {
	tests := map[string]string{
		"@alephium":   "alephium",
		" alephium ":  "alephium",
		"alephium":    "alephium",
		"  @x_dev   ": "x_dev",
	}
	for input, want := range tests {
		if got := NormalizeHandle(input); got != want {
			t.Errorf("NormalizeHandle(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestBatchResultAdd(t *testing.T) {
	total := BatchResult{Stored: 1}
	total.Add(BatchResult{Stored: 2, SkippedDuplicates: 3, SkippedMalformed: 1, FailedWrites: 1})

	want := BatchResult{Stored: 3, SkippedDuplicates: 3, SkippedMalformed: 1, FailedWrites: 1}
	if total != want {
		t.Errorf("got %+v, want %+v", total, want)
	}
}
