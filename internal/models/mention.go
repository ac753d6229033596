package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// RawMention is one post returned by the recent-search API. CreatedAt is kept
// as the raw wire string so that a single bad timestamp does not fail the
// decoding of a whole page.
type RawMention struct {
	ID            string          `json:"id"`
	AuthorID      string          `json:"author_id"`
	CreatedAt     string          `json:"created_at"`
	Text          string          `json:"text,omitempty"`
	PublicMetrics json.RawMessage `json:"public_metrics,omitempty"`
}

// MentionSnapshot is the persisted record of one mention at collection time.
type MentionSnapshot struct {
	ID                string          `json:"id"`      // surrogate row id (UUID)
	PostID            string          `json:"post_id"` // natural key, unique in the store
	AuthorID          string          `json:"author_id"`
	MentionedHandle   string          `json:"mentioned_handle"`
	CreatedAt         time.Time       `json:"created_at"`
	CollectedAt       time.Time       `json:"collected_at"`
	EngagementMetrics json.RawMessage `json:"engagement_metrics"` // stored verbatim
}

// MalformedItemError reports a mention that cannot be turned into a snapshot.
type MalformedItemError struct {
	PostID string
	Reason string
	Err    error
}

func (e *MalformedItemError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed mention %q: %s: %v", e.PostID, e.Reason, e.Err)
	}
	return fmt.Sprintf("malformed mention %q: %s", e.PostID, e.Reason)
}

func (e *MalformedItemError) Unwrap() error {
	return e.Err
}

// NormalizeHandle strips surrounding whitespace and a leading @.
func NormalizeHandle(handle string) string {
	return strings.TrimPrefix(strings.TrimSpace(handle), "@")
}

// ToSnapshot validates the raw mention and converts it into a snapshot for
// the given handle. Missing engagement metrics are stored as an empty object.
func (m RawMention) ToSnapshot(handle string, collectedAt time.Time) (MentionSnapshot, error) {
	if strings.TrimSpace(m.ID) == "" {
		return MentionSnapshot{}, &MalformedItemError{Reason: "missing post id"}
	}

	createdAt, err := time.Parse(time.RFC3339Nano, m.CreatedAt)
	if err != nil {
		return MentionSnapshot{}, &MalformedItemError{PostID: m.ID, Reason: "unparseable created_at", Err: err}
	}

	metrics := m.PublicMetrics
	if len(metrics) == 0 || string(metrics) == "null" {
		metrics = json.RawMessage(`{}`)
	} else if !json.Valid(metrics) {
		return MentionSnapshot{}, &MalformedItemError{PostID: m.ID, Reason: "invalid public_metrics payload"}
	}

	return MentionSnapshot{
		PostID:            m.ID,
		AuthorID:          m.AuthorID,
		MentionedHandle:   NormalizeHandle(handle),
		CreatedAt:         createdAt.UTC(),
		CollectedAt:       collectedAt.UTC(),
		EngagementMetrics: metrics,
	}, nil
}
