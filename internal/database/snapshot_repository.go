package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/STRATINT/mentionwatch/internal/models"
)

// SnapshotRepository stores mention snapshots in tweet_snapshots.
type SnapshotRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSnapshotRepository creates a snapshot repository for db.
func NewSnapshotRepository(db *sql.DB, dialect Dialect) *SnapshotRepository {
	return &SnapshotRepository{db: db, dialect: dialect}
}

// InsertSnapshot writes snap unless its post_id is already stored, in which
// case it returns false and no error.
func (r *SnapshotRepository) InsertSnapshot(ctx context.Context, snap models.MentionSnapshot) (bool, error) {
	query := r.bind(`
		INSERT INTO tweet_snapshots (
			id, post_id, author_id, mentioned_username, created_at, saved_at, public_metrics
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (post_id) DO NOTHING
	`)

	metrics := string(snap.EngagementMetrics)
	if metrics == "" {
		metrics = "{}"
	}

	result, err := r.db.ExecContext(ctx, query,
		snap.ID,
		snap.PostID,
		snap.AuthorID,
		snap.MentionedHandle,
		snap.CreatedAt.UTC(),
		snap.CollectedAt.UTC(),
		metrics,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert snapshot %s: %w", snap.PostID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// Count returns the total number of stored snapshots.
func (r *SnapshotRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM tweet_snapshots").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return count, nil
}

// GetByPostID returns the snapshot for postID, or nil when none is stored.
func (r *SnapshotRepository) GetByPostID(ctx context.Context, postID string) (*models.MentionSnapshot, error) {
	query := r.bind(`
		SELECT id, post_id, author_id, mentioned_username, created_at, saved_at, public_metrics
		FROM tweet_snapshots
		WHERE post_id = ?
	`)

	snap, err := scanSnapshot(r.db.QueryRowContext(ctx, query, postID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot %s: %w", postID, err)
	}
	return snap, nil
}

// ListRecent returns up to limit snapshots for handle created at or after
// since, newest first.
func (r *SnapshotRepository) ListRecent(ctx context.Context, handle string, since time.Time, limit int) ([]models.MentionSnapshot, error) {
	query := r.bind(`
		SELECT id, post_id, author_id, mentioned_username, created_at, saved_at, public_metrics
		FROM tweet_snapshots
		WHERE mentioned_username = ? AND created_at >= ?
		ORDER BY created_at DESC
		LIMIT ?
	`)

	rows, err := r.db.QueryContext(ctx, query, handle, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []models.MentionSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, *snap)
	}
	return snapshots, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*models.MentionSnapshot, error) {
	var (
		snap    models.MentionSnapshot
		metrics []byte
	)
	if err := row.Scan(
		&snap.ID,
		&snap.PostID,
		&snap.AuthorID,
		&snap.MentionedHandle,
		&snap.CreatedAt,
		&snap.CollectedAt,
		&metrics,
	); err != nil {
		return nil, err
	}
	snap.EngagementMetrics = metrics
	snap.CreatedAt = snap.CreatedAt.UTC()
	snap.CollectedAt = snap.CollectedAt.UTC()
	return &snap, nil
}

// bind rewrites ? placeholders for the repository's dialect.
func (r *SnapshotRepository) bind(query string) string {
	return bindQuery(r.dialect, query)
}

func bindQuery(dialect Dialect, query string) string {
	if dialect == DialectSQLite {
		return query
	}

	var b strings.Builder
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteString(dialect.placeholder(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
