package collector

import (
	"context"
	"fmt"
	"time"

	"github.com/STRATINT/mentionwatch/internal/ingestion"
	"github.com/STRATINT/mentionwatch/internal/models"
	"github.com/STRATINT/mentionwatch/internal/scheduler"
)

// Scheduler is the part of *scheduler.CollectionScheduler the ops surface
// drives.
type Scheduler interface {
	Status() scheduler.Status
	Trigger(source string) bool
}

// History lists finished runs, most recent first.
type History interface {
	List(ctx context.Context, limit int) ([]models.RunReport, error)
}

// Store is the read side of the snapshot store.
type Store interface {
	Count(ctx context.Context) (int, error)
	GetByPostID(ctx context.Context, postID string) (*models.MentionSnapshot, error)
	ListRecent(ctx context.Context, handle string, since time.Time, limit int) ([]models.MentionSnapshot, error)
}

// Overview is the collector state shown by the ops API and the MCP tools.
type Overview struct {
	scheduler.Status
	Budget          ingestion.BudgetState `json:"budget"`
	StoredSnapshots int                   `json:"stored_snapshots"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

// Service combines the scheduler, the search budget and the store behind one
// read/trigger surface shared by HTTP handlers and MCP tools.
type Service struct {
	scheduler Scheduler
	budget    *ingestion.RateBudget
	store     Store
	history   History
	now       func() time.Time
}

// NewService creates a Service. budget and history may be nil.
func NewService(sched Scheduler, budget *ingestion.RateBudget, store Store, history History) *Service {
	return &Service{
		scheduler: sched,
		budget:    budget,
		store:     store,
		history:   history,
		now:       time.Now,
	}
}

// Overview collects the current collector state.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	overview := Overview{
		Status:      s.scheduler.Status(),
		GeneratedAt: s.now().UTC(),
	}
	if s.budget != nil {
		overview.Budget = s.budget.State()
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return overview, fmt.Errorf("failed to count snapshots: %w", err)
	}
	overview.StoredSnapshots = count

	return overview, nil
}

// Trigger requests a collection run through the scheduler's non-overlap
// guard. It reports whether a run was started.
func (s *Service) Trigger(source string) bool {
	return s.scheduler.Trigger(source)
}

// RecentRuns returns up to limit finished runs, most recent first.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]models.RunReport, error) {
	if s.history == nil {
		return []models.RunReport{}, nil
	}
	runs, err := s.history.List(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// RecentMentions returns up to limit stored mentions of the tracked handle
// authored within the last period, newest first.
func (s *Service) RecentMentions(ctx context.Context, period time.Duration, limit int) ([]models.MentionSnapshot, error) {
	handle := s.scheduler.Status().Handle
	since := s.now().Add(-period)

	mentions, err := s.store.ListRecent(ctx, handle, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list mentions: %w", err)
	}
	if mentions == nil {
		mentions = []models.MentionSnapshot{}
	}
	return mentions, nil
}

// Mention returns the stored snapshot for postID, or nil when it was never
// collected.
func (s *Service) Mention(ctx context.Context, postID string) (*models.MentionSnapshot, error) {
	snap, err := s.store.GetByPostID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mention %s: %w", postID, err)
	}
	return snap, nil
}
