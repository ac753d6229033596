package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/STRATINT/mentionwatch/internal/config"
	"github.com/STRATINT/mentionwatch/internal/models"
)

// Fetcher returns one page of mentions. *SearchClient implements it.
type Fetcher interface {
	FetchPage(ctx context.Context, req PageRequest) (Page, error)
}

// SnapshotStore persists one page of mentions. *SnapshotWriter implements it.
type SnapshotStore interface {
	PersistBatch(ctx context.Context, handle string, items []models.RawMention) (models.BatchResult, error)
}

// Job runs one collection for the configured handle: it computes the window,
// pages through the search results and persists each page as it arrives.
type Job struct {
	cfg      config.CollectorConfig
	fetcher  Fetcher
	store    SnapshotStore
	logger   *slog.Logger
	recorder Recorder
	sleep    SleepFunc
	now      func() time.Time
}

// JobOption customises a Job.
type JobOption func(*Job)

// WithJobSleeper replaces the sleeper used for the pause between pages.
func WithJobSleeper(sleep SleepFunc) JobOption {
	return func(j *Job) { j.sleep = sleep }
}

// WithJobClock replaces the clock used for run timestamps.
func WithJobClock(now func() time.Time) JobOption {
	return func(j *Job) { j.now = now }
}

// WithJobRecorder attaches a measurement sink.
func WithJobRecorder(r Recorder) JobOption {
	return func(j *Job) {
		if r != nil {
			j.recorder = r
		}
	}
}

// NewJob creates a collection job.
func NewJob(cfg config.CollectorConfig, fetcher Fetcher, store SnapshotStore, logger *slog.Logger, opts ...JobOption) *Job {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	j := &Job{
		cfg:      cfg,
		fetcher:  fetcher,
		store:    store,
		logger:   logger.With("handle", cfg.Handle),
		recorder: nopRecorder{},
		sleep:    SleepContext,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Handle returns the tracked handle.
func (j *Job) Handle() string {
	return j.cfg.Handle
}

// CollectionWindow returns the calendar day ending at firedAt in loc.
// The end is firedAt truncated to the minute; the start is the same wall
// clock time on the previous day, so the window spans 23 or 25 hours across
// a DST change.
func CollectionWindow(firedAt time.Time, loc *time.Location) (time.Time, time.Time) {
	local := firedAt.In(loc)
	y, m, d := local.Date()
	end := time.Date(y, m, d, local.Hour(), local.Minute(), 0, 0, loc)
	start := time.Date(y, m, d-1, local.Hour(), local.Minute(), 0, 0, loc)
	return start, end
}

// Run performs one collection for the trigger firedAt.
//
// A non-nil error means the run ended early; pages persisted before the
// failure stay stored. IsFatal(err) tells the caller to stop scheduling.
func (j *Job) Run(ctx context.Context, firedAt time.Time) (models.RunReport, error) {
	start, end := CollectionWindow(firedAt, j.cfg.Location)
	report := models.RunReport{
		RunID:       uuid.New().String(),
		Handle:      j.cfg.Handle,
		WindowStart: start,
		WindowEnd:   end,
		StartedAt:   j.now(),
	}
	logger := j.logger.With("run_id", report.RunID)

	logger.Info("collection run started",
		"window_start", start,
		"window_end", end,
		"max_items", j.cfg.MaxItemsPerRun,
	)

	token := ""
	for {
		remaining := j.cfg.MaxItemsPerRun - report.Fetched
		if remaining <= 0 {
			logger.Info("item cap reached", "fetched", report.Fetched)
			break
		}

		page, err := j.fetcher.FetchPage(ctx, PageRequest{
			Handle:      j.cfg.Handle,
			WindowStart: start,
			WindowEnd:   end,
			NextToken:   token,
			PageSize:    j.requestPageSize(remaining),
		})
		if err != nil {
			return j.finish(logger, report, fmt.Errorf("fetch page %d: %w", report.Pages+1, err))
		}

		items := page.Items
		if len(items) == 0 {
			break
		}
		if len(items) > remaining {
			logger.Debug("truncating page to item cap", "returned", len(items), "kept", remaining)
			items = items[:remaining]
		}

		report.Pages++
		report.Fetched += len(items)

		batch, err := j.store.PersistBatch(ctx, j.cfg.Handle, items)
		report.BatchResult.Add(batch)
		if err != nil {
			return j.finish(logger, report, fmt.Errorf("persist page %d: %w", report.Pages, err))
		}

		logger.Debug("page persisted",
			"page", report.Pages,
			"items", len(items),
			"stored", batch.Stored,
			"duplicates", batch.SkippedDuplicates,
			"malformed", batch.SkippedMalformed,
		)

		if page.NextToken == "" || report.Fetched >= j.cfg.MaxItemsPerRun {
			break
		}
		token = page.NextToken

		if err := j.sleep(ctx, j.cfg.PagePause); err != nil {
			return j.finish(logger, report, fmt.Errorf("pause between pages: %w", err))
		}
	}

	return j.finish(logger, report, nil)
}

// requestPageSize asks for no more than the remaining cap, within the API
// bounds. Anything returned beyond the cap is truncated by Run.
func (j *Job) requestPageSize(remaining int) int {
	size := j.cfg.PageSize
	if remaining < size {
		size = remaining
	}
	return clampPageSize(size)
}

func (j *Job) finish(logger *slog.Logger, report models.RunReport, err error) (models.RunReport, error) {
	report.FinishedAt = j.now()

	switch {
	case err == nil:
		report.Status = models.RunStatusSucceeded
	case IsFatal(err):
		report.Status = models.RunStatusAborted
		report.Error = err.Error()
	default:
		report.Status = models.RunStatusFailed
		report.Error = err.Error()
	}

	attrs := []any{
		"status", report.Status,
		"pages", report.Pages,
		"fetched", report.Fetched,
		"stored", report.Stored,
		"duplicates", report.SkippedDuplicates,
		"malformed", report.SkippedMalformed,
		"failed_writes", report.FailedWrites,
		"duration", report.Duration(),
	}
	switch report.Status {
	case models.RunStatusSucceeded:
		logger.Info("collection run finished", attrs...)
	case models.RunStatusAborted:
		logger.Error("collection run aborted", append(attrs, "error", err)...)
	default:
		logger.Warn("collection run failed", append(attrs, "error", err, "retryable", IsRetryable(err))...)
	}

	j.recorder.RunFinished(report)
	return report, err
}
