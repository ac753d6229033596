package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/STRATINT/mentionwatch/internal/config"
	"github.com/STRATINT/mentionwatch/internal/ingestion"
	"github.com/STRATINT/mentionwatch/internal/logging"
	"github.com/STRATINT/mentionwatch/internal/models"
)

const (
	historyTimeout   = 5 * time.Second
	historyRetention = 90 * 24 * time.Hour
)

// Trigger sources.
const (
	SourceSchedule = "schedule"
	SourceManual   = "manual"
	SourceMCP      = "mcp"
)

// Runner performs one collection run. *ingestion.Job implements it.
type Runner interface {
	Run(ctx context.Context, firedAt time.Time) (models.RunReport, error)
}

// SkipRecorder is told about triggers dropped by the non-overlap guard.
type SkipRecorder interface {
	TriggerSkipped(source string)
}

// Status is a snapshot of the scheduler for the ops API.
type Status struct {
	Handle   string            `json:"handle"`
	Schedule string            `json:"schedule"`
	Running  bool              `json:"running"`
	Halted   bool              `json:"halted"`
	HaltErr  string            `json:"halt_error,omitempty"`
	NextRun  *time.Time        `json:"next_run,omitempty"`
	LastRun  *models.RunReport `json:"last_run,omitempty"`
}

// CollectionScheduler fires the collection job once a day at the configured
// wall-clock time in the configured timezone. At most one run is active at a
// time; triggers arriving during a run are dropped. A fatal run error stops
// all future firings and is delivered on Fatal().
type CollectionScheduler struct {
	cfg      config.CollectorConfig
	runner   Runner
	logger   *slog.Logger
	recorder SkipRecorder
	history  RunHistory
	now      func() time.Time

	cron    *cron.Cron
	entryID cron.EntryID
	spec    string

	runCtx    context.Context
	cancelRun context.CancelFunc
	active    atomic.Bool
	wg        sync.WaitGroup

	mu      sync.RWMutex
	last    *models.RunReport
	halted  bool
	haltErr error
	stopped bool

	fatal     chan error
	fatalOnce sync.Once
}

// Option customises a CollectionScheduler.
type Option func(*CollectionScheduler)

// WithSkipRecorder attaches a recorder for dropped triggers.
func WithSkipRecorder(r SkipRecorder) Option {
	return func(s *CollectionScheduler) { s.recorder = r }
}

// WithRunHistory records every finished run in h and prunes entries older
// than 90 days.
func WithRunHistory(h RunHistory) Option {
	return func(s *CollectionScheduler) { s.history = h }
}

// WithCronSpec overrides the daily schedule with any cron expression or
// descriptor such as "@every 1m".
func WithCronSpec(spec string) Option {
	return func(s *CollectionScheduler) { s.spec = spec }
}

// New creates a scheduler for runner. It does not start firing until Start.
func New(cfg config.CollectorConfig, runner Runner, logger *slog.Logger, opts ...Option) (*CollectionScheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}

	s := &CollectionScheduler{
		cfg:    cfg,
		runner: runner,
		logger: logger.With("component", "scheduler", "handle", cfg.Handle),
		now:    time.Now,
		spec:   cfg.TimeOfDay.CronSpec(),
		fatal:  make(chan error, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runCtx, s.cancelRun = context.WithCancel(context.Background())

	// Standard 5-field parser (min, hour, dom, month, dow) plus descriptors.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronLogger := logging.CronLogger(s.logger)
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(cfg.Location),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger)),
	)

	id, err := s.cron.AddFunc(s.spec, func() { s.Trigger(SourceSchedule) })
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", s.spec, err)
	}
	s.entryID = id

	return s, nil
}

// Start begins firing on schedule.
func (s *CollectionScheduler) Start() {
	s.logger.Info("starting collection scheduler",
		"time_of_day", s.cfg.TimeOfDay.String(),
		"timezone", s.cfg.Location.String(),
	)
	s.cron.Start()
	if next := s.nextRun(); next != nil {
		s.logger.Info("next collection scheduled", "at", next.Format(time.RFC3339))
	}
}

// Stop stops firing, cancels an active run and waits for it to return or
// for ctx to expire.
func (s *CollectionScheduler) Stop(ctx context.Context) error {
	<-s.cron.Stop().Done()

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancelRun()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("collection scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for active run: %w", ctx.Err())
	}
}

// Fatal delivers the first fatal run error.
func (s *CollectionScheduler) Fatal() <-chan error {
	return s.fatal
}

// Trigger starts a run in the background unless one is already active or
// the scheduler has halted. It reports whether a run was started.
func (s *CollectionScheduler) Trigger(source string) bool {
	// The read lock keeps Stop from waiting on wg before Add below.
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopped {
		s.logger.Warn("trigger ignored, scheduler stopped", "source", source)
		return false
	}
	if s.halted {
		s.logger.Warn("trigger ignored, scheduler halted", "source", source)
		return false
	}

	if !s.active.CompareAndSwap(false, true) {
		s.logger.Warn("collection run still active, dropping trigger", "source", source)
		if s.recorder != nil {
			s.recorder.TriggerSkipped(source)
		}
		return false
	}

	firedAt := s.now()
	s.wg.Add(1)
	go s.run(source, firedAt)
	return true
}

func (s *CollectionScheduler) run(source string, firedAt time.Time) {
	defer s.wg.Done()
	defer s.active.Store(false)

	s.logger.Info("collection triggered", "source", source, "fired_at", firedAt.In(s.cfg.Location))

	report, err := s.runner.Run(s.runCtx, firedAt)
	report.Trigger = source

	s.mu.Lock()
	s.last = &report
	s.mu.Unlock()

	s.recordHistory(report)

	if err != nil && ingestion.IsFatal(err) {
		s.halt(err)
	}
}

// recordHistory uses its own context so runs cancelled by Stop are still
// recorded.
func (s *CollectionScheduler) recordHistory(report models.RunReport) {
	if s.history == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()

	if err := s.history.Record(ctx, report); err != nil {
		s.logger.Error("failed to record run history", "run_id", report.RunID, "error", err)
		return
	}
	if pruned, err := s.history.DeleteOlderThan(ctx, historyRetention); err != nil {
		s.logger.Warn("failed to prune run history", "error", err)
	} else if pruned > 0 {
		s.logger.Debug("pruned run history", "deleted", pruned)
	}
}

func (s *CollectionScheduler) halt(err error) {
	s.mu.Lock()
	s.halted = true
	s.haltErr = err
	s.mu.Unlock()

	s.cron.Remove(s.entryID)
	s.logger.Error("fatal collection error, scheduler halted", "error", err)

	s.fatalOnce.Do(func() {
		s.fatal <- err
	})
}

func (s *CollectionScheduler) isHalted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.halted
}

func (s *CollectionScheduler) nextRun() *time.Time {
	if s.isHalted() {
		return nil
	}
	entry := s.cron.Entry(s.entryID)
	if !entry.Valid() || entry.Next.IsZero() {
		return nil
	}
	next := entry.Next.In(s.cfg.Location)
	return &next
}

// Status returns the current scheduler state.
func (s *CollectionScheduler) Status() Status {
	status := Status{
		Handle:   s.cfg.Handle,
		Schedule: fmt.Sprintf("%s %s", s.cfg.TimeOfDay.String(), s.cfg.Location.String()),
		Running:  s.active.Load(),
		NextRun:  s.nextRun(),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	status.Halted = s.halted
	if s.haltErr != nil {
		status.HaltErr = s.haltErr.Error()
	}
	if s.last != nil {
		last := *s.last
		status.LastRun = &last
	}
	return status
}
