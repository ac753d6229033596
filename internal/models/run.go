package models

import "time"

// RunStatus is the terminal state of a collection run.
type RunStatus string

const (
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"  // non-fatal, next trigger retries
	RunStatusAborted   RunStatus = "aborted" // fatal, scheduler halts
)

// BatchResult summarises one persistBatch call.
type BatchResult struct {
	Stored            int `json:"stored"`
	SkippedDuplicates int `json:"skipped_duplicates"`
	SkippedMalformed  int `json:"skipped_malformed"`
	FailedWrites      int `json:"failed_writes"`
}

// Add accumulates another batch into r.
func (r *BatchResult) Add(other BatchResult) {
	r.Stored += other.Stored
	r.SkippedDuplicates += other.SkippedDuplicates
	r.SkippedMalformed += other.SkippedMalformed
	r.FailedWrites += other.FailedWrites
}

// RunReport describes the outcome of one collection run.
type RunReport struct {
	RunID       string    `json:"run_id"`
	Handle      string    `json:"handle"`
	Trigger     string    `json:"trigger,omitempty"` // schedule, manual or mcp
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Pages       int       `json:"pages"`
	Fetched     int       `json:"fetched"`
	BatchResult
	Status     RunStatus `json:"status"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r RunReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
