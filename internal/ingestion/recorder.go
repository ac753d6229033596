package ingestion

import (
	"time"

	"github.com/STRATINT/mentionwatch/internal/models"
)

// Budget wait reasons reported to a Recorder.
const (
	WaitReasonBudget      = "budget"
	WaitReasonRateLimited = "rate_limited"
)

// Recorder receives ingestion measurements. metrics.IngestionCollector is the
// production implementation.
type Recorder interface {
	BudgetWait(reason string, wait time.Duration)
	PageFetched(items int)
	RunFinished(report models.RunReport)
}

type nopRecorder struct{}

func (nopRecorder) BudgetWait(string, time.Duration) {}
func (nopRecorder) PageFetched(int)                  {}
func (nopRecorder) RunFinished(models.RunReport)     {}
