package ingestion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/STRATINT/mentionwatch/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a manually advanced clock whose Sleep advances time instead
// of blocking.
type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) TotalSlept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.slept {
		total += d
	}
	return total
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

// makeMentions returns n valid mentions with ids prefix-0 .. prefix-(n-1).
func makeMentions(prefix string, n int) []models.RawMention {
	items := make([]models.RawMention, n)
	for i := range items {
		items[i] = models.RawMention{
			ID:            fmt.Sprintf("%s-%d", prefix, i),
			AuthorID:      fmt.Sprintf("author-%d", i%7),
			CreatedAt:     "2026-03-01T12:00:00.000Z",
			Text:          "hello @alephium",
			PublicMetrics: []byte(`{"like_count":1,"reply_count":0,"retweet_count":2,"quote_count":0}`),
		}
	}
	return items
}

// recordingRecorder captures measurements for assertions.
type recordingRecorder struct {
	mu    sync.Mutex
	waits map[string][]time.Duration
	pages []int
	runs  []models.RunReport
}

func newRecordingRecorder() *recordingRecorder {
	return &recordingRecorder{waits: make(map[string][]time.Duration)}
}

func (r *recordingRecorder) BudgetWait(reason string, wait time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.waits[reason] = append(r.waits[reason], wait)
}

func (r *recordingRecorder) PageFetched(items int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pages = append(r.pages, items)
}

func (r *recordingRecorder) RunFinished(report models.RunReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, report)
}
