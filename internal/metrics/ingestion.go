package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/STRATINT/mentionwatch/internal/models"
)

// IngestionCollector records collection runs, pages, budget waits and
// dropped triggers.
type IngestionCollector struct {
	runs              *prometheus.CounterVec
	items             *prometheus.CounterVec
	pages             prometheus.Counter
	fetchedItems      prometheus.Counter
	budgetWaits       *prometheus.CounterVec
	budgetWaitSeconds *prometheus.CounterVec
	skippedTriggers   *prometheus.CounterVec
	runDuration       prometheus.Histogram
	lastSuccess       prometheus.Gauge
}

// NewIngestionCollector registers the ingestion metrics on registry.
func NewIngestionCollector(registry *prometheus.Registry) (*IngestionCollector, error) {
	c := &IngestionCollector{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "runs_total",
			Help:      "Collection runs by terminal status.",
		}, []string{"status"}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "items_total",
			Help:      "Mentions handled by the snapshot store, by outcome.",
		}, []string{"outcome"}),
		pages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "pages_total",
			Help:      "Search result pages fetched.",
		}),
		fetchedItems: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "items_fetched_total",
			Help:      "Mentions returned by the search API.",
		}),
		budgetWaits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "budget_waits_total",
			Help:      "Waits for the rate budget, by reason.",
		}, []string{"reason"}),
		budgetWaitSeconds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "budget_wait_seconds_total",
			Help:      "Time spent waiting for the rate budget, by reason.",
		}, []string{"reason"}),
		skippedTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "skipped_triggers_total",
			Help:      "Triggers dropped because a run was still active.",
		}, []string{"source"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock duration of collection runs.",
			Buckets:   []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "collector",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
	}

	for _, col := range []prometheus.Collector{
		c.runs, c.items, c.pages, c.fetchedItems, c.budgetWaits,
		c.budgetWaitSeconds, c.skippedTriggers, c.runDuration, c.lastSuccess,
	} {
		if err := registry.Register(col); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// BudgetWait records a rate-budget wait.
func (c *IngestionCollector) BudgetWait(reason string, wait time.Duration) {
	c.budgetWaits.WithLabelValues(reason).Inc()
	c.budgetWaitSeconds.WithLabelValues(reason).Add(wait.Seconds())
}

// PageFetched records one fetched search page.
func (c *IngestionCollector) PageFetched(items int) {
	c.pages.Inc()
	c.fetchedItems.Add(float64(items))
}

// RunFinished records the outcome of a collection run.
func (c *IngestionCollector) RunFinished(report models.RunReport) {
	c.runs.WithLabelValues(string(report.Status)).Inc()
	c.items.WithLabelValues("stored").Add(float64(report.Stored))
	c.items.WithLabelValues("duplicate").Add(float64(report.SkippedDuplicates))
	c.items.WithLabelValues("malformed").Add(float64(report.SkippedMalformed))
	c.items.WithLabelValues("failed").Add(float64(report.FailedWrites))
	c.runDuration.Observe(report.Duration().Seconds())
	if report.Status == models.RunStatusSucceeded {
		c.lastSuccess.Set(float64(report.FinishedAt.Unix()))
	}
}

// TriggerSkipped records a trigger dropped by the non-overlap guard.
func (c *IngestionCollector) TriggerSkipped(source string) {
	c.skippedTriggers.WithLabelValues(source).Inc()
}
