package ingestion

import (
	"sync"
	"time"
)

// Decision is the result of a budget reservation. When Allowed is false the
// caller must wait Wait before asking again.
type Decision struct {
	Allowed bool
	Wait    time.Duration
}

// BudgetState is a point-in-time view of a RateBudget.
type BudgetState struct {
	RequestsUsed int       `json:"requests_used"`
	RequestLimit int       `json:"request_limit"`
	ItemsUsed    int       `json:"items_used"`
	ItemLimit    int       `json:"item_limit"`
	WindowStart  time.Time `json:"window_start"`
	ResetsAt     time.Time `json:"resets_at"`
}

// RateBudget tracks request and item quota inside a fixed window that
// restarts on the first reservation after it expires. One budget belongs to
// one SearchClient.
type RateBudget struct {
	mu sync.Mutex

	requestLimit int
	itemLimit    int
	window       time.Duration

	requestsUsed int
	itemsUsed    int
	windowStart  time.Time

	now func() time.Time
}

// NewRateBudget creates an empty budget. Non-positive limits are raised to 1.
func NewRateBudget(requestLimit, itemLimit int, window time.Duration) *RateBudget {
	if requestLimit < 1 {
		requestLimit = 1
	}
	if itemLimit < 1 {
		itemLimit = 1
	}
	return &RateBudget{
		requestLimit: requestLimit,
		itemLimit:    itemLimit,
		window:       window,
		now:          time.Now,
	}
}

// Window returns the configured window length.
func (b *RateBudget) Window() time.Duration {
	return b.window
}

// TryReserve reserves one request and estimatedItems items if the current
// window has room for both. Estimates above the item limit are clamped so a
// reservation can always succeed in a fresh window.
func (b *RateBudget) TryReserve(estimatedItems int) Decision {
	b.mu.Lock()
	defer b.mu.Unlock()

	if estimatedItems < 0 {
		estimatedItems = 0
	}
	if estimatedItems > b.itemLimit {
		estimatedItems = b.itemLimit
	}

	now := b.now()
	b.rollLocked(now)

	if b.requestsUsed < b.requestLimit && b.itemsUsed+estimatedItems <= b.itemLimit {
		b.requestsUsed++
		b.itemsUsed += estimatedItems
		return Decision{Allowed: true}
	}

	return Decision{Wait: b.windowStart.Add(b.window).Sub(now)}
}

// Exhaust marks the whole budget as spent starting now, so the next
// reservation waits a full window. It returns that wait.
func (b *RateBudget) Exhaust() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.windowStart = b.now()
	b.requestsUsed = b.requestLimit
	b.itemsUsed = b.itemLimit
	return b.window
}

// State returns a copy of the current counters. It never mutates the
// budget: an expired window is reported as empty and starting now.
func (b *RateBudget) State() BudgetState {
	b.mu.Lock()
	defer b.mu.Unlock()

	state := BudgetState{
		RequestsUsed: b.requestsUsed,
		RequestLimit: b.requestLimit,
		ItemsUsed:    b.itemsUsed,
		ItemLimit:    b.itemLimit,
		WindowStart:  b.windowStart,
	}
	if now := b.now(); b.expiredLocked(now) {
		state.RequestsUsed = 0
		state.ItemsUsed = 0
		state.WindowStart = now
	}
	state.ResetsAt = state.WindowStart.Add(b.window)
	return state
}

func (b *RateBudget) expiredLocked(now time.Time) bool {
	return b.windowStart.IsZero() || !now.Before(b.windowStart.Add(b.window))
}

func (b *RateBudget) rollLocked(now time.Time) {
	if b.expiredLocked(now) {
		b.windowStart = now
		b.requestsUsed = 0
		b.itemsUsed = 0
	}
}
