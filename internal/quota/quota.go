// Package quota tracks per-adapter request counts against a monthly budget.
// The ledger is checked before every outbound page request; counts lazily
// reset once a rolling month has elapsed since the last reset timestamp, with
// no background timer.
package quota

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// ErrRateLimited is returned when an adapter's monthly budget is exhausted.
// Fatal for that adapter's run; other adapters continue.
var ErrRateLimited = eris.New("quota: request budget exhausted")

// ResetWindow is the rolling period after which a ledger entry resets.
const ResetWindow = 30 * 24 * time.Hour

// Status is one adapter's ledger entry.
type Status struct {
	Adapter string    `json:"adapter"`
	Count   int       `json:"count"`
	ResetAt time.Time `json:"reset_at"`
}

// Ledger records tracked requests per adapter. Take must be atomic: two
// concurrent requests must never both pass a check only one should.
type Ledger interface {
	// Take checks the adapter's count against limit and increments it,
	// returning the new count. A limit <= 0 is unconstrained. Returns
	// ErrRateLimited when the budget is already spent.
	Take(ctx context.Context, adapter string, limit int) (int, error)

	// Status returns the adapter's current entry, or nil if it has never
	// made a tracked request.
	Status(ctx context.Context, adapter string) (*Status, error)
}

// MemoryLedger is an in-process Ledger for tests and unconstrained runs.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*Status
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]*Status),
		now:     time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (l *MemoryLedger) SetClock(now func() time.Time) { l.now = now }

func (l *MemoryLedger) Take(_ context.Context, adapter string, limit int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	e, ok := l.entries[adapter]
	if !ok {
		e = &Status{Adapter: adapter, ResetAt: now}
		l.entries[adapter] = e
	}
	if now.Sub(e.ResetAt) > ResetWindow {
		e.Count = 0
		e.ResetAt = now
	}
	if limit > 0 && e.Count >= limit {
		return e.Count, eris.Wrapf(ErrRateLimited, "adapter %s at %d/%d", adapter, e.Count, limit)
	}
	e.Count++
	return e.Count, nil
}

func (l *MemoryLedger) Status(_ context.Context, adapter string) (*Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[adapter]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}
