package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"signal_bot/internal/models"
)

var ErrDuplicate = errors.New("closure already recorded")

// Ledger is the append-only history of closed signals. Reads return records
// in closure (append) order.
type Ledger interface {
	Record(ctx context.Context, rec models.ClosureRecord) error
	Window(ctx context.Context, destination int64, since time.Time) ([]models.ClosureRecord, error)
	Since(ctx context.Context, since time.Time) ([]models.ClosureRecord, error)
}

// Memory keeps records in process. With a positive retention, records closed
// before now-retention are dropped on append.
type Memory struct {
	mu        sync.RWMutex
	records   []models.ClosureRecord
	seen      map[string]struct{}
	retention time.Duration
	now       func() time.Time
}

func NewMemory(retention time.Duration) *Memory {
	return &Memory{
		seen:      make(map[string]struct{}),
		retention: retention,
		now:       time.Now,
	}
}

func (m *Memory) Record(_ context.Context, rec models.ClosureRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.seen[rec.SignalID]; ok {
		return ErrDuplicate
	}
	m.seen[rec.SignalID] = struct{}{}
	m.records = append(m.records, rec)
	m.prune()
	return nil
}

func (m *Memory) Window(_ context.Context, destination int64, since time.Time) ([]models.ClosureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ClosureRecord, 0)
	for _, rec := range m.records {
		if rec.Destination == destination && !rec.ClosedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) Since(_ context.Context, since time.Time) ([]models.ClosureRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.ClosureRecord, 0)
	for _, rec := range m.records {
		if !rec.ClosedAt.Before(since) {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}

func (m *Memory) prune() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)
	keep := m.records[:0]
	for _, rec := range m.records {
		if rec.ClosedAt.Before(cutoff) {
			delete(m.seen, rec.SignalID)
			continue
		}
		keep = append(keep, rec)
	}
	m.records = keep
}
