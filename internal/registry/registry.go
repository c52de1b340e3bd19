package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"signal_bot/internal/models"
)

// Registry owns the live (non-closed) signals. All mutation goes through its
// methods; callers only ever see copies.
type Registry struct {
	mu      sync.RWMutex
	signals map[string]models.Signal
	newID   func() string
}

func New() *Registry {
	return &Registry{
		signals: make(map[string]models.Signal),
		newID:   uuid.NewString,
	}
}

// Create validates req and registers a PENDING signal. Invalid requests fail
// with models.ErrInvalidSignal and never enter the registry.
func (r *Registry) Create(req models.SignalRequest, now time.Time) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.newID()
	for _, taken := r.signals[id]; taken; _, taken = r.signals[id] {
		id = r.newID()
	}
	r.signals[id] = models.NewSignal(id, req, now)
	return id, nil
}

func (r *Registry) Get(id string) (models.Signal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.signals[id]
	return s, ok
}

// ForEachActive calls fn on a snapshot of the active set; fn may call back
// into the registry. Iteration order is unspecified.
func (r *Registry) ForEachActive(fn func(models.Signal)) {
	for _, s := range r.Snapshot() {
		fn(s)
	}
}

func (r *Registry) Snapshot() []models.Signal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Signal, 0, len(r.signals))
	for _, s := range r.signals {
		out = append(out, s)
	}
	return out
}

// Pairs returns the distinct pairs referenced by active signals.
func (r *Registry) Pairs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(r.signals))
	out := make([]string, 0, len(r.signals))
	for _, s := range r.signals {
		if _, ok := seen[s.Pair]; ok {
			continue
		}
		seen[s.Pair] = struct{}{}
		out = append(out, s.Pair)
	}
	sort.Strings(out)
	return out
}

// Remove is idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.signals, id)
}

// Apply stores an evaluated state. A closed state removes the signal. It
// reports false when the id is no longer active, in which case nothing changes.
func (r *Registry) Apply(s models.Signal) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.signals[s.ID]
	if !ok {
		return false
	}
	if s.Closed() {
		delete(r.signals, s.ID)
		return true
	}
	// position annotations are owned by SetLivePositions
	s.LivePosition = cur.LivePosition
	r.signals[s.ID] = s
	return true
}

// ListActive returns summaries of the destination's signals, oldest first.
func (r *Registry) ListActive(destination int64) []models.SignalSummary {
	r.mu.RLock()
	list := make([]models.Signal, 0)
	for _, s := range r.signals {
		if s.Destination == destination {
			list = append(list, s)
		}
	}
	r.mu.RUnlock()

	sortByCreated(list)
	out := make([]models.SignalSummary, 0, len(list))
	for _, s := range list {
		out = append(out, s.Summary())
	}
	return out
}

// Destinations returns every destination with at least one active signal.
func (r *Registry) Destinations() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[int64]struct{})
	out := make([]int64, 0)
	for _, s := range r.signals {
		if _, ok := seen[s.Destination]; !ok {
			seen[s.Destination] = struct{}{}
			out = append(out, s.Destination)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetLivePositions replaces the position annotation of every active signal
// with the entry for its pair, or nil when the pair has no open position.
func (r *Registry) SetLivePositions(byPair map[string]models.LivePosition) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, s := range r.signals {
		if lp, ok := byPair[s.Pair]; ok {
			lp := lp
			s.LivePosition = &lp
		} else {
			s.LivePosition = nil
		}
		r.signals[id] = s
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.signals)
}

func sortByCreated(list []models.Signal) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID < list[j].ID
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
}
