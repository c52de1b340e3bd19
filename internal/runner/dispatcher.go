package runner

import (
	"context"
	"sync"
	"time"

	"signal_bot/internal/metrics"
	"signal_bot/internal/models"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"
)

// EventSink accepts outbound events without blocking the caller.
type EventSink interface {
	Enqueue(ev models.Event) bool
}

// Dispatcher delivers events through a bounded queue drained by a fixed
// worker pool. Delivery failures are logged and counted, never retried.
type Dispatcher struct {
	n       notify.Notifier
	queue   chan models.Event
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewDispatcher(n notify.Notifier, size, workers int, timeout time.Duration) *Dispatcher {
	if size <= 0 {
		size = 256
	}
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		n:       n,
		queue:   make(chan models.Event, size),
		workers: workers,
		timeout: timeout,
	}
}

func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for ev := range d.queue {
				d.deliver(ev)
			}
		}()
	}
}

// Enqueue drops the event when the queue is full or closed.
func (d *Dispatcher) Enqueue(ev models.Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	select {
	case d.queue <- ev:
		return true
	default:
		metrics.NotifyFailures.WithLabelValues(string(ev.Kind)).Inc()
		logger.Warn("[notify] queue full, dropped %s for chat %d (%s)", ev.Kind, ev.Destination, ev.SignalID)
		return false
	}
}

// Close stops intake and waits for queued events to be delivered.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ev models.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.n.Notify(ctx, ev.Destination, ev); err != nil {
		metrics.NotifyFailures.WithLabelValues(string(ev.Kind)).Inc()
		logger.Error("[notify] %s chat=%d signal=%s: %v", ev.Kind, ev.Destination, ev.SignalID, err)
	}
}
