package lifecycle

import (
	"errors"
	"fmt"
	"time"

	"signal_bot/internal/models"
)

var ErrInvariantViolation = errors.New("lifecycle invariant violation")

// Evaluate runs one price sample through the signal's state machine.
//
// Phases run in a fixed order: expiry, entry, take-profit, trailing,
// stop-loss. A signal that triggers on this sample is checked for TP, trailing
// and SL with the same sample. TP is checked before SL so a sample satisfying
// both closes as TP. A closed signal is returned unchanged.
func Evaluate(s models.Signal, price float64, now time.Time) (models.Signal, []models.Event) {
	if s.Closed() {
		return s, nil
	}

	var events []models.Event

	if !s.Triggered {
		if expired(s, now) {
			s = closeSignal(s, models.CloseExpired, price, now)
			return s, []models.Event{models.NewSignalEvent(models.EventExpired, s, price, now)}
		}
		if !s.InEntryZone(price) {
			return s, nil
		}
		s.Triggered = true
		s.Status = models.StatusTriggered
		s.TriggerPrice = price
		s.TriggeredAt = now
		s.ExtremePrice = price
		events = append(events, models.NewSignalEvent(models.EventEntryTriggered, s, price, now))
	}

	if takeProfitHit(s, price) {
		s = closeSignal(s, models.CloseTP, price, now)
		return s, append(events, models.NewSignalEvent(models.EventTakeProfitHit, s, price, now))
	}

	var trail TrailResult
	s, trail = ApplyTrailing(s, price)
	if trail.Moved {
		events = append(events, models.NewSignalEvent(models.EventTrailingUpdated, s, price, now))
	}

	if stopLossHit(s, price) {
		s = closeSignal(s, models.CloseSL, price, now)
		events = append(events, models.NewSignalEvent(models.EventStopLossHit, s, price, now))
	}

	return s, events
}

// SweepExpired is the expiry phase on its own, used when no price sample is
// available for the signal's pair this tick.
func SweepExpired(s models.Signal, now time.Time) (models.Signal, []models.Event) {
	if s.Closed() || s.Triggered || !expired(s, now) {
		return s, nil
	}
	s = closeSignal(s, models.CloseExpired, 0, now)
	return s, []models.Event{models.NewSignalEvent(models.EventExpired, s, 0, now)}
}

// CheckTransition verifies that next is a legal successor of prev.
func CheckTransition(prev, next models.Signal) error {
	switch {
	case prev.ID != next.ID:
		return fmt.Errorf("%w: id changed %s -> %s", ErrInvariantViolation, prev.ID, next.ID)
	case prev.Closed() && next != prev:
		return fmt.Errorf("%w: closed signal %s mutated", ErrInvariantViolation, prev.ID)
	case prev.Triggered && !next.Triggered:
		return fmt.Errorf("%w: signal %s un-triggered", ErrInvariantViolation, prev.ID)
	case prev.Triggered && !next.TriggeredAt.Equal(prev.TriggeredAt):
		return fmt.Errorf("%w: signal %s re-triggered", ErrInvariantViolation, prev.ID)
	case prev.TrailingActive && !next.TrailingActive:
		return fmt.Errorf("%w: signal %s trailing deactivated", ErrInvariantViolation, prev.ID)
	case next.TrailingActive && !next.Triggered:
		return fmt.Errorf("%w: signal %s trailing before trigger", ErrInvariantViolation, prev.ID)
	case prev.IsLong() && next.CurrentStopLoss < prev.CurrentStopLoss:
		return fmt.Errorf("%w: LONG %s stop loosened %.8f -> %.8f", ErrInvariantViolation, prev.ID, prev.CurrentStopLoss, next.CurrentStopLoss)
	case !prev.IsLong() && next.CurrentStopLoss > prev.CurrentStopLoss:
		return fmt.Errorf("%w: SHORT %s stop loosened %.8f -> %.8f", ErrInvariantViolation, prev.ID, prev.CurrentStopLoss, next.CurrentStopLoss)
	}
	return nil
}

func expired(s models.Signal, now time.Time) bool {
	return !now.Before(s.ExpiresAt())
}

func takeProfitHit(s models.Signal, price float64) bool {
	if s.TakeProfit == nil {
		return false
	}
	if s.IsLong() {
		return price >= *s.TakeProfit
	}
	return price <= *s.TakeProfit
}

func stopLossHit(s models.Signal, price float64) bool {
	if s.IsLong() {
		return price <= s.CurrentStopLoss
	}
	return price >= s.CurrentStopLoss
}

func closeSignal(s models.Signal, reason models.CloseReason, price float64, now time.Time) models.Signal {
	s.Status = models.StatusClosed
	s.CloseReason = reason
	s.ClosePrice = price
	s.ClosedAt = now
	return s
}
