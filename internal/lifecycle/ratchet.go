package lifecycle

import (
	"signal_bot/internal/models"
)

// TrailResult describes what one ratchet step did to the protective stop.
type TrailResult struct {
	MovedTo      float64
	Moved        bool
	ActivatedNow bool
}

// ApplyTrailing advances the extreme price of a triggered signal and, once the
// favorable excursion reaches TrailStartPct, pulls the stop to
// extreme*(1-gap) for LONG or extreme*(1+gap) for SHORT. The stop only moves
// in the position's favor.
func ApplyTrailing(s models.Signal, price float64) (models.Signal, TrailResult) {
	var res TrailResult
	if !s.Triggered || s.Closed() {
		return s, res
	}

	if s.ExtremePrice == 0 {
		s.ExtremePrice = s.TriggerPrice
	}
	if s.IsLong() {
		if price > s.ExtremePrice {
			s.ExtremePrice = price
		}
	} else {
		if price < s.ExtremePrice {
			s.ExtremePrice = price
		}
	}

	if s.Gain() < s.TrailStartPct {
		return s, res
	}

	if !s.TrailingActive {
		s.TrailingActive = true
		res.ActivatedNow = true
	}

	candidate := trailCandidate(s)
	if improves(s, candidate) {
		s.CurrentStopLoss = candidate
		res.Moved = true
		res.MovedTo = candidate
	}
	return s, res
}

func trailCandidate(s models.Signal) float64 {
	if s.IsLong() {
		return s.ExtremePrice * (1 - s.TrailGapPct)
	}
	return s.ExtremePrice * (1 + s.TrailGapPct)
}

// improves reports whether candidate tightens protection relative to the current stop.
func improves(s models.Signal, candidate float64) bool {
	if s.IsLong() {
		return candidate > s.CurrentStopLoss
	}
	return candidate < s.CurrentStopLoss
}
