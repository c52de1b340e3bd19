package models

import "time"

type EventKind string

const (
	EventEntryTriggered  EventKind = "EntryTriggered"
	EventTakeProfitHit   EventKind = "TakeProfitHit"
	EventStopLossHit     EventKind = "StopLossHit"
	EventTrailingUpdated EventKind = "TrailingUpdated"
	EventExpired         EventKind = "Expired"
	EventDailyRecap      EventKind = "DailyRecap"
	EventMorningBriefing EventKind = "MorningBriefing"
)

// Event is one outbound notification. Lifecycle events carry the signal
// fields; recap kinds carry Recap and, for briefings, Active.
type Event struct {
	Kind        EventKind `json:"kind"`
	Destination int64     `json:"destination"`
	At          time.Time `json:"at"`

	SignalID   string        `json:"signal_id,omitempty"`
	Pair       string        `json:"pair,omitempty"`
	Side       Side          `json:"side,omitempty"`
	Price      float64       `json:"price,omitempty"`
	EntryLow   float64       `json:"entry_low,omitempty"`
	EntryHigh  float64       `json:"entry_high,omitempty"`
	StopLoss   float64       `json:"stop_loss,omitempty"`
	TakeProfit *float64      `json:"take_profit,omitempty"`
	Gain       float64       `json:"gain,omitempty"`
	MaxRuntime time.Duration `json:"max_runtime,omitempty"`

	Recap  *RecapSummary   `json:"recap,omitempty"`
	Active []SignalSummary `json:"active,omitempty"`
}

// NewSignalEvent fills the signal fields of a lifecycle event.
func NewSignalEvent(kind EventKind, s Signal, price float64, at time.Time) Event {
	return Event{
		Kind:        kind,
		Destination: s.Destination,
		At:          at,
		SignalID:    s.ID,
		Pair:        s.Pair,
		Side:        s.Side,
		Price:       price,
		EntryLow:    s.EntryLow,
		EntryHigh:   s.EntryHigh,
		StopLoss:    s.CurrentStopLoss,
		TakeProfit:  s.TakeProfit,
		Gain:        s.Gain(),
		MaxRuntime:  s.MaxRuntime,
	}
}

// RecapSummary aggregates closures of one destination over [Since, Until].
type RecapSummary struct {
	Destination int64           `json:"destination"`
	Since       time.Time       `json:"since"`
	Until       time.Time       `json:"until"`
	Total       int             `json:"total"`
	TakeProfit  int             `json:"tp"`
	StopLoss    int             `json:"sl"`
	Expired     int             `json:"expired"`
	Records     []ClosureRecord `json:"records"`
}
