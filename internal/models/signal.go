package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
)

type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusTriggered Status = "TRIGGERED"
	StatusClosed    Status = "CLOSED"
)

type CloseReason string

const (
	CloseTP      CloseReason = "TP"
	CloseSL      CloseReason = "SL"
	CloseExpired CloseReason = "EXPIRED"
)

// Defaults applied by intake when a block omits the optional fields.
const (
	DefaultTrailStartPct = 0.03
	DefaultTrailGapPct   = 0.02
	DefaultMaxRuntime    = 720 * time.Minute
)

var ErrInvalidSignal = errors.New("invalid signal")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
	return v
}

// SignalRequest is what intake hands to the registry.
type SignalRequest struct {
	Pair          string        `json:"pair" validate:"required"`
	Side          Side          `json:"side" validate:"required,oneof=LONG SHORT"`
	EntryLow      float64       `json:"entry_low" validate:"finite,gt=0"`
	EntryHigh     float64       `json:"entry_high" validate:"finite,gt=0,gtefield=EntryLow"`
	StopLoss      float64       `json:"stop_loss" validate:"finite,gt=0"`
	TakeProfit    *float64      `json:"take_profit,omitempty" validate:"omitempty,finite,gt=0"`
	TrailStartPct float64       `json:"trail_start_pct" validate:"finite,gte=0"`
	TrailGapPct   float64       `json:"trail_gap_pct" validate:"finite,gte=0,lt=1"`
	MaxRuntime    time.Duration `json:"max_runtime" validate:"gt=0"`
	Note          string        `json:"note,omitempty"`
	Destination   int64         `json:"destination"`
}

// Validate reports the first broken field wrapped in ErrInvalidSignal.
func (r SignalRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %q", ErrInvalidSignal, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidSignal, err)
	}
	return nil
}

type Signal struct {
	ID              string        `json:"id"`
	Pair            string        `json:"pair"`
	Side            Side          `json:"side"`
	EntryLow        float64       `json:"entry_low"`
	EntryHigh       float64       `json:"entry_high"`
	StopLossInitial float64       `json:"stop_loss_initial"`
	TakeProfit      *float64      `json:"take_profit,omitempty"`
	TrailStartPct   float64       `json:"trail_start_pct"`
	TrailGapPct     float64       `json:"trail_gap_pct"`
	MaxRuntime      time.Duration `json:"max_runtime"`
	CreatedAt       time.Time     `json:"created_at"`
	Destination     int64         `json:"destination"`
	Note            string        `json:"note,omitempty"`

	Status          Status      `json:"status"`
	Triggered       bool        `json:"triggered"`
	TriggeredAt     time.Time   `json:"triggered_at"`
	TriggerPrice    float64     `json:"trigger_price"`
	CurrentStopLoss float64     `json:"current_stop_loss"`
	TrailingActive  bool        `json:"trailing_active"`
	ExtremePrice    float64     `json:"extreme_price"`
	CloseReason     CloseReason `json:"close_reason,omitempty"`
	ClosePrice      float64     `json:"close_price"`
	ClosedAt        time.Time   `json:"closed_at"`

	LivePosition *LivePosition `json:"live_position,omitempty"`
}

// NewSignal builds a PENDING signal from an already validated request.
func NewSignal(id string, req SignalRequest, now time.Time) Signal {
	return Signal{
		ID:              id,
		Pair:            req.Pair,
		Side:            req.Side,
		EntryLow:        req.EntryLow,
		EntryHigh:       req.EntryHigh,
		StopLossInitial: req.StopLoss,
		TakeProfit:      req.TakeProfit,
		TrailStartPct:   req.TrailStartPct,
		TrailGapPct:     req.TrailGapPct,
		MaxRuntime:      req.MaxRuntime,
		CreatedAt:       now,
		Destination:     req.Destination,
		Note:            req.Note,
		Status:          StatusPending,
		CurrentStopLoss: req.StopLoss,
	}
}

func (s Signal) IsLong() bool { return s.Side == SideLong }

func (s Signal) Closed() bool { return s.Status == StatusClosed }

func (s Signal) ExpiresAt() time.Time { return s.CreatedAt.Add(s.MaxRuntime) }

// InEntryZone is inclusive on both bounds.
func (s Signal) InEntryZone(price float64) bool {
	return price >= s.EntryLow && price <= s.EntryHigh
}

// Gain is the favorable excursion of the extreme price from the trigger price.
func (s Signal) Gain() float64 {
	if s.TriggerPrice <= 0 {
		return 0
	}
	if s.IsLong() {
		return (s.ExtremePrice - s.TriggerPrice) / s.TriggerPrice
	}
	return (s.TriggerPrice - s.ExtremePrice) / s.TriggerPrice
}

// Closure projects a closed signal into its ledger record.
func (s Signal) Closure() ClosureRecord {
	rec := ClosureRecord{
		SignalID:    s.ID,
		Destination: s.Destination,
		Pair:        s.Pair,
		Side:        s.Side,
		Outcome:     s.CloseReason,
		EntryLow:    s.EntryLow,
		EntryHigh:   s.EntryHigh,
		FinalStop:   s.CurrentStopLoss,
		TakeProfit:  s.TakeProfit,
		CreatedAt:   s.CreatedAt,
		ClosedAt:    s.ClosedAt,
	}
	if s.Triggered {
		t := s.TriggeredAt
		rec.TriggeredAt = &t
	}
	if s.CloseReason != CloseExpired {
		p := s.ClosePrice
		rec.ClosePrice = &p
	}
	return rec
}

func (s Signal) Summary() SignalSummary {
	return SignalSummary{
		ID:             s.ID,
		Pair:           s.Pair,
		Side:           s.Side,
		EntryLow:       s.EntryLow,
		EntryHigh:      s.EntryHigh,
		StopLoss:       s.StopLossInitial,
		CurrentStop:    s.CurrentStopLoss,
		TakeProfit:     s.TakeProfit,
		Status:         s.Status,
		TriggerPrice:   s.TriggerPrice,
		TrailingActive: s.TrailingActive,
		MaxRuntime:     s.MaxRuntime,
		CreatedAt:      s.CreatedAt,
		Note:           s.Note,
		LivePosition:   s.LivePosition,
	}
}

// SignalSummary is the read-only view used by status output.
type SignalSummary struct {
	ID             string        `json:"id"`
	Pair           string        `json:"pair"`
	Side           Side          `json:"side"`
	EntryLow       float64       `json:"entry_low"`
	EntryHigh      float64       `json:"entry_high"`
	StopLoss       float64       `json:"stop_loss"`
	CurrentStop    float64       `json:"current_stop"`
	TakeProfit     *float64      `json:"take_profit,omitempty"`
	Status         Status        `json:"status"`
	TriggerPrice   float64       `json:"trigger_price,omitempty"`
	TrailingActive bool          `json:"trailing_active"`
	MaxRuntime     time.Duration `json:"max_runtime"`
	CreatedAt      time.Time     `json:"created_at"`
	Note           string        `json:"note,omitempty"`
	LivePosition   *LivePosition `json:"live_position,omitempty"`
}

// ClosureRecord is the immutable ledger entry written once per closed signal.
type ClosureRecord struct {
	SignalID    string      `json:"signal_id"`
	Destination int64       `json:"destination"`
	Pair        string      `json:"pair"`
	Side        Side        `json:"side"`
	Outcome     CloseReason `json:"outcome"`
	EntryLow    float64     `json:"entry_low"`
	EntryHigh   float64     `json:"entry_high"`
	FinalStop   float64     `json:"final_stop"`
	TakeProfit  *float64    `json:"take_profit,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	TriggeredAt *time.Time  `json:"triggered_at,omitempty"`
	ClosedAt    time.Time   `json:"closed_at"`
	ClosePrice  *float64    `json:"close_price,omitempty"`
}
