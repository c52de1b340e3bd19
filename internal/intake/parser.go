package intake

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
)

const (
	blockStart = "#portx"
	blockEnd   = "#end"

	// one year; keeps minutes * time.Minute far from overflow
	maxRuntimeMin = 525600
)

var (
	ErrInvalidSignal = models.ErrInvalidSignal
	ErrNoBlock       = errors.New("no #portx block")
)

// HasBlock reports whether text carries a #portx ... #end block.
func HasBlock(text string) bool {
	_, ok := extractBlock(text)
	return ok
}

// Parse reads one #portx block into a validated request with defaults
// applied. Unknown keys are ignored. Destination is left for the caller.
func Parse(text string) (models.SignalRequest, error) {
	block, ok := extractBlock(text)
	if !ok {
		return models.SignalRequest{}, ErrNoBlock
	}

	req := models.SignalRequest{
		TrailStartPct: models.DefaultTrailStartPct,
		TrailGapPct:   models.DefaultTrailGapPct,
		MaxRuntime:    models.DefaultMaxRuntime,
	}

	var hasEntry, hasStop bool
	for _, line := range strings.Split(block, "\n") {
		key, val, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		key = strings.ToUpper(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		var err error
		switch key {
		case "PAIR":
			req.Pair = helper.NormalizePair(val)
		case "SIDE":
			req.Side = models.Side(strings.ToUpper(val))
		case "ENTRY":
			req.EntryLow, req.EntryHigh, err = parseEntry(val)
			hasEntry = err == nil
		case "STOPLOSS", "STOP_LOSS", "SL":
			req.StopLoss, err = parseFloat(val)
			hasStop = err == nil
		case "TAKE_PROFIT", "TP":
			var tp float64
			if tp, err = parseFloat(val); err == nil {
				req.TakeProfit = &tp
			}
		case "TRAIL_START_PCT":
			req.TrailStartPct, err = helper.ParsePct(val)
		case "TRAIL_GAP_PCT":
			req.TrailGapPct, err = helper.ParsePct(val)
		case "MAX_RUNTIME_MIN":
			var mins int
			if mins, err = strconv.Atoi(val); err == nil {
				if mins > maxRuntimeMin {
					err = fmt.Errorf("above %d minutes", maxRuntimeMin)
					break
				}
				req.MaxRuntime = time.Duration(mins) * time.Minute
			}
		case "NOTE":
			req.Note = val
		}
		if err != nil {
			return models.SignalRequest{}, fmt.Errorf("%w: %s: %v", ErrInvalidSignal, key, err)
		}
	}

	if !hasEntry {
		return models.SignalRequest{}, fmt.Errorf("%w: ENTRY is required", ErrInvalidSignal)
	}
	if !hasStop {
		return models.SignalRequest{}, fmt.Errorf("%w: STOPLOSS is required", ErrInvalidSignal)
	}
	if err := req.Validate(); err != nil {
		return models.SignalRequest{}, err
	}
	return req, nil
}

// Format renders a request back into a #portx block.
func Format(req models.SignalRequest) string {
	var b strings.Builder
	b.WriteString(blockStart + "\n")
	fmt.Fprintf(&b, "PAIR: %s\n", req.Pair)
	fmt.Fprintf(&b, "SIDE: %s\n", req.Side)
	if req.EntryLow == req.EntryHigh {
		fmt.Fprintf(&b, "ENTRY: %s\n", num(req.EntryLow))
	} else {
		fmt.Fprintf(&b, "ENTRY: %s-%s\n", num(req.EntryLow), num(req.EntryHigh))
	}
	fmt.Fprintf(&b, "STOPLOSS: %s\n", num(req.StopLoss))
	if req.TakeProfit != nil {
		fmt.Fprintf(&b, "TAKE_PROFIT: %s\n", num(*req.TakeProfit))
	}
	fmt.Fprintf(&b, "TRAIL_START_PCT: %s%%\n", num(req.TrailStartPct*100))
	fmt.Fprintf(&b, "TRAIL_GAP_PCT: %s%%\n", num(req.TrailGapPct*100))
	fmt.Fprintf(&b, "MAX_RUNTIME_MIN: %d\n", int(req.MaxRuntime/time.Minute))
	if req.Note != "" {
		fmt.Fprintf(&b, "NOTE: %s\n", req.Note)
	}
	b.WriteString(blockEnd)
	return b.String()
}

func extractBlock(text string) (string, bool) {
	lower := strings.ToLower(text)
	start := strings.Index(lower, blockStart)
	if start < 0 {
		return "", false
	}
	end := strings.Index(lower[start:], blockEnd)
	if end < 0 {
		return "", false
	}
	return text[start+len(blockStart) : start+end], true
}

// parseEntry accepts "x" or "low-high".
func parseEntry(val string) (float64, float64, error) {
	val = strings.ReplaceAll(val, "–", "-")
	lo, hi, isRange := strings.Cut(val, "-")
	low, err := parseFloat(lo)
	if err != nil {
		return 0, 0, err
	}
	if !isRange {
		return low, low, nil
	}
	high, err := parseFloat(hi)
	if err != nil {
		return 0, 0, err
	}
	return low, high, nil
}

func parseFloat(val string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(val), ",", ""), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%q is not a finite number", val)
	}
	return v, nil
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
