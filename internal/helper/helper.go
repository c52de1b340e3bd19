package helper

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// NormalizePair maps exchange tickers to the engine's pair key:
// BTCUSDT.P -> BTC_USDT, bnbusdt -> BNB_USDT. Pairs that already carry an
// underscore are only upper-cased.
func NormalizePair(raw string) string {
	p := strings.ToUpper(strings.TrimSpace(raw))
	p = strings.TrimSuffix(p, ".P")
	if p == "" || strings.Contains(p, "_") {
		return p
	}
	if base, ok := strings.CutSuffix(p, "USDT"); ok && base != "" {
		return base + "_USDT"
	}
	return p
}

// SpotSymbol is the inverse of NormalizePair for spot tickers: BTC_USDT -> BTCUSDT.
func SpotSymbol(pair string) string {
	return strings.ReplaceAll(pair, "_", "")
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(raw string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", raw)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("clock %q: bad hour", raw)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", raw)
	}
	return hh*60 + mm, nil
}

// MinuteOfDay returns minutes since local midnight of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// DayKey identifies the calendar day of t in its own location.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParsePct accepts "3%", "3", "0.03". Values above 1 without a percent sign
// are read as percents as well.
func ParsePct(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	pct := strings.HasSuffix(s, "%")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("percent %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("percent %q is not finite", raw)
	}
	if pct || v >= 1 {
		v /= 100
	}
	return v, nil
}

// Age formats the elapsed time since t in minutes with one decimal.
func Age(t, now time.Time) string {
	return strconv.FormatFloat(now.Sub(t).Minutes(), 'f', 1, 64)
}
