package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"signal_bot/internal/intake"
	"signal_bot/internal/models"
)

// Price renders a price without float noise: 105.83999999999999 -> 105.84.
func Price(v float64) string {
	return decimal.NewFromFloat(v).Round(8).String()
}

// Pct renders a fraction as a percentage with two decimals: 0.0693 -> 6.93%.
func Pct(v float64) string {
	return decimal.NewFromFloat(v).Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func optPrice(v *float64, none string) string {
	if v == nil {
		return none
	}
	return Price(*v)
}

// Format renders an event as a chat message.
func Format(ev models.Event) string {
	switch ev.Kind {
	case models.EventEntryTriggered:
		return lines(
			fmt.Sprintf("✅ ENTRY TRIGGERED – %s (%s)", ev.Pair, ev.Side),
			fmt.Sprintf("Entry zone: %s – %s", Price(ev.EntryLow), Price(ev.EntryHigh)),
			fmt.Sprintf("Trigger price: %s", Price(ev.Price)),
			fmt.Sprintf("SL: %s", Price(ev.StopLoss)),
		)
	case models.EventTakeProfitHit:
		return lines(
			fmt.Sprintf("🏁 TAKE PROFIT HIT – %s (%s)", ev.Pair, ev.Side),
			fmt.Sprintf("TP: %s", optPrice(ev.TakeProfit, "—")),
			fmt.Sprintf("Price: %s", Price(ev.Price)),
		)
	case models.EventStopLossHit:
		return lines(
			fmt.Sprintf("🔴 STOP LOSS HIT – %s (%s)", ev.Pair, ev.Side),
			fmt.Sprintf("SL: %s", Price(ev.StopLoss)),
			fmt.Sprintf("Price: %s", Price(ev.Price)),
		)
	case models.EventTrailingUpdated:
		return lines(
			fmt.Sprintf("📈 TRAILING STOP – %s (%s)", ev.Pair, ev.Side),
			fmt.Sprintf("New SL: %s", Price(ev.StopLoss)),
			fmt.Sprintf("Gain: %s", Pct(ev.Gain)),
		)
	case models.EventExpired:
		return lines(
			fmt.Sprintf("⏰ EXPIRED – %s (%s)", ev.Pair, ev.Side),
			fmt.Sprintf("Entry zone not reached within %d min.", int(ev.MaxRuntime/time.Minute)),
		)
	case models.EventDailyRecap:
		return FormatRecap("📒 Daily recap", ev.Recap)
	case models.EventMorningBriefing:
		var b strings.Builder
		b.WriteString("☀️ Morning briefing\n\n")
		b.WriteString(FormatActive(ev.Active, ev.At))
		if ev.Recap != nil {
			b.WriteString("\n\n")
			b.WriteString(FormatRecap("Last 24h", ev.Recap))
		}
		return b.String()
	}
	return fmt.Sprintf("%s – %s", ev.Kind, ev.Pair)
}

// FormatRecap renders outcome counts and one line per closure.
func FormatRecap(title string, sum *models.RecapSummary) string {
	if sum == nil || sum.Total == 0 {
		return title + ": no closed signals."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s – %s)\n", title, sum.Since.Format("01-02 15:04"), sum.Until.Format("01-02 15:04"))
	fmt.Fprintf(&b, "Total: %d | TP: %d | SL: %d | Expired: %d\n", sum.Total, sum.TakeProfit, sum.StopLoss, sum.Expired)
	for _, rec := range sum.Records {
		fmt.Fprintf(&b, "\n• %s %s → %s", rec.Pair, rec.Side, rec.Outcome)
		if rec.ClosePrice != nil {
			fmt.Fprintf(&b, " @ %s", Price(*rec.ClosePrice))
		}
	}
	return b.String()
}

// FormatActive renders a status list of active signals.
func FormatActive(list []models.SignalSummary, now time.Time) string {
	if len(list) == 0 {
		return "No active signals for this chat."
	}
	var b strings.Builder
	b.WriteString("📊 Active signals\n")
	for i, s := range list {
		triggered := "NO"
		if s.Status == models.StatusTriggered {
			triggered = "YES @ " + Price(s.TriggerPrice)
		}
		fmt.Fprintf(&b, "\n%d) %s (%s)\n", i+1, s.Pair, s.Side)
		fmt.Fprintf(&b, "Entry: %s – %s\n", Price(s.EntryLow), Price(s.EntryHigh))
		fmt.Fprintf(&b, "SL   : %s", Price(s.CurrentStop))
		if s.TrailingActive {
			fmt.Fprintf(&b, " (trailing, initial %s)", Price(s.StopLoss))
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "TP   : %s\n", optPrice(s.TakeProfit, "open"))
		fmt.Fprintf(&b, "Triggered: %s\n", triggered)
		fmt.Fprintf(&b, "Age: %.1f min", now.Sub(s.CreatedAt).Minutes())
		if lp := s.LivePosition; lp != nil {
			fmt.Fprintf(&b, "\nMEXC position: %s size=%s entry=%s lev=%dx liq=%s pnl=%s",
				lp.Side, Price(lp.Volume), Price(lp.Entry), lp.Leverage, Price(lp.Liquidation), Price(lp.PnL))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatSignalCard is the public card posted when a signal is announced.
func FormatSignalCard(req models.SignalRequest) string {
	out := []string{
		"🧭 *Futures Signal*",
		"",
		fmt.Sprintf("*PAIR*  : `%s`", req.Pair),
		fmt.Sprintf("*SIDE*  : *%s*", req.Side),
		fmt.Sprintf("*ENTRY* : `%s – %s`", Price(req.EntryLow), Price(req.EntryHigh)),
		fmt.Sprintf("*SL*    : `%s`", Price(req.StopLoss)),
		fmt.Sprintf("*TP*    : `%s`", optPrice(req.TakeProfit, "open")),
		fmt.Sprintf("🕒 *Max runtime* : `%d min` (auto EXPIRED if not triggered)", int(req.MaxRuntime/time.Minute)),
	}
	if req.Note != "" {
		out = append(out, "", "📝 *Note* : "+req.Note)
	}
	// блок можно переслать в другой чат, и он там зарегистрируется
	out = append(out, "", "```", intake.Format(req), "```")
	return lines(out...)
}

func lines(parts ...string) string { return strings.Join(parts, "\n") }
