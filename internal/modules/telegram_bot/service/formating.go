package service

import (
	"fmt"
	"strings"

	"signal_bot/internal/exchange"
	"signal_bot/internal/models"
	"signal_bot/internal/notify"
)

const sendUsage = "Пришли блок сигнала следующим сообщением или сразу после /send:\n\n" +
	"#portx\n" +
	"PAIR: BTCUSDT\n" +
	"SIDE: LONG\n" +
	"ENTRY: 100-102\n" +
	"STOPLOSS: 95\n" +
	"TAKE_PROFIT: 110\n" +
	"TRAIL_START_PCT: 3\n" +
	"TRAIL_GAP_PCT: 2\n" +
	"MAX_RUNTIME_MIN: 720\n" +
	"#end"

func formatHelp(mode string) string {
	return fmt.Sprintf("Привет! Я слежу за сигналами: вход, стоп, тейк, трейлинг и экспирация.\n\n"+
		"/send — опубликовать сигнал (#portx блок)\n"+
		"/status — активные сигналы\n"+
		"/recap [часы] — итоги закрытых сигналов\n"+
		"/mypos — открытые позиции MEXC\n"+
		"/id — ID этого чата\n"+
		"/mode_live, /mode_test, /mode_status — режим публикации\n\n"+
		"Режим: %s", mode)
}

func formatRegistered(req models.SignalRequest) string {
	tp := "open"
	if req.TakeProfit != nil {
		tp = notify.Price(*req.TakeProfit)
	}
	return fmt.Sprintf("✅ Сигнал принят: %s %s\nEntry %s – %s, SL %s, TP %s\nTrailing %s / %s, max %d min",
		req.Pair, req.Side,
		notify.Price(req.EntryLow), notify.Price(req.EntryHigh),
		notify.Price(req.StopLoss), tp,
		notify.Pct(req.TrailStartPct), notify.Pct(req.TrailGapPct),
		int(req.MaxRuntime.Minutes()))
}

func formatPositions(positions []exchange.OpenPosition) string {
	if len(positions) == 0 {
		return "📭 Открытых позиций нет"
	}
	var b strings.Builder
	b.WriteString("📊 Открытые позиции:\n")
	for _, p := range positions {
		lp := p.Live()
		fmt.Fprintf(&b, "- %s [%s] vol=%s @ %s lev=%dx liq=%s realised=%s\n",
			p.Pair(), lp.Side, notify.Price(lp.Volume), notify.Price(lp.Entry),
			lp.Leverage, notify.Price(lp.Liquidation), notify.Price(lp.PnL))
	}
	return strings.TrimRight(b.String(), "\n")
}
