package ledger

import (
	"sort"
	"time"

	"signal_bot/internal/models"
)

// Summarize counts outcomes of records already filtered to one destination.
func Summarize(destination int64, since, until time.Time, records []models.ClosureRecord) models.RecapSummary {
	sum := models.RecapSummary{
		Destination: destination,
		Since:       since,
		Until:       until,
		Total:       len(records),
		Records:     records,
	}
	for _, rec := range records {
		switch rec.Outcome {
		case models.CloseTP:
			sum.TakeProfit++
		case models.CloseSL:
			sum.StopLoss++
		case models.CloseExpired:
			sum.Expired++
		}
	}
	return sum
}

// GroupByDestination splits records per destination, keeping their order.
func GroupByDestination(records []models.ClosureRecord) map[int64][]models.ClosureRecord {
	out := make(map[int64][]models.ClosureRecord)
	for _, rec := range records {
		out[rec.Destination] = append(out[rec.Destination], rec)
	}
	return out
}

// Destinations returns the keys of a grouping in ascending order.
func Destinations(groups map[int64][]models.ClosureRecord) []int64 {
	out := make([]int64, 0, len(groups))
	for d := range groups {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
