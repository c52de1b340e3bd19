package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signal_bot/internal/exchange"
	"signal_bot/internal/helper"
	"signal_bot/pkg/logger"
)

// Warmuper probes the price source once at startup so a broken exchange
// setup shows up in the log before the first signal arrives.
type Warmuper struct {
	prices  exchange.PriceSource
	timeout time.Duration

	// ограничитель параллелизма, чтобы не словить rate limit
	sem chan struct{}
}

// WarmupResult maps each probed pair to its price; failures are in Errors.
type WarmupResult struct {
	Prices map[string]float64
	Errors map[string]error
}

func NewWarmuper(prices exchange.PriceSource, timeout time.Duration) *Warmuper {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Warmuper{
		prices:  prices,
		timeout: timeout,
		sem:     make(chan struct{}, 8), // 8 параллельных пар
	}
}

// Warmup fetches every pair once and returns the first error, if any.
func (w *Warmuper) Warmup(ctx context.Context, pairs []string) (WarmupResult, error) {
	res := WarmupResult{
		Prices: make(map[string]float64, len(pairs)),
		Errors: make(map[string]error),
	}
	if len(pairs) == 0 {
		return res, nil
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for _, raw := range pairs {
		pair := helper.NormalizePair(raw)
		if pair == "" {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.sem <- struct{}{}
			defer func() { <-w.sem }()

			fctx, cancel := context.WithTimeout(ctx, w.timeout)
			defer cancel()
			price, err := w.prices.GetPrice(fctx, pair)
			if err == nil {
				err = exchange.CheckPrice(pair, price)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Errors[pair] = err
				if firstErr == nil {
					firstErr = fmt.Errorf("warmup %s: %w", pair, err)
				}
				return
			}
			res.Prices[pair] = price
		}()
	}
	wg.Wait()

	if firstErr != nil {
		logger.Warn("[BOOT] price warmup: %d ok, %d failed: %v", len(res.Prices), len(res.Errors), firstErr)
		return res, firstErr
	}
	logger.Info("[BOOT] price warmup done: %d pairs", len(res.Prices))
	return res, nil
}
