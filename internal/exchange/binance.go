package exchange

import (
	"context"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2"

	"signal_bot/internal/helper"
)

// BinanceSource reads spot last prices from Binance.
type BinanceSource struct {
	client *binance.Client
}

func NewBinanceSource(apiKey, secret string) *BinanceSource {
	return &BinanceSource{client: binance.NewClient(apiKey, secret)}
}

// SetBaseURL overrides the REST host.
func (b *BinanceSource) SetBaseURL(url string) { b.client.BaseURL = url }

func (b *BinanceSource) GetPrice(ctx context.Context, pair string) (float64, error) {
	symbol := helper.SpotSymbol(pair)
	prices, err := b.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: binance %s: %v", ErrPriceFetchFailed, pair, err)
	}
	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}
		v, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: binance %s: %v", ErrPriceFetchFailed, pair, err)
		}
		if err := CheckPrice(pair, v); err != nil {
			return 0, err
		}
		return v, nil
	}
	return 0, fmt.Errorf("%w: binance %s: symbol not in response", ErrPriceFetchFailed, pair)
}
