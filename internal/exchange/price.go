package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrPriceFetchFailed = errors.New("price fetch failed")
	ErrInvalidPrice     = errors.New("invalid price")
)

// PriceSource returns the latest price of a pair in BASE_QUOTE form.
type PriceSource interface {
	GetPrice(ctx context.Context, pair string) (float64, error)
}

// PriceFunc adapts a function to PriceSource.
type PriceFunc func(ctx context.Context, pair string) (float64, error)

func (f PriceFunc) GetPrice(ctx context.Context, pair string) (float64, error) {
	return f(ctx, pair)
}

// CheckPrice rejects NaN, infinities and non-positive values.
func CheckPrice(pair string, p float64) error {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return fmt.Errorf("%w: %s=%v", ErrInvalidPrice, pair, p)
	}
	return nil
}
