package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"signal_bot/internal/helper"
	"signal_bot/internal/models"
)

const (
	mexcSpotURL     = "https://api.mexc.com"
	mexcContractURL = "https://contract.mexc.com"
)

var ErrNoCredentials = errors.New("mexc: api creds empty")

type MexcClient struct {
	http        *http.Client
	spotURL     string
	contractURL string
	apiKey      string
	apiSecret   string
	now         func() time.Time
}

func NewMexcClient(timeout time.Duration) *MexcClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MexcClient{
		http:        &http.Client{Timeout: timeout},
		spotURL:     mexcSpotURL,
		contractURL: mexcContractURL,
		now:         time.Now,
	}
}

func (m *MexcClient) SetCreds(key, secret string) { m.apiKey, m.apiSecret = key, secret }

// SetBaseURLs points the client at other hosts, e.g. a test server.
func (m *MexcClient) SetBaseURLs(spot, contract string) {
	if spot != "" {
		m.spotURL = strings.TrimRight(spot, "/")
	}
	if contract != "" {
		m.contractURL = strings.TrimRight(contract, "/")
	}
}

func (m *MexcClient) HasCreds() bool { return m.apiKey != "" && m.apiSecret != "" }

// ===== REST: spot ticker =====

// GetPrice reads the spot last price: BTC_USDT -> /api/v3/ticker/price?symbol=BTCUSDT.
func (m *MexcClient) GetPrice(ctx context.Context, pair string) (price float64, err error) {
	defer func() {
		if err != nil && !errors.Is(err, ErrInvalidPrice) {
			err = fmt.Errorf("%w: mexc %s: %v", ErrPriceFetchFailed, pair, err)
		}
	}()

	url := m.spotURL + "/api/v3/ticker/price?symbol=" + helper.SpotSymbol(pair)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	rb, err := m.do(req)
	if err != nil {
		return 0, err
	}

	var ticker struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := sonic.Unmarshal(rb, &ticker); err != nil {
		return 0, err
	}
	price, err = strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return 0, err
	}
	if err := CheckPrice(pair, price); err != nil {
		return 0, err
	}
	return price, nil
}

// ===== Private: позиции фьючерсов =====

// OpenPosition is one open contract position as MEXC reports it.
type OpenPosition struct {
	PositionID     int64   `json:"positionId"`
	Symbol         string  `json:"symbol"`
	PositionType   int     `json:"positionType"` // 1 long, 2 short
	OpenType       int     `json:"openType"`     // 1 isolated, 2 cross
	HoldVol        float64 `json:"holdVol"`
	HoldAvgPrice   float64 `json:"holdAvgPrice"`
	LiquidatePrice float64 `json:"liquidatePrice"`
	Leverage       int     `json:"leverage"`
	Realised       float64 `json:"realised"`
}

// Live projects the position into the annotation attached to signals.
func (p OpenPosition) Live() models.LivePosition {
	side := models.SideLong
	if p.PositionType == 2 {
		side = models.SideShort
	}
	return models.LivePosition{
		Side:        side,
		Volume:      p.HoldVol,
		Entry:       p.HoldAvgPrice,
		Leverage:    p.Leverage,
		Liquidation: p.LiquidatePrice,
		PnL:         p.Realised,
	}
}

// Pair is the position symbol in engine form.
func (p OpenPosition) Pair() string { return helper.NormalizePair(p.Symbol) }

// GET /api/v1/private/position/open_positions
func (m *MexcClient) OpenPositions(ctx context.Context) ([]OpenPosition, error) {
	if !m.HasCreds() {
		return nil, ErrNoCredentials
	}

	const path = "/api/v1/private/position/open_positions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.contractURL+path, nil)
	if err != nil {
		return nil, err
	}
	m.signRequest(req, "")

	rb, err := m.do(req)
	if err != nil {
		return nil, fmt.Errorf("mexc positions: %w", err)
	}

	var wrap struct {
		Success bool           `json:"success"`
		Code    int            `json:"code"`
		Data    []OpenPosition `json:"data"`
		Message string         `json:"message"`
	}
	if err := sonic.Unmarshal(rb, &wrap); err != nil {
		return nil, fmt.Errorf("mexc positions: %w", err)
	}
	if !wrap.Success {
		return nil, fmt.Errorf("mexc error: code=%d msg=%s", wrap.Code, wrap.Message)
	}
	return wrap.Data, nil
}

// Sign computes HMAC-SHA256(accessKey + reqTime + paramString) as hex.
func Sign(accessKey, secret, reqTime, paramString string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(accessKey + reqTime + paramString))
	return hex.EncodeToString(h.Sum(nil))
}

func (m *MexcClient) signRequest(req *http.Request, paramString string) {
	reqTime := strconv.FormatInt(m.now().UTC().UnixMilli(), 10)
	req.Header.Set("ApiKey", m.apiKey)
	req.Header.Set("Request-Time", reqTime)
	req.Header.Set("Signature", Sign(m.apiKey, m.apiSecret, reqTime, paramString))
	req.Header.Set("Content-Type", "application/json")
}

func (m *MexcClient) do(req *http.Request) ([]byte, error) {
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	rb, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
	}
	return rb, nil
}
