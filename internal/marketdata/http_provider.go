package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/finsight/finsight/pkg/types"
	"github.com/shopspring/decimal"
)

// barQuote and spotQuote mirror the teacher's OHLCV/PriceUpdate JSON shape
// (internal/data/market_data.go), decoded from a REST quote vendor's
// response instead of a Binance websocket frame.
type barQuote struct {
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    decimal.Decimal `json:"volume"`
	Timestamp int64           `json:"timestamp"`
}

type spotQuote struct {
	Price decimal.Decimal `json:"price"`
}

// HTTPProvider polls a REST quote vendor for bars and spot prices.
type HTTPProvider struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPProvider creates an HTTPProvider. name identifies the vendor in
// logs and fallback-chain ordering; baseURL is the vendor's API root.
func NewHTTPProvider(name, baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:       name,
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) Name() string { return p.name }

// FetchBars requests the most recent lookback bars for symbol.
func (p *HTTPProvider) FetchBars(ctx context.Context, symbol string, lookback int) ([]types.Bar, error) {
	u := fmt.Sprintf("%s/bars?symbol=%s&limit=%d&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), lookback, url.QueryEscape(p.apiKey))

	var quotes []barQuote
	if err := p.get(ctx, u, &quotes); err != nil {
		return nil, fmt.Errorf("marketdata: %s FetchBars(%s): %w", p.name, symbol, err)
	}

	bars := make([]types.Bar, 0, len(quotes))
	for _, q := range quotes {
		bars = append(bars, types.Bar{
			Symbol:  symbol,
			Instant: time.Unix(q.Timestamp, 0).UTC(),
			Open:    q.Open,
			High:    q.High,
			Low:     q.Low,
			Close:   q.Close,
			Volume:  q.Volume,
		})
	}
	return bars, nil
}

// FetchSpotPrice requests symbol's current price.
func (p *HTTPProvider) FetchSpotPrice(ctx context.Context, symbol string) (float64, error) {
	u := fmt.Sprintf("%s/quote?symbol=%s&apikey=%s",
		p.baseURL, url.QueryEscape(symbol), url.QueryEscape(p.apiKey))

	var q spotQuote
	if err := p.get(ctx, u, &q); err != nil {
		return 0, fmt.Errorf("marketdata: %s FetchSpotPrice(%s): %w", p.name, symbol, err)
	}
	price, _ := q.Price.Float64()
	return price, nil
}

func (p *HTTPProvider) get(ctx context.Context, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
