package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// Default upstream endpoints
const (
	DefaultFearGreedURL = "https://api.alternative.me/fng/"
	DefaultGlobalURL    = "https://api.coingecko.com/api/v3/global"
)

// FearGreed is the latest sentiment reading
type FearGreed struct {
	Value          int
	Classification string
}

// GlobalMarket is the aggregate market snapshot
type GlobalMarket struct {
	BTCDominance   *float64
	ETHDominance   *float64
	TotalMarketCap *float64
	TotalVolume24h *float64
}

// Sources fetches macro data from public HTTP APIs
type Sources struct {
	fearGreedURL string
	globalURL    string
	client       *http.Client
}

// NewSources creates upstream clients sharing one HTTP client with the given timeout
func NewSources(fearGreedURL, globalURL string, timeout time.Duration) *Sources {
	if fearGreedURL == "" {
		fearGreedURL = DefaultFearGreedURL
	}
	if globalURL == "" {
		globalURL = DefaultGlobalURL
	}
	return &Sources{
		fearGreedURL: fearGreedURL,
		globalURL:    globalURL,
		client:       &http.Client{Timeout: timeout},
	}
}

func (s *Sources) getJSON(ctx context.Context, url string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", url, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

// FetchFearGreed reads data[0] of the Fear & Greed feed
func (s *Sources) FetchFearGreed(ctx context.Context) (*FearGreed, error) {
	var payload struct {
		Data []struct {
			Value               string `json:"value"`
			ValueClassification string `json:"value_classification"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, s.fearGreedURL, &payload); err != nil {
		return nil, err
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("fear & greed: empty data")
	}

	value, err := strconv.Atoi(payload.Data[0].Value)
	if err != nil {
		return nil, fmt.Errorf("fear & greed value %q: %w", payload.Data[0].Value, err)
	}
	if value < 0 || value > 100 {
		return nil, fmt.Errorf("fear & greed value %d out of range", value)
	}
	return &FearGreed{Value: value, Classification: payload.Data[0].ValueClassification}, nil
}

// FetchGlobal reads market cap shares and totals in USD
func (s *Sources) FetchGlobal(ctx context.Context) (*GlobalMarket, error) {
	var payload struct {
		Data struct {
			MarketCapPercentage map[string]float64 `json:"market_cap_percentage"`
			TotalMarketCap      map[string]float64 `json:"total_market_cap"`
			TotalVolume         map[string]float64 `json:"total_volume"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, s.globalURL, &payload); err != nil {
		return nil, err
	}

	g := &GlobalMarket{
		BTCDominance:   lookup(payload.Data.MarketCapPercentage, "btc"),
		ETHDominance:   lookup(payload.Data.MarketCapPercentage, "eth"),
		TotalMarketCap: lookup(payload.Data.TotalMarketCap, "usd"),
		TotalVolume24h: lookup(payload.Data.TotalVolume, "usd"),
	}
	if g.BTCDominance == nil && g.TotalMarketCap == nil {
		return nil, fmt.Errorf("global market: empty data")
	}
	return g, nil
}

func lookup(m map[string]float64, key string) *float64 {
	v, ok := m[key]
	if !ok {
		return nil
	}
	return &v
}
