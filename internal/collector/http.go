package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"ZakatSentinel/internal/hijri"
	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
)

// HTTPFetcher reads a balance from a JSON endpoint, typically a statement
// parser that has already extracted the closing balance.
type HTTPFetcher struct {
	ID     string
	URL    string
	APIKey string
	Client *http.Client
}

// NewHTTPFetcher creates a new fetcher with optional proxy support.
func NewHTTPFetcher(id, endpoint, apiKey, proxyURL string) *HTTPFetcher {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &HTTPFetcher{
		ID:     id,
		URL:    endpoint,
		APIKey: apiKey,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

func (f *HTTPFetcher) Name() string { return "http:" + f.ID }

// balanceResponse is the expected JSON shape. Balance may be a JSON number or string.
type balanceResponse struct {
	Balance   *decimal.Decimal `json:"balance"`
	Currency  string           `json:"currency"`
	PeriodEnd string           `json:"period_end"`
}

func (f *HTTPFetcher) FetchBalance(ctx context.Context) (*model.Statement, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch balance %s: %w", f.ID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch balance %s: status %d, body: %s", f.ID, resp.StatusCode, string(body))
	}

	var result balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode balance %s: %w", f.ID, err)
	}
	if result.Balance == nil {
		return nil, fmt.Errorf("decode balance %s: missing balance", f.ID)
	}

	st := &model.Statement{
		SourceID: f.ID,
		Currency: result.Currency,
		Balance:  *result.Balance,
	}
	if result.PeriodEnd != "" {
		end, err := hijri.ParseGregorian(result.PeriodEnd)
		if err != nil {
			return nil, fmt.Errorf("decode balance %s: period_end: %w", f.ID, err)
		}
		st.PeriodEnd = end
	}
	return st, nil
}
