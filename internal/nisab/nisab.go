// Package nisab supplies the threshold value for a run, fetched from the
// configured pages when possible and from configuration otherwise.
package nisab

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"ZakatSentinel/internal/model"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var patterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)aktuelni nisab:\s*(\d{1,3}(?:\.\d{3})*,\d{2})\s*km`),
	regexp.MustCompile(`(?i)nisab:\s*(\d{1,3}(?:\.\d{3})*,\d{2})\s*km`),
	regexp.MustCompile(`(?is)nisab.*?(\d{1,2}\.\d{3},\d{2}).*?km`),
}

// Provider resolves the current threshold.
type Provider struct {
	URLs     []string
	Fallback decimal.Decimal
	Min      decimal.Decimal
	Max      decimal.Decimal
	Client   *http.Client
	Now      func() time.Time
}

// NewProvider creates a provider with optional proxy support.
func NewProvider(urls []string, fallback, min, max decimal.Decimal, proxyURL string) *Provider {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &Provider{
		URLs:     urls,
		Fallback: fallback,
		Min:      min,
		Max:      max,
		Client:   &http.Client{Timeout: 10 * time.Second, Transport: transport},
		Now:      time.Now,
	}
}

// Current returns the fetched threshold, or the configured fallback when no
// page yields a plausible value. It never fails.
func (p *Provider) Current(ctx context.Context) model.ThresholdSnapshot {
	for _, u := range p.URLs {
		v, err := p.fetch(ctx, u)
		if err != nil {
			log.Warnf("nisab fetch from %s failed: %v", u, err)
			continue
		}
		log.Infof("nisab %s fetched from %s", v.StringFixed(2), u)
		return model.ThresholdSnapshot{
			Value:      v,
			Provenance: model.ProvenanceFetched,
			Source:     u,
			FetchedAt:  p.Now(),
		}
	}
	if len(p.URLs) > 0 {
		log.Warnf("could not fetch nisab, using fallback %s", p.Fallback.StringFixed(2))
	}
	return model.ThresholdSnapshot{
		Value:      p.Fallback,
		Provenance: model.ProvenanceFallback,
		Source:     "configuration",
		FetchedAt:  p.Now(),
	}
}

func (p *Provider) fetch(ctx context.Context, pageURL string) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return decimal.Zero, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := p.Client.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return decimal.Zero, fmt.Errorf("read body: %w", err)
	}
	return p.Extract(string(body))
}

// Extract finds the first plausible nisab value in a page.
func (p *Provider) Extract(page string) (decimal.Decimal, error) {
	for _, re := range patterns {
		m := re.FindStringSubmatch(page)
		if m == nil {
			continue
		}
		v, err := ParseLocalNumber(m[1])
		if err != nil {
			continue
		}
		if v.LessThan(p.Min) || v.GreaterThan(p.Max) {
			log.Warnf("nisab value %s outside [%s, %s], ignoring", v, p.Min, p.Max)
			continue
		}
		return v, nil
	}
	return decimal.Zero, fmt.Errorf("no nisab value found")
}

// ParseLocalNumber parses numbers written with '.' thousands separators and a
// ',' decimal mark, as in "24.654,00".
func ParseLocalNumber(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}
