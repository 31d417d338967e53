package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tokengate/tokengate/internal/client"
	"github.com/tokengate/tokengate/internal/conf"
	"github.com/tokengate/tokengate/internal/utils/log"
)

// Source resolves the USD price of one crypto rate ID (e.g. "tether",
// "ethereum", "bitcoin").
type Source interface {
	USDRate(ctx context.Context, rateID string) (float64, error)
}

type cachedRate struct {
	value     float64
	fetchedAt time.Time
}

// Service caches quotes from a coingecko-compatible simple-price endpoint.
// A stale cache entry beats a fallback, and a fallback beats an error: an
// order quote should not fail just because the rate API hiccuped.
type Service struct {
	baseURL   string
	ttl       time.Duration
	fallbacks map[string]float64

	mu    sync.RWMutex
	cache map[string]cachedRate
}

func New(config conf.Rates, currencies []conf.Currency) *Service {
	fallbacks := make(map[string]float64, len(currencies))
	for _, currency := range currencies {
		if currency.FallbackRate > 0 {
			fallbacks[currency.RateID] = currency.FallbackRate
		}
	}
	ttl := time.Duration(config.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{
		baseURL:   config.BaseURL,
		ttl:       ttl,
		fallbacks: fallbacks,
		cache:     make(map[string]cachedRate),
	}
}

var _ Source = (*Service)(nil)

func (s *Service) USDRate(ctx context.Context, rateID string) (float64, error) {
	s.mu.RLock()
	entry, ok := s.cache[rateID]
	s.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < s.ttl {
		return entry.value, nil
	}

	value, err := s.fetch(ctx, rateID)
	if err != nil {
		if ok {
			log.Warnf("rate fetch for %s failed, using stale quote: %v", rateID, err)
			return entry.value, nil
		}
		if fallback, has := s.fallbacks[rateID]; has {
			log.Warnf("rate fetch for %s failed, using fallback rate %.2f: %v", rateID, fallback, err)
			return fallback, nil
		}
		return 0, fmt.Errorf("failed to fetch rate for %s: %w", rateID, err)
	}

	s.mu.Lock()
	s.cache[rateID] = cachedRate{value: value, fetchedAt: time.Now()}
	s.mu.Unlock()
	return value, nil
}

// RefreshTask pre-warms every configured rate so user-facing quotes hit the
// cache. Runs on the task ticker.
func (s *Service) RefreshTask(ctx context.Context) {
	for rateID := range s.fallbacks {
		value, err := s.fetch(ctx, rateID)
		if err != nil {
			log.Warnf("rate refresh for %s failed: %v", rateID, err)
			continue
		}
		s.mu.Lock()
		s.cache[rateID] = cachedRate{value: value, fetchedAt: time.Now()}
		s.mu.Unlock()
	}
}

func (s *Service) fetch(ctx context.Context, rateID string) (float64, error) {
	if s.baseURL == "" {
		return 0, fmt.Errorf("rates base url not configured")
	}
	httpClient, err := client.GetHTTPClientSystemProxy(false)
	if err != nil {
		return 0, err
	}
	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.baseURL, rateID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate api returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var payload map[string]map[string]float64
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse rate response: %w", err)
	}
	value := payload[rateID]["usd"]
	if value <= 0 {
		return 0, fmt.Errorf("rate api returned no usd quote for %s", rateID)
	}
	return value, nil
}

// SetForTest seeds the cache directly.
func (s *Service) SetForTest(rateID string, value float64) {
	s.mu.Lock()
	s.cache[rateID] = cachedRate{value: value, fetchedAt: time.Now()}
	s.mu.Unlock()
}
