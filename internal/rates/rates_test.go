package rates

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tokengate/tokengate/internal/conf"
)

var testCurrencies = []conf.Currency{
	{Code: "usdt-trc20", RateID: "tether", FallbackRate: 1},
	{Code: "btc", RateID: "bitcoin", FallbackRate: 60000},
}

func rateServer(t *testing.T, hits *atomic.Int64, price float64) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		rateID := r.URL.Query().Get("ids")
		fmt.Fprintf(w, `{"%s":{"usd":%g}}`, rateID, price)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestUSDRateCachesWithinTTL(t *testing.T) {
	var hits atomic.Int64
	server := rateServer(t, &hits, 61234.5)

	service := New(conf.Rates{BaseURL: server.URL, TTLSeconds: 300}, testCurrencies)

	rate, err := service.USDRate(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.InDelta(t, 61234.5, rate, 0.001)

	rate, err = service.USDRate(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.InDelta(t, 61234.5, rate, 0.001)
	assert.Equal(t, int64(1), hits.Load(), "second lookup inside the TTL must hit the cache")
}

func TestUSDRateFallbackWhenProviderDown(t *testing.T) {
	service := New(conf.Rates{BaseURL: "http://127.0.0.1:1", TTLSeconds: 60}, testCurrencies)

	rate, err := service.USDRate(context.Background(), "tether")
	require.NoError(t, err, "a quote must not fail just because the rate api is down")
	assert.InDelta(t, 1.0, rate, 0.001)
}

func TestUSDRateStaleBeatsFallback(t *testing.T) {
	var hits atomic.Int64
	server := rateServer(t, &hits, 59000)

	service := New(conf.Rates{BaseURL: server.URL, TTLSeconds: 60}, testCurrencies)
	_, err := service.USDRate(context.Background(), "bitcoin")
	require.NoError(t, err)

	// Expire the entry, kill the provider: the stale cached quote wins over
	// the static fallback.
	service.SetForTest("bitcoin", 59000)
	service.ttl = 0
	service.baseURL = "http://127.0.0.1:1"

	rate, err := service.USDRate(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.InDelta(t, 59000.0, rate, 0.001)
}

func TestUSDRateErrorWithoutFallback(t *testing.T) {
	service := New(conf.Rates{BaseURL: "http://127.0.0.1:1", TTLSeconds: 60},
		[]conf.Currency{{Code: "sol", RateID: "solana"}})

	_, err := service.USDRate(context.Background(), "solana")
	assert.Error(t, err)
}

func TestRefreshTaskWarmsCache(t *testing.T) {
	var hits atomic.Int64
	server := rateServer(t, &hits, 2.5)

	service := New(conf.Rates{BaseURL: server.URL, TTLSeconds: 300}, testCurrencies)
	service.RefreshTask(context.Background())
	warmed := hits.Load()
	assert.Equal(t, int64(len(testCurrencies)), warmed)

	_, err := service.USDRate(context.Background(), "tether")
	require.NoError(t, err)
	assert.Equal(t, warmed, hits.Load(), "lookups after refresh must be cache hits")
}
