package aggregator

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insight-back/internal/cache"
	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/internal/vendors"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type vendorFixture struct {
	service *Service
	cache   *cache.MemoryCache

	predictionCalls atomic.Int64
	quoteCalls      atomic.Int64

	failPredictions atomic.Bool
	predictionDelay time.Duration
}

// newFixture stands up httptest vendors behind a real Service with an
// in-memory cache.
func newFixture(t *testing.T) *vendorFixture {
	t.Helper()

	f := &vendorFixture{cache: cache.NewMemoryCache()}

	mux := http.NewServeMux()
	mux.HandleFunc("/predictions/", func(w http.ResponseWriter, r *http.Request) {
		f.predictionCalls.Add(1)
		if f.predictionDelay > 0 {
			time.Sleep(f.predictionDelay)
		}
		if f.failPredictions.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"count":1,"results":[{
			"ticker": "AAPL",
			"company_name": "Apple Inc.",
			"as_of_date": "2025-06-01",
			"valid_until": "2025-06-08",
			"price_increase_likelihood": 0.925,
			"reference_price": 182.63,
			"volatility": 0.31
		}]}`))
	})
	mux.HandleFunc("/market/v2/get-quotes", func(w http.ResponseWriter, r *http.Request) {
		f.quoteCalls.Add(1)
		w.Write([]byte(`{"quoteResponse":{"result":[{"symbol":"AAPL","regularMarketPrice":182.63}]}}`))
	})
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[{"message":{"content":"Apple looks strong this week."}}]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	creds := credentials.NewStore(credentials.NewMemoryBackend(), map[models.Vendor]models.Credential{
		models.VendorPredictions: {Key: "pk"},
		models.VendorFinance:     {Key: "fk"},
		models.VendorNews:        {Key: "nk", Secret: "ns"},
		models.VendorTextGen:     {Key: "tk"},
		models.VendorSpeech:      {Key: "sk"},
	}, testLogger())

	timeout := 5 * time.Second
	log := testLogger()
	f.service = NewService(
		vendors.NewPredictionsClient(&config.PredictionsConfig{BaseURL: server.URL, Timeout: timeout}, creds, log),
		vendors.NewFinanceClient(&config.FinanceConfig{BaseURL: server.URL, Host: "h", Timeout: timeout}, creds, log),
		vendors.NewNewsClient(&config.NewsConfig{BaseURL: server.URL, Timeout: timeout}, creds, log),
		vendors.NewTextGenClient(&config.TextGenConfig{BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: timeout}, creds, log),
		vendors.NewSpeechClient(&config.SpeechConfig{BaseURL: server.URL, VoiceID: "v", Timeout: timeout}, creds, log),
		f.cache,
		config.CacheConfig{
			PredictionsTTL: time.Minute,
			QuoteTTL:       time.Minute,
			HistoryTTL:     time.Minute,
			NewsTTL:        time.Minute,
		},
		log,
	)
	return f
}

func TestService_PredictionsCaching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := vendors.ListOptions{Symbol: "AAPL", Limit: 25}

	page, hit, err := f.service.Predictions(ctx, opts)
	require.NoError(t, err)
	assert.False(t, hit)
	require.Len(t, page.Results, 1)
	assert.Equal(t, 0.925, page.Results[0].Likelihood)

	// Second identical request is served from cache.
	page, hit, err = f.service.Predictions(ctx, opts)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, page.Results, 1)
	assert.Equal(t, int64(1), f.predictionCalls.Load())

	// A different request key misses.
	_, hit, err = f.service.Predictions(ctx, vendors.ListOptions{Symbol: "TSLA", Limit: 25})
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(2), f.predictionCalls.Load())
}

func TestService_InvalidateForcesRefetch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := vendors.ListOptions{Symbol: "AAPL", Limit: 25}

	_, _, err := f.service.Predictions(ctx, opts)
	require.NoError(t, err)

	require.NoError(t, f.service.InvalidatePredictions(ctx, opts))

	_, hit, err := f.service.Predictions(ctx, opts)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, int64(2), f.predictionCalls.Load())
}

func TestService_VendorFailureKeepsCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	opts := vendors.ListOptions{Symbol: "AAPL", Limit: 25}

	_, _, err := f.service.Predictions(ctx, opts)
	require.NoError(t, err)

	// The vendor breaks; callers keep seeing the cached page.
	f.failPredictions.Store(true)

	page, hit, err := f.service.Predictions(ctx, opts)
	require.NoError(t, err)
	assert.True(t, hit)
	require.Len(t, page.Results, 1)

	// A request key with no cached value surfaces the failure instead.
	_, _, err = f.service.Predictions(ctx, vendors.ListOptions{Symbol: "TSLA", Limit: 25})
	require.Error(t, err)

	ve, ok := vendors.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadGateway, ve.StatusCode)

	// The failure wrote nothing: once the vendor recovers, the next fetch
	// is a fresh miss rather than a poisoned hit.
	f.failPredictions.Store(false)
	_, hit, err = f.service.Predictions(ctx, vendors.ListOptions{Symbol: "TSLA", Limit: 25})
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestService_ConcurrentIdenticalRequestsCollapse(t *testing.T) {
	f := newFixture(t)
	f.predictionDelay = 50 * time.Millisecond
	ctx := context.Background()
	opts := vendors.ListOptions{Symbol: "AAPL", Limit: 25}

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = f.service.Predictions(ctx, opts)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "worker %d", i)
	}
	assert.Equal(t, int64(1), f.predictionCalls.Load())
}

func TestService_QuoteCaching(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quote, err := f.service.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, 182.63, quote.Price)

	_, err = f.service.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.quoteCalls.Load())

	require.NoError(t, f.service.InvalidateQuote(ctx, "AAPL"))
	_, err = f.service.Quote(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, int64(2), f.quoteCalls.Load())
}

func TestService_InsightNeverCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Insight(ctx, "AAPL")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", first.Symbol)
	assert.Equal(t, "Apple looks strong this week.", first.Text)
	assert.Equal(t, "gpt-4o-mini", first.Model)
	assert.False(t, first.GeneratedAt.IsZero())

	second, err := f.service.Insight(ctx, "AAPL")
	require.NoError(t, err)

	// Each call produces a fresh artifact.
	assert.False(t, second.GeneratedAt.Before(first.GeneratedAt))
}

func TestService_PredictionVendorFailure(t *testing.T) {
	f := newFixture(t)
	f.failPredictions.Store(true)

	_, err := f.service.Prediction(context.Background(), "AAPL")
	require.Error(t, err)

	_, ok := vendors.AsError(err)
	assert.True(t, ok)
}
