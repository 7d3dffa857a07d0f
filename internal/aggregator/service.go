package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/insight-back/internal/cache"
	"github.com/insight-back/internal/vendors"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

const insightSystemPrompt = "You are a financial analyst assistant. Given a " +
	"JSON payload with a price-movement prediction and a current quote for " +
	"one stock, write a short, plain-language insight for a retail dashboard " +
	"user. Mention the likelihood as a whole percentage, the reference " +
	"price, and notable quote context. Do not give financial advice."

// Service is the view-binding layer: it invokes vendor clients, caches the
// last successful result by request key, and deduplicates concurrent
// identical fetches. On vendor failure the cached value is left untouched,
// so callers keep showing the prior state.
type Service struct {
	predictions *vendors.PredictionsClient
	finance     *vendors.FinanceClient
	news        *vendors.NewsClient
	textgen     *vendors.TextGenClient
	speech      *vendors.SpeechClient

	cache cache.Cache
	ttl   config.CacheConfig
	group singleflight.Group

	logger *logrus.Entry
}

// NewService creates the aggregation service
func NewService(
	predictions *vendors.PredictionsClient,
	finance *vendors.FinanceClient,
	news *vendors.NewsClient,
	textgen *vendors.TextGenClient,
	speech *vendors.SpeechClient,
	responseCache cache.Cache,
	ttl config.CacheConfig,
	logger *logrus.Logger,
) *Service {
	return &Service{
		predictions: predictions,
		finance:     finance,
		news:        news,
		textgen:     textgen,
		speech:      speech,
		cache:       responseCache,
		ttl:         ttl,
		logger:      logger.WithField("component", "aggregator"),
	}
}

// Predictions fetches a predictions page, serving from cache when fresh.
// The returned bool reports a cache hit.
func (s *Service) Predictions(ctx context.Context, opts vendors.ListOptions) (*models.PredictionPage, bool, error) {
	key := predictionsKey(opts)

	var cached models.PredictionPage
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, true, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		page, err := s.predictions.ListPredictions(ctx, opts)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, page, s.ttl.PredictionsTTL)
		return page, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*models.PredictionPage), false, nil
}

// Prediction fetches the current prediction for one symbol
func (s *Service) Prediction(ctx context.Context, symbol string) (*models.Prediction, error) {
	page, _, err := s.Predictions(ctx, vendors.ListOptions{Symbol: symbol, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, &vendors.Error{
			Vendor:     models.VendorPredictions,
			Op:         "get prediction",
			StatusCode: 404,
			Message:    fmt.Sprintf("no prediction for %s", symbol),
		}
	}
	pred := page.Results[0]
	return &pred, nil
}

// SearchTickers searches the predictions vendor's ticker universe
func (s *Service) SearchTickers(ctx context.Context, query string) ([]models.Ticker, error) {
	key := "tickers:" + strings.ToLower(query)

	var cached []models.Ticker
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		tickers, err := s.predictions.SearchTickers(ctx, query)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, tickers, s.ttl.PredictionsTTL)
		return tickers, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.Ticker), nil
}

// Quote fetches the current quote for a symbol
func (s *Service) Quote(ctx context.Context, symbol string) (*models.Quote, error) {
	key := "quote:" + symbol

	var cached models.Quote
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		quote, err := s.finance.GetQuote(ctx, symbol)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, quote, s.ttl.QuoteTTL)
		return quote, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Quote), nil
}

// History fetches a historical price series for a symbol
func (s *Service) History(ctx context.Context, symbol, interval, span string) (*models.PriceHistory, error) {
	key := fmt.Sprintf("history:%s:%s:%s", symbol, interval, span)

	var cached models.PriceHistory
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		history, err := s.finance.GetHistory(ctx, symbol, interval, span)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, history, s.ttl.HistoryTTL)
		return history, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.PriceHistory), nil
}

// Profile fetches descriptive company data for a symbol
func (s *Service) Profile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	key := "profile:" + symbol

	var cached models.CompanyProfile
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		profile, err := s.finance.GetProfile(ctx, symbol)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, profile, s.ttl.HistoryTTL)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CompanyProfile), nil
}

// Indicator fetches a technical indicator series for a symbol
func (s *Service) Indicator(ctx context.Context, symbol, indicator, interval string) (*models.IndicatorSeries, error) {
	key := fmt.Sprintf("indicator:%s:%s:%s", symbol, indicator, interval)

	var cached models.IndicatorSeries
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		series, err := s.finance.GetIndicator(ctx, symbol, indicator, interval)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, series, s.ttl.HistoryTTL)
		return series, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.IndicatorSeries), nil
}

// News fetches one page of historical news
func (s *Service) News(ctx context.Context, symbols []string, limit int, pageToken string) (*models.NewsPage, error) {
	key := fmt.Sprintf("news:%s:%d:%s", strings.Join(symbols, ","), limit, pageToken)

	var cached models.NewsPage
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return &cached, nil
	}

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		page, err := s.news.GetNews(ctx, symbols, limit, pageToken)
		if err != nil {
			return nil, err
		}
		s.store(ctx, key, page, s.ttl.NewsTTL)
		return page, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.NewsPage), nil
}

// Bars fetches historical OHLCV bars for a symbol
func (s *Service) Bars(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]models.Bar, error) {
	return s.news.GetBars(ctx, symbol, timeframe, start, end, limit)
}

// Insight generates a text analysis for one symbol from its current
// prediction and quote. Generated artifacts are never cached; each request
// produces a fresh one.
func (s *Service) Insight(ctx context.Context, symbol string) (*models.Insight, error) {
	prediction, err := s.Prediction(ctx, symbol)
	if err != nil {
		return nil, err
	}

	// The quote enriches the analysis but its absence should not block it.
	quote, err := s.Quote(ctx, symbol)
	if err != nil {
		s.logger.WithError(err).WithField("symbol", symbol).Warn("Generating insight without quote context")
		quote = nil
	}

	payload, err := json.Marshal(map[string]interface{}{
		"prediction": prediction,
		"quote":      quote,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize insight payload: %w", err)
	}

	text, err := s.textgen.Generate(ctx, insightSystemPrompt, string(payload))
	if err != nil {
		return nil, err
	}

	return &models.Insight{
		Symbol:      symbol,
		Text:        text,
		Model:       s.textgen.Model(),
		GeneratedAt: time.Now(),
	}, nil
}

// Narrate synthesizes speech for a piece of text
func (s *Service) Narrate(ctx context.Context, req models.SpeechRequest) (*models.AudioClip, error) {
	return s.speech.Synthesize(ctx, req.Text, req.Voice)
}

// ValidateKey checks a candidate predictions key against the vendor
func (s *Service) ValidateKey(ctx context.Context, key string) error {
	return s.predictions.ValidateKey(ctx, key)
}

// InvalidatePredictions drops the cached predictions page for a request key.
// This is the manual "refresh" action.
func (s *Service) InvalidatePredictions(ctx context.Context, opts vendors.ListOptions) error {
	return s.cache.Delete(ctx, predictionsKey(opts))
}

// InvalidateQuote drops the cached quote for a symbol
func (s *Service) InvalidateQuote(ctx context.Context, symbol string) error {
	return s.cache.Delete(ctx, "quote:"+symbol)
}

// store caches a successful result; a cache write failure is logged and
// otherwise ignored, because the fetched value is still good.
func (s *Service) store(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if err := s.cache.SetJSON(ctx, key, value, ttl); err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("Failed to cache response")
	}
}

func predictionsKey(opts vendors.ListOptions) string {
	return fmt.Sprintf("predictions:%s:%s:%d:%d", opts.Symbol, opts.Ordering, opts.Limit, opts.Offset)
}
