package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

// FinanceClient handles the RapidAPI finance-data vendor. All monetary
// figures stay in the vendor's native currency; no conversion happens here.
type FinanceClient struct {
	httpClient *http.Client
	baseURL    string
	host       string
	creds      *credentials.Store
	logger     *logrus.Entry
}

// quoteResponse mirrors the vendor's quote envelope
type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketChange        float64 `json:"regularMarketChange"`
			RegularMarketChangePercent float64 `json:"regularMarketChangePercent"`
			RegularMarketOpen          float64 `json:"regularMarketOpen"`
			RegularMarketDayHigh       float64 `json:"regularMarketDayHigh"`
			RegularMarketDayLow        float64 `json:"regularMarketDayLow"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
			RegularMarketVolume        float64 `json:"regularMarketVolume"`
		} `json:"result"`
	} `json:"quoteResponse"`
}

// chartResponse mirrors the vendor's historical chart envelope. Price arrays
// can carry nulls for halted sessions, hence the pointers.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
	} `json:"chart"`
}

// profileResponse mirrors the vendor's company profile envelope
type profileResponse struct {
	AssetProfile struct {
		Sector             string `json:"sector"`
		Industry           string `json:"industry"`
		Website            string `json:"website"`
		LongBusinessSummary string `json:"longBusinessSummary"`
	} `json:"assetProfile"`
	Price struct {
		Symbol       string `json:"symbol"`
		LongName     string `json:"longName"`
		ExchangeName string `json:"exchangeName"`
	} `json:"price"`
}

// indicatorResponse mirrors the vendor's technical indicator envelope
type indicatorResponse struct {
	Series []struct {
		Timestamp int64   `json:"timestamp"`
		Value     float64 `json:"value"`
	} `json:"series"`
}

// NewFinanceClient creates a new finance-data client
func NewFinanceClient(cfg *config.FinanceConfig, creds *credentials.Store, logger *logrus.Logger) *FinanceClient {
	return &FinanceClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		host:       cfg.Host,
		creds:      creds,
		logger:     logger.WithField("component", "finance-client"),
	}
}

// GetQuote fetches the current quote for a symbol
func (c *FinanceClient) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	const op = "get quote"

	params := url.Values{}
	params.Set("symbols", symbol)

	var wire quoteResponse
	if err := c.getJSON(ctx, op, "/market/v2/get-quotes", params, &wire); err != nil {
		return nil, err
	}

	if len(wire.QuoteResponse.Result) == 0 {
		return nil, &Error{
			Vendor:     models.VendorFinance,
			Op:         op,
			StatusCode: http.StatusNotFound,
			Message:    "symbol not found: " + symbol,
		}
	}

	r := wire.QuoteResponse.Result[0]
	return &models.Quote{
		Symbol:        r.Symbol,
		Price:         r.RegularMarketPrice,
		Change:        r.RegularMarketChange,
		ChangePercent: r.RegularMarketChangePercent,
		Open:          r.RegularMarketOpen,
		High:          r.RegularMarketDayHigh,
		Low:           r.RegularMarketDayLow,
		PreviousClose: r.RegularMarketPreviousClose,
		Volume:        r.RegularMarketVolume,
	}, nil
}

// GetHistory fetches a historical price series for a symbol
func (c *FinanceClient) GetHistory(ctx context.Context, symbol, interval, span string) (*models.PriceHistory, error) {
	const op = "get history"

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", interval)
	params.Set("range", span)

	var wire chartResponse
	if err := c.getJSON(ctx, op, "/stock/v3/get-chart", params, &wire); err != nil {
		return nil, err
	}

	history := &models.PriceHistory{Symbol: symbol, Interval: interval}
	if len(wire.Chart.Result) == 0 || len(wire.Chart.Result[0].Indicators.Quote) == 0 {
		return history, nil
	}

	result := wire.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	for i, ts := range result.Timestamp {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		point := models.PricePoint{Timestamp: ts, Close: *quote.Close[i]}
		if i < len(quote.Open) && quote.Open[i] != nil {
			point.Open = *quote.Open[i]
		}
		if i < len(quote.High) && quote.High[i] != nil {
			point.High = *quote.High[i]
		}
		if i < len(quote.Low) && quote.Low[i] != nil {
			point.Low = *quote.Low[i]
		}
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			point.Volume = *quote.Volume[i]
		}
		history.Points = append(history.Points, point)
	}

	c.logger.WithFields(logrus.Fields{
		"symbol": symbol,
		"points": len(history.Points),
	}).Debug("Fetched price history")

	return history, nil
}

// GetProfile fetches descriptive company data for a symbol
func (c *FinanceClient) GetProfile(ctx context.Context, symbol string) (*models.CompanyProfile, error) {
	const op = "get profile"

	params := url.Values{}
	params.Set("symbol", symbol)

	var wire profileResponse
	if err := c.getJSON(ctx, op, "/stock/v2/get-profile", params, &wire); err != nil {
		return nil, err
	}

	return &models.CompanyProfile{
		Symbol:      symbol,
		Name:        wire.Price.LongName,
		Exchange:    wire.Price.ExchangeName,
		Sector:      wire.AssetProfile.Sector,
		Industry:    wire.AssetProfile.Industry,
		Website:     wire.AssetProfile.Website,
		Description: wire.AssetProfile.LongBusinessSummary,
	}, nil
}

// GetIndicator fetches a technical indicator series for a symbol
func (c *FinanceClient) GetIndicator(ctx context.Context, symbol, indicator, interval string) (*models.IndicatorSeries, error) {
	const op = "get indicator"

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("indicator", indicator)
	params.Set("interval", interval)

	var wire indicatorResponse
	if err := c.getJSON(ctx, op, "/market/get-technical-indicator", params, &wire); err != nil {
		return nil, err
	}

	series := &models.IndicatorSeries{Symbol: symbol, Indicator: indicator}
	for _, p := range wire.Series {
		series.Points = append(series.Points, models.IndicatorPoint{
			Timestamp: p.Timestamp,
			Value:     p.Value,
		})
	}
	return series, nil
}

// getJSON performs one GET with the vendor's RapidAPI headers
func (c *FinanceClient) getJSON(ctx context.Context, op, path string, params url.Values, dest interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return transportError(models.VendorFinance, op, err)
	}
	req.Header.Set("X-RapidAPI-Key", c.creds.Get(models.VendorFinance).Key)
	req.Header.Set("X-RapidAPI-Host", c.host)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(models.VendorFinance, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(models.VendorFinance, op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return decodeError(models.VendorFinance, op, resp.StatusCode, err)
	}

	return nil
}
