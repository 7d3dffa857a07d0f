package vendors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

// PredictionsClient handles the predictions vendor API. Likelihood values
// come back as floats in [0,1] and are passed through unmodified; display
// rounding is strictly a caller concern.
type PredictionsClient struct {
	httpClient *http.Client
	baseURL    string
	creds      *credentials.Store
	logger     *logrus.Entry
}

// predictionRecord mirrors the vendor's wire shape
type predictionRecord struct {
	Ticker                  string  `json:"ticker"`
	CompanyName             string  `json:"company_name"`
	AsOfDate                string  `json:"as_of_date"`
	ValidUntil              string  `json:"valid_until"`
	PriceIncreaseLikelihood float64 `json:"price_increase_likelihood"`
	ReferencePrice          float64 `json:"reference_price"`
	Volatility              float64 `json:"volatility"`
}

// predictionListResponse mirrors the vendor's paginated envelope
type predictionListResponse struct {
	Count    int                `json:"count"`
	Next     string             `json:"next"`
	Previous string             `json:"previous"`
	Results  []predictionRecord `json:"results"`
}

// tickerListResponse mirrors the vendor's ticker search envelope
type tickerListResponse struct {
	Results []struct {
		Ticker      string `json:"ticker"`
		CompanyName string `json:"company_name"`
	} `json:"results"`
}

// ListOptions are the vendor's list query parameters
type ListOptions struct {
	Symbol   string
	Ordering string
	Limit    int
	Offset   int
}

// NewPredictionsClient creates a new predictions client
func NewPredictionsClient(cfg *config.PredictionsConfig, creds *credentials.Store, logger *logrus.Logger) *PredictionsClient {
	return &PredictionsClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		creds:      creds,
		logger:     logger.WithField("component", "predictions-client"),
	}
}

// ListPredictions fetches one page of predictions
func (c *PredictionsClient) ListPredictions(ctx context.Context, opts ListOptions) (*models.PredictionPage, error) {
	const op = "list predictions"

	params := url.Values{}
	if opts.Symbol != "" {
		params.Set("ticker", opts.Symbol)
	}
	if opts.Ordering != "" {
		params.Set("ordering", opts.Ordering)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var wire predictionListResponse
	if err := c.getJSON(ctx, op, "/predictions/", params, c.apiKey(), &wire); err != nil {
		return nil, err
	}

	page := &models.PredictionPage{
		Count:    wire.Count,
		Next:     wire.Next,
		Previous: wire.Previous,
		Results:  make([]models.Prediction, 0, len(wire.Results)),
	}
	for _, rec := range wire.Results {
		page.Results = append(page.Results, models.Prediction{
			Symbol:         rec.Ticker,
			CompanyName:    rec.CompanyName,
			AsOfDate:       rec.AsOfDate,
			ValidUntil:     rec.ValidUntil,
			Likelihood:     rec.PriceIncreaseLikelihood,
			ReferencePrice: rec.ReferencePrice,
			Volatility:     rec.Volatility,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"count":  page.Count,
		"symbol": opts.Symbol,
	}).Debug("Fetched predictions page")

	return page, nil
}

// GetPrediction fetches the current prediction for one symbol
func (c *PredictionsClient) GetPrediction(ctx context.Context, symbol string) (*models.Prediction, error) {
	page, err := c.ListPredictions(ctx, ListOptions{Symbol: symbol, Limit: 1})
	if err != nil {
		return nil, err
	}

	if len(page.Results) == 0 {
		return nil, &Error{
			Vendor:     models.VendorPredictions,
			Op:         "get prediction",
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("no prediction for %s", symbol),
		}
	}

	pred := page.Results[0]
	return &pred, nil
}

// SearchTickers searches the vendor's ticker universe
func (c *PredictionsClient) SearchTickers(ctx context.Context, query string) ([]models.Ticker, error) {
	const op = "search tickers"

	params := url.Values{}
	params.Set("search", query)

	var wire tickerListResponse
	if err := c.getJSON(ctx, op, "/tickers/", params, c.apiKey(), &wire); err != nil {
		return nil, err
	}

	tickers := make([]models.Ticker, 0, len(wire.Results))
	for _, rec := range wire.Results {
		tickers = append(tickers, models.Ticker{
			Symbol:      rec.Ticker,
			DisplayName: rec.CompanyName,
		})
	}
	return tickers, nil
}

// ValidateKey checks a candidate key with a cheap request. This is the
// only key validation in the system; the credential store accepts any
// string and defers judgement to the vendor.
func (c *PredictionsClient) ValidateKey(ctx context.Context, key string) error {
	params := url.Values{}
	params.Set("limit", "1")

	var wire predictionListResponse
	return c.getJSON(ctx, "validate key", "/predictions/", params, key, &wire)
}

// apiKey returns the active key from the credential store
func (c *PredictionsClient) apiKey() string {
	return c.creds.Get(models.VendorPredictions).Key
}

// getJSON performs one GET against the vendor and decodes the response.
// Single attempt, no retries; failures surface immediately as *Error.
func (c *PredictionsClient) getJSON(ctx context.Context, op, path string, params url.Values, key string, dest interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return transportError(models.VendorPredictions, op, err)
	}
	req.Header.Set("Authorization", "Api-Key "+key)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(models.VendorPredictions, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(models.VendorPredictions, op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return decodeError(models.VendorPredictions, op, resp.StatusCode, err)
	}

	return nil
}
