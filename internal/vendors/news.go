package vendors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/insight-back/internal/credentials"
	"github.com/insight-back/pkg/config"
	"github.com/insight-back/pkg/models"
)

// NewsClient handles the brokerage vendor's REST endpoints: historical news
// and historical bars. The streaming feed lives in internal/stream and
// shares the same credential slot.
type NewsClient struct {
	httpClient *http.Client
	baseURL    string
	creds      *credentials.Store
	logger     *logrus.Entry
}

// newsRecord mirrors the vendor's news article shape
type newsRecord struct {
	ID        int64    `json:"id"`
	Headline  string   `json:"headline"`
	Summary   string   `json:"summary"`
	Symbols   []string `json:"symbols"`
	Source    string   `json:"source"`
	URL       string   `json:"url"`
	CreatedAt string   `json:"created_at"`
}

// newsListResponse mirrors the vendor's news listing envelope
type newsListResponse struct {
	News      []newsRecord `json:"news"`
	NextToken string       `json:"next_page_token"`
}

// barsResponse mirrors the vendor's historical bars envelope
type barsResponse struct {
	Bars []struct {
		Timestamp  string  `json:"t"`
		Open       float64 `json:"o"`
		High       float64 `json:"h"`
		Low        float64 `json:"l"`
		Close      float64 `json:"c"`
		Volume     float64 `json:"v"`
		TradeCount int64   `json:"n"`
	} `json:"bars"`
	Symbol    string `json:"symbol"`
	NextToken string `json:"next_page_token"`
}

// NewNewsClient creates a new brokerage news client
func NewNewsClient(cfg *config.NewsConfig, creds *credentials.Store, logger *logrus.Logger) *NewsClient {
	return &NewsClient{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		creds:      creds,
		logger:     logger.WithField("component", "news-client"),
	}
}

// GetNews fetches one page of historical news. An empty symbols slice
// fetches news across the whole market.
func (c *NewsClient) GetNews(ctx context.Context, symbols []string, limit int, pageToken string) (*models.NewsPage, error) {
	const op = "get news"

	params := url.Values{}
	if len(symbols) > 0 {
		params.Set("symbols", strings.Join(symbols, ","))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if pageToken != "" {
		params.Set("page_token", pageToken)
	}

	var wire newsListResponse
	if err := c.getJSON(ctx, op, "/v1beta1/news", params, &wire); err != nil {
		return nil, err
	}

	page := &models.NewsPage{NextToken: wire.NextToken}
	for _, rec := range wire.News {
		page.Items = append(page.Items, normalizeNewsRecord(rec))
	}

	c.logger.WithField("count", len(page.Items)).Debug("Fetched news page")
	return page, nil
}

// GetBars fetches historical OHLCV bars for a symbol
func (c *NewsClient) GetBars(ctx context.Context, symbol, timeframe string, start, end time.Time, limit int) ([]models.Bar, error) {
	const op = "get bars"

	params := url.Values{}
	params.Set("timeframe", timeframe)
	if !start.IsZero() {
		params.Set("start", start.Format(time.RFC3339))
	}
	if !end.IsZero() {
		params.Set("end", end.Format(time.RFC3339))
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var wire barsResponse
	if err := c.getJSON(ctx, op, "/v2/stocks/"+url.PathEscape(symbol)+"/bars", params, &wire); err != nil {
		return nil, err
	}

	bars := make([]models.Bar, 0, len(wire.Bars))
	for _, rec := range wire.Bars {
		ts, err := time.Parse(time.RFC3339, rec.Timestamp)
		if err != nil {
			c.logger.WithError(err).WithField("timestamp", rec.Timestamp).Warn("Skipping bar with bad timestamp")
			continue
		}
		bars = append(bars, models.Bar{
			Symbol:     symbol,
			Timestamp:  ts.Unix(),
			Open:       rec.Open,
			High:       rec.High,
			Low:        rec.Low,
			Close:      rec.Close,
			Volume:     rec.Volume,
			TradeCount: rec.TradeCount,
		})
	}
	return bars, nil
}

// normalizeNewsRecord maps the vendor shape to a NewsItem. A bad timestamp
// does not drop the article; the zero time is display-handled upstream.
func normalizeNewsRecord(rec newsRecord) models.NewsItem {
	published, _ := time.Parse(time.RFC3339, rec.CreatedAt)
	return models.NewsItem{
		ID:          rec.ID,
		Headline:    rec.Headline,
		Summary:     rec.Summary,
		Symbols:     rec.Symbols,
		Source:      rec.Source,
		URL:         rec.URL,
		PublishedAt: published,
	}
}

// getJSON performs one GET with the vendor's key/secret header pair
func (c *NewsClient) getJSON(ctx context.Context, op, path string, params url.Values, dest interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return transportError(models.VendorNews, op, err)
	}

	cred := c.creds.Get(models.VendorNews)
	req.Header.Set("APCA-API-KEY-ID", cred.Key)
	req.Header.Set("APCA-API-SECRET-KEY", cred.Secret)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(models.VendorNews, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(models.VendorNews, op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return decodeError(models.VendorNews, op, resp.StatusCode, err)
	}

	return nil
}
