package models

// ErrorResponse represents error message structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthStatus represents system health information
type HealthStatus struct {
	Status      string          `json:"status"`
	Timestamp   int64           `json:"timestamp"`
	Services    map[string]bool `json:"services"`
	Connections int             `json:"connections"`
	Version     string          `json:"version"`
}

// StreamStatus reports the news streaming session state
type StreamStatus struct {
	State       string `json:"state"`
	ConnectedAt int64  `json:"connected_at,omitempty"`
	Received    int64  `json:"received"`
}

// NewsResponse represents the news listing API response
type NewsResponse struct {
	Items     []NewsItem `json:"items"`
	Count     int        `json:"count"`
	NextToken string     `json:"next_token,omitempty"`
}

// PredictionsResponse represents the predictions listing API response
type PredictionsResponse struct {
	Predictions []Prediction `json:"predictions"`
	Count       int          `json:"count"`
	Cached      bool         `json:"cached,omitempty"`
}

// TickersResponse represents the ticker search API response
type TickersResponse struct {
	Tickers []Ticker `json:"tickers"`
	Count   int      `json:"count"`
}
