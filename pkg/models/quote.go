package models

// Quote represents a point-in-time stock quote.
// All monetary figures are in the vendor's native currency (USD assumed);
// no conversion happens anywhere in this service.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Open          float64 `json:"open"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	PreviousClose float64 `json:"previous_close"`
	Volume        float64 `json:"volume"`
}

// PricePoint is one sample of a historical price series
type PricePoint struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

// PriceHistory is a list-shaped historical series for one symbol
type PriceHistory struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Points   []PricePoint `json:"points"`
}

// CompanyProfile holds descriptive company data from the finance vendor
type CompanyProfile struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Exchange    string `json:"exchange"`
	Sector      string `json:"sector,omitempty"`
	Industry    string `json:"industry,omitempty"`
	Website     string `json:"website,omitempty"`
	Description string `json:"description,omitempty"`
}

// IndicatorPoint is one value of a technical indicator series
type IndicatorPoint struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// IndicatorSeries holds a technical indicator computed by the finance vendor
type IndicatorSeries struct {
	Symbol    string           `json:"symbol"`
	Indicator string           `json:"indicator"`
	Points    []IndicatorPoint `json:"points"`
}

// Bar represents OHLCV candlestick data from the brokerage vendor
type Bar struct {
	Symbol     string  `json:"symbol"`
	Timestamp  int64   `json:"timestamp"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	Volume     float64 `json:"volume"`
	TradeCount int64   `json:"trade_count,omitempty"`
}
