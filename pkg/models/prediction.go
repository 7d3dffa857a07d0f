package models

// Ticker represents a tradable symbol known to the predictions vendor
type Ticker struct {
	Symbol      string `json:"symbol"`
	DisplayName string `json:"display_name"`
}

// Prediction represents a single price-movement prediction.
// Likelihood is a probability in [0,1] exactly as the vendor returned it.
// Display rounding (x100, whole percent) is a caller concern; this layer
// never pre-rounds.
type Prediction struct {
	Symbol         string  `json:"symbol"`
	CompanyName    string  `json:"company_name,omitempty"`
	AsOfDate       string  `json:"as_of_date"`
	ValidUntil     string  `json:"valid_until"`
	Likelihood     float64 `json:"likelihood"`
	ReferencePrice float64 `json:"reference_price"`
	Volatility     float64 `json:"volatility"`
}

// PredictionPage is one page of a paginated prediction listing
type PredictionPage struct {
	Count    int          `json:"count"`
	Next     string       `json:"next,omitempty"`
	Previous string       `json:"previous,omitempty"`
	Results  []Prediction `json:"results"`
}
