package models

// Vendor identifies an external API provider
type Vendor string

const (
	VendorPredictions Vendor = "predictions"
	VendorFinance     Vendor = "finance"
	VendorNews        Vendor = "news"
	VendorTextGen     Vendor = "textgen"
	VendorSpeech      Vendor = "speech"
)

// AllVendors lists every vendor slot in a stable order
func AllVendors() []Vendor {
	return []Vendor{
		VendorPredictions,
		VendorFinance,
		VendorNews,
		VendorTextGen,
		VendorSpeech,
	}
}

// Valid reports whether v names a known vendor slot
func (v Vendor) Valid() bool {
	switch v {
	case VendorPredictions, VendorFinance, VendorNews, VendorTextGen, VendorSpeech:
		return true
	}
	return false
}

// Credential holds the secret material for one vendor slot.
// Secret is only used by the news/brokerage vendor, which authenticates
// with a key/secret pair; it is empty everywhere else.
type Credential struct {
	Key    string `json:"key"`
	Secret string `json:"secret,omitempty"`
}

// IsZero reports whether no credential material is present
func (c Credential) IsZero() bool {
	return c.Key == "" && c.Secret == ""
}

// CredentialStatus describes a vendor slot without exposing the secret
type CredentialStatus struct {
	Vendor     Vendor `json:"vendor"`
	Configured bool   `json:"configured"`
	MaskedKey  string `json:"masked_key,omitempty"`
	IsDefault  bool   `json:"is_default"`
}
