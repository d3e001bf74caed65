package models

// PaymentConfirmed is the canonical, provider-agnostic "payment succeeded"
// event produced by a gateway adapter after signature verification. It is
// ephemeral: it exists only to hand the orchestrator a verified amount and
// the order intent the buyer attached at checkout.
type PaymentConfirmed struct {
	Provider  string       `json:"provider"`
	Reference string       `json:"reference"`
	Amount    float64      `json:"amount"`
	Currency  string       `json:"currency"`
	Intent    OrderRequest `json:"intent"`
}

// CurrencySymbols maps ISO codes to display symbols for artifacts and
// notification emails.
var CurrencySymbols = map[string]string{
	"NGN": "₦",
	"USD": "$",
	"GBP": "£",
	"EUR": "€",
	"GHS": "GH₵",
	"KES": "KSh",
	"UGX": "USh",
	"ZMW": "ZK",
	"ZAR": "R",
}

// CurrencySymbol returns the display symbol for a currency, defaulting to
// the naira sign like the storefront does.
func CurrencySymbol(currency string) string {
	if s, ok := CurrencySymbols[currency]; ok {
		return s
	}
	return "₦"
}
