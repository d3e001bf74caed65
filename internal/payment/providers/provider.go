package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/models"
)

// Adapter normalizes one payment gateway's webhook deliveries into the
// canonical PaymentConfirmed event. VerifySignature must be checked against
// the raw request body before ParseEvent; a verification failure is fatal
// for the request. ParseEvent returns (nil, nil) for event types that are
// acknowledged but not processed.
type Adapter interface {
	Name() string
	Enabled() bool
	VerifySignature(rawBody []byte, header http.Header) bool
	ParseEvent(rawBody []byte) (*models.PaymentConfirmed, error)
}

// BuildRegistry wires one adapter per gateway from the provider config.
// Adapters without credentials stay in the registry but report disabled,
// so their routes can answer with a clear 503 instead of a 404.
func BuildRegistry(cfg config.ProviderConfig) map[string]Adapter {
	return map[string]Adapter{
		"paystack": NewPaystack(cfg.PaystackSecretKey),
		"stripe":   NewStripe(cfg.StripeWebhookSecret),
		"fincra":   NewFincra(cfg.FincraWebhookSecret),
		"alatpay":  NewAlatPay(cfg.AlatPayWebhookSecret),
	}
}

// supportedCurrencies lists the settlement currencies each gateway accepts
// at checkout. The direct order endpoint rejects intents that name a
// gateway/currency pair outside this table before any DB work happens.
var supportedCurrencies = map[string]map[string]bool{
	"paystack": {"NGN": true, "USD": true, "GBP": true, "GHS": true},
	"stripe":   {"USD": true, "GBP": true, "EUR": true},
	"fincra":   {"NGN": true, "USD": true, "GBP": true, "EUR": true, "KES": true, "GHS": true},
	"alatpay":  {"NGN": true, "USD": true},
}

// CurrencySupported reports whether the named gateway settles in the given
// currency. Unknown gateways pass; the webhook registry is the authority on
// which gateways exist at all.
func CurrencySupported(provider, currency string) bool {
	table, ok := supportedCurrencies[strings.ToLower(provider)]
	if !ok {
		return true
	}
	return table[strings.ToUpper(currency)]
}

// decodeIntent unpacks the order intent a gateway carried through checkout
// metadata. Some gateways forward it as a JSON object, others as a
// JSON-encoded string; both shapes show up in production traffic.
func decodeIntent(raw json.RawMessage) (*models.OrderRequest, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("no orderData in provider metadata")
	}

	data := []byte(raw)
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return nil, fmt.Errorf("failed to unquote orderData: %w", err)
		}
		data = []byte(inner)
	}

	var intent models.OrderRequest
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("failed to decode orderData: %w", err)
	}
	return &intent, nil
}
