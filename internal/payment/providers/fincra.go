package providers

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-fulfillment/internal/models"
)

// Fincra uses the same HMAC-SHA512-hex scheme as Paystack but delivers
// the digest in a bare "signature" header, and its success event is
// charge.successful. Amounts are in the main currency unit.
type Fincra struct {
	webhookSecret string
}

func NewFincra(webhookSecret string) *Fincra {
	return &Fincra{webhookSecret: webhookSecret}
}

func (f *Fincra) Name() string  { return "fincra" }
func (f *Fincra) Enabled() bool { return f.webhookSecret != "" }

func (f *Fincra) VerifySignature(rawBody []byte, header http.Header) bool {
	if !f.Enabled() {
		return false
	}
	signature := header.Get("signature")
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(f.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

type fincraEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference         string  `json:"reference"`
		MerchantReference string  `json:"merchantReference"`
		Amount            float64 `json:"amount"`
		Currency          string  `json:"currency"`
		Metadata          struct {
			OrderData json.RawMessage `json:"orderData"`
			Currency  string          `json:"currency"`
		} `json:"metadata"`
	} `json:"data"`
}

func (f *Fincra) ParseEvent(rawBody []byte) (*models.PaymentConfirmed, error) {
	var event fincraEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid fincra payload: %w", err)
	}

	if event.Event != "charge.successful" {
		return nil, nil
	}

	intent, err := decodeIntent(event.Data.Metadata.OrderData)
	if err != nil {
		return nil, fmt.Errorf("fincra %s: %w", event.Data.Reference, err)
	}

	currency := event.Data.Currency
	if currency == "" {
		currency = event.Data.Metadata.Currency
	}
	if currency == "" {
		currency = "NGN"
	}

	return &models.PaymentConfirmed{
		Provider:  f.Name(),
		Reference: event.Data.Reference,
		Amount:    event.Data.Amount,
		Currency:  currency,
		Intent:    *intent,
	}, nil
}
