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

// Paystack signs webhook bodies with HMAC-SHA512 of the raw payload,
// hex-encoded, delivered in the x-paystack-signature header. The only
// event that creates orders is charge.success; amounts arrive in kobo
// (minor units).
type Paystack struct {
	secretKey string
}

func NewPaystack(secretKey string) *Paystack {
	return &Paystack{secretKey: secretKey}
}

func (p *Paystack) Name() string  { return "paystack" }
func (p *Paystack) Enabled() bool { return p.secretKey != "" }

func (p *Paystack) VerifySignature(rawBody []byte, header http.Header) bool {
	if !p.Enabled() {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.secretKey))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header.Get("x-paystack-signature")))
}

type paystackEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string  `json:"reference"`
		Amount    float64 `json:"amount"`
		Currency  string  `json:"currency"`
		Metadata  struct {
			OrderData json.RawMessage `json:"orderData"`
			Currency  string          `json:"currency"`
		} `json:"metadata"`
	} `json:"data"`
}

func (p *Paystack) ParseEvent(rawBody []byte) (*models.PaymentConfirmed, error) {
	var event paystackEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid paystack payload: %w", err)
	}

	if event.Event != "charge.success" {
		return nil, nil
	}

	intent, err := decodeIntent(event.Data.Metadata.OrderData)
	if err != nil {
		return nil, fmt.Errorf("paystack %s: %w", event.Data.Reference, err)
	}

	currency := event.Data.Currency
	if currency == "" {
		currency = event.Data.Metadata.Currency
	}
	if currency == "" {
		currency = "NGN"
	}

	return &models.PaymentConfirmed{
		Provider:  p.Name(),
		Reference: event.Data.Reference,
		Amount:    event.Data.Amount / 100, // kobo → main unit
		Currency:  currency,
		Intent:    *intent,
	}, nil
}
