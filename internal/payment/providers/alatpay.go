package providers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-fulfillment/internal/models"
)

// AlatPay signs webhooks with HMAC-SHA256, base64-encoded, in the
// x-signature header. The payload is wrapped in a {Value:{Data:...}}
// envelope and the order intent rides inside Customer.Metadata as a
// JSON-encoded string.
type AlatPay struct {
	webhookSecret string
}

func NewAlatPay(webhookSecret string) *AlatPay {
	return &AlatPay{webhookSecret: webhookSecret}
}

func (a *AlatPay) Name() string  { return "alatpay" }
func (a *AlatPay) Enabled() bool { return a.webhookSecret != "" }

func (a *AlatPay) VerifySignature(rawBody []byte, header http.Header) bool {
	if !a.Enabled() {
		return false
	}
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(rawBody)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header.Get("x-signature")))
}

type alatPayData struct {
	ID       string  `json:"Id"`
	OrderID  string  `json:"OrderId"`
	Amount   float64 `json:"Amount"`
	Currency string  `json:"Currency"`
	Status   string  `json:"Status"`
	Customer struct {
		Metadata json.RawMessage `json:"Metadata"`
	} `json:"Customer"`
}

type alatPayEvent struct {
	Value struct {
		Data   alatPayData `json:"Data"`
		Status bool        `json:"Status"`
	} `json:"Value"`
	StatusCode int `json:"StatusCode"`
}

type alatPayMetadata struct {
	OrderID   string          `json:"orderId"`
	OrderData json.RawMessage `json:"orderData"`
}

func (a *AlatPay) ParseEvent(rawBody []byte) (*models.PaymentConfirmed, error) {
	var event alatPayEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid alatpay payload: %w", err)
	}

	data := event.Value.Data
	if !event.Value.Status && data.Status != "completed" {
		return nil, nil
	}

	reference := data.ID
	if reference == "" {
		reference = data.OrderID
	}
	if reference == "" {
		return nil, fmt.Errorf("alatpay event has no transaction id")
	}

	raw := data.Customer.Metadata
	if len(raw) > 0 && raw[0] == '"' {
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return nil, fmt.Errorf("alatpay %s: failed to unquote metadata: %w", reference, err)
		}
		raw = json.RawMessage(inner)
	}

	var meta alatPayMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("alatpay %s: failed to decode metadata: %w", reference, err)
	}

	intent, err := decodeIntent(meta.OrderData)
	if err != nil {
		return nil, fmt.Errorf("alatpay %s: %w", reference, err)
	}

	currency := data.Currency
	if currency == "" {
		currency = "NGN"
	}

	return &models.PaymentConfirmed{
		Provider:  a.Name(),
		Reference: reference,
		Amount:    data.Amount,
		Currency:  currency,
		Intent:    *intent,
	}, nil
}
