package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"ms-fulfillment/internal/models"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// Stripe verification goes through the official webhook package, which
// checks the timestamped v1 signature in the Stripe-Signature header.
// Success event is payment_intent.succeeded; the payment intent id is the
// order reference and amounts arrive in minor units.
type Stripe struct {
	webhookSecret string
}

func NewStripe(webhookSecret string) *Stripe {
	return &Stripe{webhookSecret: webhookSecret}
}

func (s *Stripe) Name() string  { return "stripe" }
func (s *Stripe) Enabled() bool { return s.webhookSecret != "" }

func (s *Stripe) VerifySignature(rawBody []byte, header http.Header) bool {
	if !s.Enabled() {
		return false
	}
	err := webhook.ValidatePayload(rawBody, header.Get("Stripe-Signature"), s.webhookSecret)
	return err == nil
}

func (s *Stripe) ParseEvent(rawBody []byte) (*models.PaymentConfirmed, error) {
	var event stripe.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		return nil, fmt.Errorf("invalid stripe payload: %w", err)
	}

	if event.Type != "payment_intent.succeeded" {
		return nil, nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment intent: %w", err)
	}

	orderData, ok := intent.Metadata["orderData"]
	if !ok || orderData == "" {
		return nil, fmt.Errorf("stripe %s: payment intent has no orderData in metadata", intent.ID)
	}

	orderIntent, err := decodeIntent(json.RawMessage(orderData))
	if err != nil {
		return nil, fmt.Errorf("stripe %s: %w", intent.ID, err)
	}

	currency := strings.ToUpper(string(intent.Currency))
	if c, ok := intent.Metadata["currency"]; ok && c != "" {
		currency = strings.ToUpper(c)
	}

	return &models.PaymentConfirmed{
		Provider:  s.Name(),
		Reference: intent.ID,
		Amount:    float64(intent.Amount) / 100, // cents → main unit
		Currency:  currency,
		Intent:    *orderIntent,
	}, nil
}
