package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/payment/providers"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter scripts an adapter's behavior per test.
type stubAdapter struct {
	name      string
	enabled   bool
	verifyOK  bool
	confirmed *models.PaymentConfirmed
	parseErr  error
}

func (s *stubAdapter) Name() string  { return s.name }
func (s *stubAdapter) Enabled() bool { return s.enabled }
func (s *stubAdapter) VerifySignature(rawBody []byte, header http.Header) bool {
	return s.verifyOK
}
func (s *stubAdapter) ParseEvent(rawBody []byte) (*models.PaymentConfirmed, error) {
	return s.confirmed, s.parseErr
}

type stubFulfiller struct {
	calls chan models.PaymentConfirmed
}

func newStubFulfiller() *stubFulfiller {
	return &stubFulfiller{calls: make(chan models.PaymentConfirmed, 1)}
}

func (s *stubFulfiller) Fulfill(ctx context.Context, confirmed models.PaymentConfirmed) (*models.Order, bool, error) {
	s.calls <- confirmed
	return &models.Order{Reference: confirmed.Reference}, true, nil
}

func serve(adapter providers.Adapter, fulfiller Fulfiller, body []byte) *httptest.ResponseRecorder {
	h := NewWebhookHandler(map[string]providers.Adapter{adapter.Name(): adapter}, fulfiller, logger.NewLogger())

	router := chi.NewRouter()
	router.Post("/api/v1/webhooks/{provider}", h.HandleWebhook)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/"+adapter.Name(), bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookUnknownProvider(t *testing.T) {
	h := NewWebhookHandler(map[string]providers.Adapter{}, newStubFulfiller(), logger.NewLogger())

	router := chi.NewRouter()
	router.Post("/api/v1/webhooks/{provider}", h.HandleWebhook)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/flutterwave", bytes.NewReader([]byte("{}")))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookDisabledProvider(t *testing.T) {
	adapter := &stubAdapter{name: "stripe", enabled: false}
	rec := serve(adapter, newStubFulfiller(), []byte("{}"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebhookInvalidSignature(t *testing.T) {
	adapter := &stubAdapter{name: "paystack", enabled: true, verifyOK: false}
	fulfiller := newStubFulfiller()

	rec := serve(adapter, fulfiller, []byte(`{"event":"charge.success"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	select {
	case <-fulfiller.calls:
		t.Fatal("fulfillment must not run for unverified deliveries")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookValidDeliveryAcksAndFulfills(t *testing.T) {
	confirmed := &models.PaymentConfirmed{
		Provider:  "paystack",
		Reference: "PSK-1",
		Amount:    10000,
		Currency:  "NGN",
	}
	adapter := &stubAdapter{name: "paystack", enabled: true, verifyOK: true, confirmed: confirmed}
	fulfiller := newStubFulfiller()

	rec := serve(adapter, fulfiller, []byte(`{"event":"charge.success"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case got := <-fulfiller.calls:
		assert.Equal(t, "PSK-1", got.Reference)
	case <-time.After(time.Second):
		t.Fatal("fulfillment was never started")
	}
}

func TestWebhookIgnoredEventStillAcks(t *testing.T) {
	adapter := &stubAdapter{name: "paystack", enabled: true, verifyOK: true, confirmed: nil}
	fulfiller := newStubFulfiller()

	rec := serve(adapter, fulfiller, []byte(`{"event":"transfer.success"}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-fulfiller.calls:
		t.Fatal("ignored events must not be fulfilled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestWebhookParseErrorStillAcks(t *testing.T) {
	adapter := &stubAdapter{name: "paystack", enabled: true, verifyOK: true, parseErr: assert.AnError}
	fulfiller := newStubFulfiller()

	rec := serve(adapter, fulfiller, []byte(`not json`))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-fulfiller.calls:
		t.Fatal("unparseable events must not be fulfilled")
	case <-time.After(50 * time.Millisecond):
	}
}
