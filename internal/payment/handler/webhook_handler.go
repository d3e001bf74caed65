package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order"
	"ms-fulfillment/internal/payment/providers"
	"ms-fulfillment/internal/utils"

	"github.com/go-chi/chi/v5"
)

// maxWebhookBody caps webhook payloads. Gateways send a few KB; anything
// near the cap is not a payment event.
const maxWebhookBody = 1 << 20

type Fulfiller interface {
	Fulfill(ctx context.Context, confirmed models.PaymentConfirmed) (*models.Order, bool, error)
}

// WebhookHandler terminates gateway webhook deliveries. The contract with
// every gateway is the same: verify the signature against the raw body,
// answer non-2xx only when verification fails, acknowledge immediately and
// fulfill in the background. Slow fulfillment must never make a gateway
// mark the endpoint unhealthy.
type WebhookHandler struct {
	Registry map[string]providers.Adapter
	Service  Fulfiller
	Logger   *logger.Logger
}

func NewWebhookHandler(registry map[string]providers.Adapter, service Fulfiller, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{Registry: registry, Service: service, Logger: log}
}

func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")

	adapter, ok := h.Registry[name]
	if !ok {
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse("Unknown payment provider", name))
		return
	}
	if !adapter.Enabled() {
		h.Logger.Warn("WEBHOOK", fmt.Sprintf("Delivery for disabled provider %s", name))
		writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Provider not configured", name))
		return
	}

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Failed to read request body", err.Error()))
		return
	}

	if !adapter.VerifySignature(rawBody, r.Header) {
		h.Logger.LogSecurity("WEBHOOK_SIGNATURE", fmt.Sprintf("Rejected %s delivery with invalid signature from %s", name, r.RemoteAddr))
		writeJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Invalid signature", ""))
		return
	}

	confirmed, err := adapter.ParseEvent(rawBody)
	if err != nil {
		// signature checked out, so this is a payload-shape problem on
		// our side; acknowledge so the gateway does not retry forever
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Failed to parse %s event: %v", name, err))
		writeJSON(w, http.StatusOK, utils.SuccessResponse("Event received", nil))
		return
	}
	if confirmed == nil {
		writeJSON(w, http.StatusOK, utils.SuccessResponse("Event ignored", nil))
		return
	}

	h.Logger.Info("WEBHOOK", fmt.Sprintf("Accepted %s payment %s for fulfillment", name, confirmed.Reference))
	writeJSON(w, http.StatusOK, utils.SuccessResponse("Event received", nil))

	go h.fulfill(*confirmed)
}

func (h *WebhookHandler) fulfill(confirmed models.PaymentConfirmed) {
	_, wasNew, err := h.Service.Fulfill(context.Background(), confirmed)
	switch {
	case errors.Is(err, order.ErrInFlight):
		h.Logger.Debug("WEBHOOK", fmt.Sprintf("Reference %s already being fulfilled", confirmed.Reference))
	case err != nil:
		h.Logger.Error("WEBHOOK", fmt.Sprintf("Fulfillment failed for %s %s: %v", confirmed.Provider, confirmed.Reference, err))
	case !wasNew:
		h.Logger.Debug("WEBHOOK", fmt.Sprintf("Duplicate delivery for %s ignored", confirmed.Reference))
	}
}

func writeJSON(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
