package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order"
	"ms-fulfillment/internal/order/db"
	"ms-fulfillment/internal/payment/providers"
	"ms-fulfillment/internal/promo"
	"ms-fulfillment/internal/utils"

	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	Fulfill(ctx context.Context, confirmed models.PaymentConfirmed) (*models.Order, bool, error)
	Scan(ctx context.Context, reference string) (*models.Order, error)
	GetOrder(ctx context.Context, reference string) (*models.Order, error)
	ListEventOrders(ctx context.Context, eventID string) ([]models.Order, error)
	ListPromoOrders(ctx context.Context, codes []string) ([]models.Order, error)
}

type PromoService interface {
	Validate(ctx context.Context, code, eventID string, orderTotal float64, now time.Time) (*promo.Result, error)
	Create(ctx context.Context, p models.PromoCode) (*models.PromoCode, error)
	ListByOwner(ctx context.Context, userID string) ([]models.PromoCode, error)
}

type Handler struct {
	OrderService OrderService
	PromoService PromoService
	Logger       *logger.Logger
}

func NewHandler(orderService OrderService, promoService PromoService, log *logger.Logger) *Handler {
	return &Handler{
		OrderService: orderService,
		PromoService: promoService,
		Logger:       log,
	}
}

// CreateOrder serves the direct flow: the client completed payment on its
// side and submits the full order intent. The declared price goes through
// the same integrity check as a webhook amount.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req models.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid order JSON", err.Error())
		return
	}

	if req.Gateway != "" && req.Currency != "" && !providers.CurrencySupported(req.Gateway, req.Currency) {
		h.respondError(w, http.StatusBadRequest,
			fmt.Sprintf("Currency %s is not supported by %s", req.Currency, req.Gateway), "")
		return
	}

	provider := "direct"
	if req.Gateway != "" {
		provider = req.Gateway
	}
	confirmed := models.PaymentConfirmed{
		Provider:  provider,
		Reference: req.Reference,
		Amount:    req.Price,
		Currency:  req.Currency,
		Intent:    req,
	}

	created, wasNew, err := h.OrderService.Fulfill(r.Context(), confirmed)
	if err != nil {
		h.respondFulfillmentError(w, err)
		return
	}

	status := http.StatusCreated
	message := "Order created"
	if !wasNew {
		status = http.StatusOK
		message = "Order already exists"
	}
	h.respond(w, status, utils.SuccessResponse(message, created))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	found, err := h.OrderService.GetOrder(r.Context(), reference)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("GetOrder %s: %v", reference, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to load order", "")
		return
	}
	if found == nil {
		h.respondError(w, http.StatusNotFound, "Order not found", reference)
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Order found", found))
}

// ScanStatus lets door staff preview a ticket without consuming it. The
// scan endpoints themselves admit on GET as well as POST, so hardware that
// can only issue GETs still consumes the ticket.
func (h *Handler) ScanStatus(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	found, err := h.OrderService.GetOrder(r.Context(), reference)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to load order", "")
		return
	}
	if found == nil {
		h.respondError(w, http.StatusNotFound, "Order not found", reference)
		return
	}
	if found.Scanned {
		h.respond(w, http.StatusConflict, utils.ErrorResponse("Ticket already scanned", reference))
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Ticket valid", found))
}

// Scan admits a ticket. Exactly one scan per order succeeds; every retry
// after that gets a conflict.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")

	found, err := h.OrderService.GetOrder(r.Context(), reference)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Failed to load order", "")
		return
	}
	if found == nil {
		h.respondError(w, http.StatusNotFound, "Order not found", reference)
		return
	}

	scanned, err := h.OrderService.Scan(r.Context(), reference)
	if err != nil {
		if errors.Is(err, db.ErrAlreadyScanned) {
			h.respond(w, http.StatusConflict, utils.ErrorResponse("Ticket already scanned", reference))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("Scan %s: %v", reference, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to scan ticket", "")
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Ticket admitted", scanned))
}

func (h *Handler) ListEventOrders(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	orders, err := h.OrderService.ListEventOrders(r.Context(), eventID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListEventOrders %s: %v", eventID, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to load orders", "")
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Orders", orders))
}

func (h *Handler) CreatePromo(w http.ResponseWriter, r *http.Request) {
	var req models.PromoCode
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid promo JSON", err.Error())
		return
	}
	if req.Code == "" || req.DiscountValue <= 0 {
		h.respondError(w, http.StatusBadRequest, "Promo needs a code and a positive discount value", "")
		return
	}
	if req.DiscountType != models.DiscountPercentage && req.DiscountType != models.DiscountFixed {
		h.respondError(w, http.StatusBadRequest, "Discount type must be percentage or fixed", string(req.DiscountType))
		return
	}

	created, err := h.PromoService.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, promo.ErrDuplicate) {
			h.respondError(w, http.StatusConflict, "Promo code already exists", req.Code)
			return
		}
		h.Logger.Error("API", fmt.Sprintf("CreatePromo %s: %v", req.Code, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to create promo", "")
		return
	}
	h.respond(w, http.StatusCreated, utils.SuccessResponse("Promo created", created))
}

type applyPromoRequest struct {
	Code    string  `json:"code"`
	EventID string  `json:"productId"`
	Total   float64 `json:"total"`
}

// ApplyPromo is the checkout dry run: it prices a discount without
// consuming usage. Usage is only committed during fulfillment.
func (h *Handler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	var req applyPromoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid promo JSON", err.Error())
		return
	}
	if req.Code == "" {
		h.respondError(w, http.StatusBadRequest, "Promo code cannot be empty", "")
		return
	}

	result, err := h.PromoService.Validate(r.Context(), req.Code, req.EventID, req.Total, time.Now())
	if err != nil {
		if isPromoRejection(err) {
			h.respond(w, http.StatusBadRequest, utils.ErrorResponse(err.Error(), req.Code))
			return
		}
		h.Logger.Error("API", fmt.Sprintf("ApplyPromo %s: %v", req.Code, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to validate promo", "")
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Promo applied", result))
}

func (h *Handler) ListPromos(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "userId query parameter is required", "")
		return
	}

	promos, err := h.PromoService.ListByOwner(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPromos %s: %v", userID, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to load promos", "")
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Promos", promos))
}

// ListPromoOrders reports redemption activity across all of an organizer's
// promo codes.
func (h *Handler) ListPromoOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		h.respondError(w, http.StatusBadRequest, "userId query parameter is required", "")
		return
	}

	promos, err := h.PromoService.ListByOwner(r.Context(), userID)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPromoOrders %s: %v", userID, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to load promos", "")
		return
	}

	codes := make([]string, 0, len(promos))
	for _, p := range promos {
		codes = append(codes, p.Code)
	}

	orders, err := h.OrderService.ListPromoOrders(r.Context(), codes)
	if err != nil {
		h.Logger.Error("API", fmt.Sprintf("ListPromoOrders %s: %v", userID, err))
		h.respondError(w, http.StatusInternalServerError, "Failed to load promo orders", "")
		return
	}
	h.respond(w, http.StatusOK, utils.SuccessResponse("Promo orders", orders))
}

func (h *Handler) respondFulfillmentError(w http.ResponseWriter, err error) {
	if errors.Is(err, order.ErrInFlight) {
		h.respond(w, http.StatusConflict, utils.ErrorResponse("Order is already being processed", ""))
		return
	}

	var ferr *order.FulfillmentError
	if errors.As(err, &ferr) {
		h.respond(w, ferr.StatusCode, utils.ErrorResponse(ferr.Message, ferr.Code))
		return
	}

	h.Logger.Error("API", fmt.Sprintf("CreateOrder: %v", err))
	h.respondError(w, http.StatusInternalServerError, "Failed to create order", "")
}

func (h *Handler) respond(w http.ResponseWriter, status int, body utils.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.Logger.Error("API", fmt.Sprintf("Failed to encode response: %v", err))
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message, detail string) {
	h.respond(w, status, utils.ErrorResponse(message, detail))
}

func isPromoRejection(err error) bool {
	return errors.Is(err, promo.ErrNotFound) ||
		errors.Is(err, promo.ErrExpired) ||
		errors.Is(err, promo.ErrUsageExceeded) ||
		errors.Is(err, promo.ErrNotEligible)
}
