package order_api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/order"
	"ms-fulfillment/internal/order/db"
	"ms-fulfillment/internal/promo"
	"ms-fulfillment/internal/utils"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubOrderService struct {
	fulfillOrder  *models.Order
	fulfillWasNew bool
	fulfillErr    error
	fulfillCalls  int
	lastConfirmed models.PaymentConfirmed
	orders        map[string]*models.Order
	scanErr       error
	eventOrders   []models.Order
	promoOrders   []models.Order
	promoCodesIn  []string
}

func (s *stubOrderService) Fulfill(ctx context.Context, confirmed models.PaymentConfirmed) (*models.Order, bool, error) {
	s.fulfillCalls++
	s.lastConfirmed = confirmed
	return s.fulfillOrder, s.fulfillWasNew, s.fulfillErr
}

func (s *stubOrderService) Scan(ctx context.Context, reference string) (*models.Order, error) {
	if s.scanErr != nil {
		return nil, s.scanErr
	}
	found := s.orders[reference]
	found.Scanned = true
	return found, nil
}

func (s *stubOrderService) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	return s.orders[reference], nil
}

func (s *stubOrderService) ListEventOrders(ctx context.Context, eventID string) ([]models.Order, error) {
	return s.eventOrders, nil
}

func (s *stubOrderService) ListPromoOrders(ctx context.Context, codes []string) ([]models.Order, error) {
	s.promoCodesIn = codes
	return s.promoOrders, nil
}

type stubPromoService struct {
	validateResult *promo.Result
	validateErr    error
	created        *models.PromoCode
	createErr      error
	listed         []models.PromoCode
}

func (s *stubPromoService) Validate(ctx context.Context, code, eventID string, orderTotal float64, now time.Time) (*promo.Result, error) {
	return s.validateResult, s.validateErr
}

func (s *stubPromoService) Create(ctx context.Context, p models.PromoCode) (*models.PromoCode, error) {
	return s.created, s.createErr
}

func (s *stubPromoService) ListByOwner(ctx context.Context, userID string) ([]models.PromoCode, error) {
	return s.listed, nil
}

func newRouter(orders OrderService, promos PromoService) *chi.Mux {
	h := NewHandler(orders, promos, logger.NewLogger())
	router := chi.NewRouter()
	router.Post("/api/v1/orders", h.CreateOrder)
	router.Get("/api/v1/orders/{reference}", h.GetOrder)
	router.Get("/api/v1/scan/{reference}", h.Scan)
	router.Post("/api/v1/scan/{reference}", h.Scan)
	router.Get("/api/v1/scan/{reference}/status", h.ScanStatus)
	router.Get("/api/v1/events/{eventId}/orders", h.ListEventOrders)
	router.Post("/api/v1/promos", h.CreatePromo)
	router.Post("/api/v1/promos/apply", h.ApplyPromo)
	router.Get("/api/v1/promos", h.ListPromos)
	router.Get("/api/v1/promos/orders", h.ListPromoOrders)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) utils.APIResponse {
	t.Helper()
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateOrderReturns201(t *testing.T) {
	orders := &stubOrderService{
		fulfillOrder:  &models.Order{Reference: "ORD-1", Price: 10000},
		fulfillWasNew: true,
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", models.OrderRequest{
		Reference: "ORD-1",
		EventID:   "event-1",
		Tickets:   []models.LineItem{{Name: "Regular", Quantity: 2}},
		Price:     10000,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)
}

func TestCreateOrderRejectsUnsupportedGatewayCurrency(t *testing.T) {
	orders := &stubOrderService{
		fulfillOrder:  &models.Order{Reference: "ORD-EUR"},
		fulfillWasNew: true,
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", models.OrderRequest{
		Reference: "ORD-EUR",
		Gateway:   "paystack",
		Currency:  "EUR",
		Price:     10000,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, orders.fulfillCalls)
}

func TestCreateOrderCarriesGatewayAsProvider(t *testing.T) {
	orders := &stubOrderService{
		fulfillOrder:  &models.Order{Reference: "ORD-NGN"},
		fulfillWasNew: true,
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", models.OrderRequest{
		Reference: "ORD-NGN",
		Gateway:   "paystack",
		Currency:  "NGN",
		Price:     10000,
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "paystack", orders.lastConfirmed.Provider)
}

func TestCreateOrderDuplicateReturns200(t *testing.T) {
	orders := &stubOrderService{
		fulfillOrder:  &models.Order{Reference: "ORD-1"},
		fulfillWasNew: false,
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", models.OrderRequest{Reference: "ORD-1"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateOrderMapsFulfillmentError(t *testing.T) {
	orders := &stubOrderService{
		fulfillErr: &order.FulfillmentError{
			Code:       order.CodeInsufficient,
			StatusCode: http.StatusBadRequest,
			Message:    "you can only purchase up to 3 ticket(s) for VIP",
		},
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", models.OrderRequest{Reference: "ORD-2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeResponse(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, order.CodeInsufficient, resp.Error)
}

func TestCreateOrderInFlightReturns409(t *testing.T) {
	orders := &stubOrderService{fulfillErr: order.ErrInFlight}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/orders", models.OrderRequest{Reference: "ORD-3"})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetOrderNotFound(t *testing.T) {
	router := newRouter(&stubOrderService{orders: map[string]*models.Order{}}, &stubPromoService{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/orders/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanFirstTimeSucceeds(t *testing.T) {
	orders := &stubOrderService{
		orders: map[string]*models.Order{"ORD-1": {Reference: "ORD-1"}},
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/scan/ORD-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestScanSecondTimeConflicts(t *testing.T) {
	orders := &stubOrderService{
		orders:  map[string]*models.Order{"ORD-1": {Reference: "ORD-1", Scanned: true}},
		scanErr: db.ErrAlreadyScanned,
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/scan/ORD-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScanUnknownReference404(t *testing.T) {
	router := newRouter(&stubOrderService{orders: map[string]*models.Order{}}, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/scan/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanGetConsumesTicket(t *testing.T) {
	orders := &stubOrderService{
		orders: map[string]*models.Order{"ORD-1": {Reference: "ORD-1"}},
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/scan/ORD-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, orders.orders["ORD-1"].Scanned)

	orders.scanErr = db.ErrAlreadyScanned
	rec = doJSON(t, router, http.MethodGet, "/api/v1/scan/ORD-1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestScanStatusPreviewDoesNotConsume(t *testing.T) {
	orders := &stubOrderService{
		orders: map[string]*models.Order{"ORD-1": {Reference: "ORD-1"}},
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/scan/ORD-1/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, orders.orders["ORD-1"].Scanned)
}

func TestScanStatusAlreadyScannedConflicts(t *testing.T) {
	orders := &stubOrderService{
		orders: map[string]*models.Order{"ORD-1": {Reference: "ORD-1", Scanned: true}},
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/scan/ORD-1/status", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestListEventOrders(t *testing.T) {
	orders := &stubOrderService{
		eventOrders: []models.Order{{Reference: "ORD-1"}, {Reference: "ORD-2"}},
	}
	router := newRouter(orders, &stubPromoService{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/events/event-1/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreatePromoValidation(t *testing.T) {
	router := newRouter(&stubOrderService{}, &stubPromoService{})

	rec := doJSON(t, router, http.MethodPost, "/api/v1/promos", models.PromoCode{Code: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/v1/promos", models.PromoCode{
		Code: "X", DiscountType: "half-off", DiscountValue: 10,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreatePromoDuplicateConflicts(t *testing.T) {
	promos := &stubPromoService{createErr: promo.ErrDuplicate}
	router := newRouter(&stubOrderService{}, promos)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/promos", models.PromoCode{
		Code: "LAUNCH10", DiscountType: models.DiscountPercentage, DiscountValue: 10,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestApplyPromoRejection(t *testing.T) {
	promos := &stubPromoService{validateErr: promo.ErrExpired}
	router := newRouter(&stubOrderService{}, promos)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/promos/apply", applyPromoRequest{
		Code: "OLD", EventID: "event-1", Total: 10000,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyPromoSuccess(t *testing.T) {
	promos := &stubPromoService{
		validateResult: &promo.Result{Code: "LAUNCH10", Discount: 1000, NewTotal: 9000},
	}
	router := newRouter(&stubOrderService{}, promos)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/promos/apply", applyPromoRequest{
		Code: "launch10", EventID: "event-1", Total: 10000,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListPromosRequiresUserID(t *testing.T) {
	router := newRouter(&stubOrderService{}, &stubPromoService{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/promos", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListPromoOrdersCollectsOwnerCodes(t *testing.T) {
	orders := &stubOrderService{
		promoOrders: []models.Order{{Reference: "ORD-1", PromoCode: "LAUNCH10"}},
	}
	promos := &stubPromoService{
		listed: []models.PromoCode{{Code: "LAUNCH10"}, {Code: "VIPONLY"}},
	}
	router := newRouter(orders, promos)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/promos/orders?userId=org-1", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"LAUNCH10", "VIPONLY"}, orders.promoCodesIn)
}

func TestListPromoOrdersRequiresUserID(t *testing.T) {
	router := newRouter(&stubOrderService{}, &stubPromoService{})

	rec := doJSON(t, router, http.MethodGet, "/api/v1/promos/orders", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
