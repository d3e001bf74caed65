package order

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"ms-fulfillment/internal/config"
	"ms-fulfillment/internal/inventory"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/promo"
	"ms-fulfillment/internal/utils"

	"github.com/google/uuid"
)

type OrderStore interface {
	CreateIfAbsent(ctx context.Context, order models.Order) (*models.Order, bool, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	MarkScanned(ctx context.Context, reference string, at time.Time) (*models.Order, error)
	MarkNeedsReconciliation(ctx context.Context, reference string) error
	ListByEvent(ctx context.Context, eventID string) ([]models.Order, error)
	ListByPromoCodes(ctx context.Context, codes []string) ([]models.Order, error)
}

type InventoryLedger interface {
	GetEvent(ctx context.Context, eventID string) (*models.Event, error)
	TiersByKey(ctx context.Context, eventID string) (map[string]models.TicketTier, error)
	Reserve(ctx context.Context, eventID string, items []models.LineItem) error
}

type PromoResolver interface {
	Validate(ctx context.Context, code, eventID string, orderTotal float64, now time.Time) (*promo.Result, error)
	CommitUsage(ctx context.Context, code string) error
}

type ReferenceClaim interface {
	ClaimReference(reference, owner string) (bool, error)
	ReleaseReference(reference, owner string) error
}

type EventPublisher interface {
	PublishOrderEvent(topic, eventType string, order models.Order) error
}

type TicketDispatcher interface {
	Dispatch(order *models.Order) error
}

// priceTolerance absorbs float rounding between the gateway's minor-unit
// conversion and our recomputed total.
const priceTolerance = 0.01

// Service is the fulfillment orchestrator. It turns a verified payment
// into exactly one order row, an inventory reservation, a promo usage
// commit and a dispatched ticket, in that sequence. The order insert is
// the commit point: everything before it can reject the payment, nothing
// after it may undo the order.
type Service struct {
	Store      OrderStore
	Ledger     InventoryLedger
	Promo      PromoResolver
	Claim      ReferenceClaim
	Kafka      EventPublisher
	Dispatcher TicketDispatcher
	Topics     config.TopicConfig

	logger *logger.Logger
}

func NewService(store OrderStore, ledger InventoryLedger, resolver PromoResolver, claim ReferenceClaim, kafka EventPublisher, dispatcher TicketDispatcher, topics config.TopicConfig, log *logger.Logger) *Service {
	return &Service{
		Store:      store,
		Ledger:     ledger,
		Promo:      resolver,
		Claim:      claim,
		Kafka:      kafka,
		Dispatcher: dispatcher,
		Topics:     topics,
		logger:     log,
	}
}

// Fulfill processes one verified payment end to end. The returned bool is
// true when this call created the order; false means the reference was
// already fulfilled and the existing order is returned unchanged.
func (s *Service) Fulfill(ctx context.Context, confirmed models.PaymentConfirmed) (*models.Order, bool, error) {
	reference := strings.TrimSpace(confirmed.Reference)
	if reference == "" {
		reference = strings.TrimSpace(confirmed.Intent.Reference)
	}
	if reference == "" {
		reference = utils.GenerateOrderReference()
	}

	intent := confirmed.Intent
	if intent.EventID == "" {
		return nil, false, invalidRequest("order has no event id")
	}
	if len(intent.Tickets) == 0 {
		return nil, false, invalidRequest("order has no ticket lines")
	}
	for _, line := range intent.Tickets {
		if line.Quantity <= 0 {
			return nil, false, invalidRequest(fmt.Sprintf("invalid quantity for %q", line.Name))
		}
	}

	// Fast-path dedupe before touching the database. The unique index on
	// reference is the source of truth; the claim only spares concurrent
	// deliveries the full pipeline.
	owner := uuid.NewString()
	claimed, err := s.Claim.ClaimReference(reference, owner)
	if err != nil {
		s.logger.Warn("ORDER", fmt.Sprintf("Claim check unavailable for %s, relying on database: %v", reference, err))
		claimed = true
	}
	if !claimed {
		existing, err := s.Store.FindByReference(ctx, reference)
		if err != nil {
			return nil, false, internalError("failed to look up order", err)
		}
		if existing != nil {
			return existing, false, nil
		}
		return nil, false, ErrInFlight
	}
	defer func() {
		if err := s.Claim.ReleaseReference(reference, owner); err != nil {
			s.logger.Debug("ORDER", fmt.Sprintf("Failed to release claim for %s: %v", reference, err))
		}
	}()

	if existing, err := s.Store.FindByReference(ctx, reference); err != nil {
		return nil, false, internalError("failed to look up order", err)
	} else if existing != nil {
		s.logger.LogOrder("DEDUPED", reference, "Reference already fulfilled")
		return existing, false, nil
	}

	event, err := s.Ledger.GetEvent(ctx, intent.EventID)
	if err != nil {
		return nil, false, internalError("failed to load event", err)
	}
	if event == nil {
		return nil, false, newError(CodeUnknownEvent, http.StatusNotFound, fmt.Sprintf("event %s not found", intent.EventID), nil)
	}

	currency := confirmed.Currency
	if currency == "" {
		currency = event.Currency
	}
	if event.Currency != "" && currency != "" && !strings.EqualFold(event.Currency, currency) {
		return nil, false, newError(CodeCurrencyMismatch, http.StatusBadRequest,
			fmt.Sprintf("payment currency %s does not match event currency %s", currency, event.Currency), nil)
	}

	tiers, err := s.Ledger.TiersByKey(ctx, intent.EventID)
	if err != nil {
		return nil, false, internalError("failed to load ticket tiers", err)
	}

	total, err := computeTotal(tiers, intent.Tickets)
	if err != nil {
		var unknown *inventory.UnknownTierError
		if errors.As(err, &unknown) {
			return nil, false, newError(CodeUnknownTier, http.StatusBadRequest, err.Error(), nil)
		}
		var short *inventory.InsufficientError
		if errors.As(err, &short) {
			return nil, false, newError(CodeInsufficient, http.StatusBadRequest, err.Error(), nil)
		}
		return nil, false, internalError("failed to price order", err)
	}

	promoCode := strings.TrimSpace(intent.PromoCode)
	if promoCode != "" {
		result, err := s.Promo.Validate(ctx, promoCode, intent.EventID, total, time.Now())
		if err != nil {
			if isPromoRejection(err) {
				return nil, false, newError(CodeInvalidPromo, http.StatusBadRequest, err.Error(), nil)
			}
			return nil, false, internalError("failed to validate promo code", err)
		}
		total = result.NewTotal
		promoCode = result.Code
	}

	if math.Abs(confirmed.Amount-total) > priceTolerance {
		s.logger.LogSecurity("PRICE_MISMATCH", fmt.Sprintf("Order %s paid %.2f but prices at %.2f", reference, confirmed.Amount, total))
		return nil, false, newError(CodePriceMismatch, http.StatusBadRequest,
			fmt.Sprintf("paid amount %.2f does not match order total %.2f", confirmed.Amount, total), nil)
	}

	record := models.Order{
		Reference: reference,
		Title:     event.Title,
		Contact:   intent.Contact,
		UserID:    intent.UserID,
		EventID:   intent.EventID,
		Tickets:   intent.Tickets,
		StartDate: event.StartDate,
		StartTime: event.StartTime,
		Location:  event.Location,
		Price:     total,
		Currency:  currency,
		PromoCode: promoCode,
		Affiliate: strings.TrimSpace(intent.Affiliate),
		CreatedAt: time.Now().UTC(),
	}
	if record.UserID == "" {
		record.UserID = event.UserID
	}

	order, wasNew, err := s.Store.CreateIfAbsent(ctx, record)
	if err != nil {
		return nil, false, internalError("failed to persist order", err)
	}
	if !wasNew {
		s.logger.LogOrder("DEDUPED", reference, "Lost insert race, returning existing order")
		return order, false, nil
	}
	s.logger.LogOrder("PERSISTED", reference, fmt.Sprintf("Order created for event %s, total %.2f %s", order.EventID, order.Price, order.Currency))

	// The buyer has paid and the row is committed. An inventory failure
	// here is flagged for reconciliation instead of failing the order.
	if err := s.Ledger.Reserve(ctx, intent.EventID, intent.Tickets); err != nil {
		s.logger.Error("ORDER", fmt.Sprintf("Reservation failed after persist for %s: %v", reference, err))
		if dbErr := s.Store.MarkNeedsReconciliation(ctx, reference); dbErr != nil {
			s.logger.Error("ORDER", fmt.Sprintf("Failed to flag %s for reconciliation: %v", reference, dbErr))
		}
		order.NeedsReconciliation = true
		if kErr := s.Kafka.PublishOrderEvent(s.Topics.OrderReconcile, "order_needs_reconciliation", *order); kErr != nil {
			s.logger.LogKafka("PUBLISH_FAILED", s.Topics.OrderReconcile, kErr.Error())
		}
		return order, true, nil
	}

	if promoCode != "" {
		if err := s.Promo.CommitUsage(ctx, promoCode); err != nil {
			// validated above, so a failure here is a usage race; the
			// discount was already honored
			s.logger.Warn("ORDER", fmt.Sprintf("Promo usage commit failed for %s on %s: %v", promoCode, reference, err))
		}
	}

	if err := s.Kafka.PublishOrderEvent(s.Topics.OrderCreated, "order_created", *order); err != nil {
		s.logger.LogKafka("PUBLISH_FAILED", s.Topics.OrderCreated, err.Error())
	}

	// Delivery runs off the request path. The buyer's response never waits
	// on PDF rendering or SMTP retries; a delivery failure is logged, the
	// order and reservation stand.
	dispatched := *order
	go func() {
		if err := s.Dispatcher.Dispatch(&dispatched); err != nil {
			s.logger.Error("ORDER", fmt.Sprintf("Ticket dispatch failed for %s: %v", dispatched.Reference, err))
		}
	}()

	return order, true, nil
}

// Scan marks a ticket as used. Exactly one scan succeeds per order.
func (s *Service) Scan(ctx context.Context, reference string) (*models.Order, error) {
	order, err := s.Store.MarkScanned(ctx, reference, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.logger.LogOrder("SCANNED", reference, "Ticket admitted")
	if kErr := s.Kafka.PublishOrderEvent(s.Topics.OrderScanned, "order_scanned", *order); kErr != nil {
		s.logger.LogKafka("PUBLISH_FAILED", s.Topics.OrderScanned, kErr.Error())
	}
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, reference string) (*models.Order, error) {
	return s.Store.FindByReference(ctx, reference)
}

func (s *Service) ListEventOrders(ctx context.Context, eventID string) ([]models.Order, error) {
	return s.Store.ListByEvent(ctx, eventID)
}

// ListPromoOrders reports the orders that redeemed any of the given codes,
// for organizer-facing promo performance views.
func (s *Service) ListPromoOrders(ctx context.Context, codes []string) ([]models.Order, error) {
	if len(codes) == 0 {
		return []models.Order{}, nil
	}
	return s.Store.ListByPromoCodes(ctx, codes)
}

// computeTotal prices the requested lines from the stored tier prices and
// enforces per-tier purchase ceilings before any reservation is attempted.
func computeTotal(tiers map[string]models.TicketTier, items []models.LineItem) (float64, error) {
	var total float64
	for _, line := range items {
		tier, ok := tiers[models.TierKey(line.Name)]
		if !ok {
			return 0, &inventory.UnknownTierError{Tier: line.Name}
		}
		if tier.Type == models.TierLimited && line.Quantity > tier.MaxPurchase() {
			return 0, &inventory.InsufficientError{Tier: tier.Name, MaxAllowed: tier.MaxPurchase()}
		}
		total += tier.Price * float64(line.Quantity)
	}
	return total, nil
}

func isPromoRejection(err error) bool {
	return errors.Is(err, promo.ErrNotFound) ||
		errors.Is(err, promo.ErrExpired) ||
		errors.Is(err, promo.ErrUsageExceeded) ||
		errors.Is(err, promo.ErrNotEligible)
}
