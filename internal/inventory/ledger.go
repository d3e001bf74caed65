package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"

	"github.com/uptrace/bun"
)

// reserveRetries bounds the optimistic-concurrency retry loop. Conflicts
// only happen when two orders hit the same tier row at the same instant,
// so a handful of attempts is plenty.
const reserveRetries = 3

var errVersionConflict = errors.New("tier version conflict")

// InsufficientError reports an oversubscribed tier together with the most
// the buyer could still purchase.
type InsufficientError struct {
	Tier       string
	MaxAllowed int
}

func (e *InsufficientError) Error() string {
	return fmt.Sprintf("you can only purchase up to %d ticket(s) for %s", e.MaxAllowed, e.Tier)
}

// UnknownTierError reports a requested tier name that the event does not have.
type UnknownTierError struct {
	Tier string
}

func (e *UnknownTierError) Error() string {
	return fmt.Sprintf("event has no ticket tier named %q", e.Tier)
}

// Ledger owns ticket-tier inventory. All decrements go through Reserve;
// nothing else in the service writes tier quantities.
type Ledger struct {
	Bun    *bun.DB
	Logger *logger.Logger
}

func NewLedger(db *bun.DB, log *logger.Logger) *Ledger {
	return &Ledger{Bun: db, Logger: log}
}

// GetEvent returns (nil, nil) for an unknown event id.
func (l *Ledger) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := l.Bun.NewSelect().
		Model(&event).
		Where("id = ?", eventID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load event %s: %w", eventID, err)
	}
	return &event, nil
}

func (l *Ledger) GetTiers(ctx context.Context, eventID string) ([]models.TicketTier, error) {
	var tiers []models.TicketTier
	err := l.Bun.NewSelect().
		Model(&tiers).
		Where("event_id = ?", eventID).
		Order("name_key").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tiers, nil
}

// TiersByKey indexes an event's tiers by their case-insensitive name key.
func (l *Ledger) TiersByKey(ctx context.Context, eventID string) (map[string]models.TicketTier, error) {
	tiers, err := l.GetTiers(ctx, eventID)
	if err != nil {
		return nil, err
	}
	byKey := make(map[string]models.TicketTier, len(tiers))
	for _, t := range tiers {
		byKey[t.NameKey] = t
	}
	return byKey, nil
}

// CheckAvailability validates requested line items against current stock
// without reserving anything. Unlimited tiers always pass; limited tiers
// are capped at min(purchaseLimit, quantity).
func (l *Ledger) CheckAvailability(ctx context.Context, eventID string, items []models.LineItem) error {
	byKey, err := l.TiersByKey(ctx, eventID)
	if err != nil {
		return err
	}
	return validateItems(byKey, items)
}

// Reserve decrements tier quantities for a committed order. It re-reads and
// re-validates inside a transaction to close the race window between check
// and commit, and every tier write is guarded by the row version. On a
// version conflict the whole transaction is retried.
func (l *Ledger) Reserve(ctx context.Context, eventID string, items []models.LineItem) error {
	var lastErr error
	for attempt := 1; attempt <= reserveRetries; attempt++ {
		err := l.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
			return l.reserveTx(ctx, tx, eventID, items)
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, errVersionConflict) {
			return err
		}
		lastErr = err
		l.Logger.Warn("INVENTORY", fmt.Sprintf("Reserve conflict for event %s (attempt %d/%d), retrying", eventID, attempt, reserveRetries))
	}
	return fmt.Errorf("reserve for event %s: too many concurrent updates: %w", eventID, lastErr)
}

func (l *Ledger) reserveTx(ctx context.Context, tx bun.Tx, eventID string, items []models.LineItem) error {
	for _, item := range items {
		var tier models.TicketTier
		err := tx.NewSelect().
			Model(&tier).
			Where("event_id = ?", eventID).
			Where("name_key = ?", models.TierKey(item.Name)).
			Limit(1).
			Scan(ctx)
		if err != nil {
			return &UnknownTierError{Tier: item.Name}
		}

		if tier.Type == models.TierUnlimited {
			continue
		}

		if max := tier.MaxPurchase(); item.Quantity > max {
			return &InsufficientError{Tier: tier.Name, MaxAllowed: max}
		}

		newQuantity := tier.Quantity - item.Quantity
		if newQuantity < 0 {
			newQuantity = 0
		}
		newLimit := tier.PurchaseLimit
		if newQuantity < newLimit {
			newLimit = newQuantity
		}

		res, err := tx.NewUpdate().
			Model((*models.TicketTier)(nil)).
			Set("quantity = ?", newQuantity).
			Set("purchase_limit = ?", newLimit).
			Set("version = version + 1").
			Where("id = ?", tier.ID).
			Where("version = ?", tier.Version).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update tier %s: %w", tier.Name, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			// Someone else reserved against this tier between our read
			// and write. Roll back and retry from a fresh read.
			return errVersionConflict
		}

		l.Logger.LogDatabase("RESERVE", "ticket_tiers",
			fmt.Sprintf("event=%s tier=%s -%d (remaining %d)", eventID, tier.Name, item.Quantity, newQuantity))
	}
	return nil
}

// Release adds quantities back for a cancelled order. Unlimited tiers are
// untouched; the purchase limit is not raised back (organizer intent).
func (l *Ledger) Release(ctx context.Context, eventID string, items []models.LineItem) error {
	return l.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		for _, item := range items {
			_, err := tx.NewUpdate().
				Model((*models.TicketTier)(nil)).
				Set("quantity = quantity + ?", item.Quantity).
				Set("version = version + 1").
				Where("event_id = ?", eventID).
				Where("name_key = ?", models.TierKey(item.Name)).
				Where("type = ?", models.TierLimited).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to release tier %s: %w", item.Name, err)
			}
		}
		return nil
	})
}

func validateItems(byKey map[string]models.TicketTier, items []models.LineItem) error {
	for _, item := range items {
		tier, ok := byKey[models.TierKey(item.Name)]
		if !ok {
			return &UnknownTierError{Tier: item.Name}
		}
		if tier.Type != models.TierLimited {
			continue
		}
		if max := tier.MaxPurchase(); item.Quantity > max {
			return &InsufficientError{Tier: tier.Name, MaxAllowed: max}
		}
	}
	return nil
}
