package db

import (
	"context"
	"errors"
	"strings"
	"time"

	"ms-fulfillment/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

// ErrAlreadyScanned is returned when a ticket reference is scanned a
// second time.
var ErrAlreadyScanned = errors.New("ticket has already been scanned")

type DB struct {
	Bun *bun.DB
}

// ---------------- ORDERS ----------------

// FindByReference fetches one order by its payment reference. Returns
// (nil, nil) when no order exists, so callers can distinguish "absent"
// from a real store failure.
func (d *DB) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("reference = ?", reference).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "no rows") {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

// CreateIfAbsent inserts the order, treating the unique index on reference
// as the source of truth for idempotency. A duplicate-key failure is not
// an error: it means a racing webhook or client call won, and the
// pre-existing order is returned with wasNew=false.
func (d *DB) CreateIfAbsent(ctx context.Context, order models.Order) (*models.Order, bool, error) {
	_, err := d.Bun.NewInsert().Model(&order).Exec(ctx)
	if err == nil {
		return &order, true, nil
	}
	if !isDuplicateKey(err) {
		return nil, false, err
	}

	existing, findErr := d.FindByReference(ctx, order.Reference)
	if findErr != nil {
		return nil, false, findErr
	}
	if existing == nil {
		// Insert said duplicate but the row is not visible yet; surface
		// the original error rather than inventing state.
		return nil, false, err
	}
	return existing, false, nil
}

// MarkScanned flips scanned false→true exactly once. The conditional
// update makes concurrent scans of the same reference serialize in the
// store: only one caller sees rows affected.
func (d *DB) MarkScanned(ctx context.Context, reference string, at time.Time) (*models.Order, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("scanned = ?", true).
		Set("scanned_at = ?", at).
		Where("reference = ?", reference).
		Where("scanned = ?", false).
		Exec(ctx)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrAlreadyScanned
	}
	return d.FindByReference(ctx, reference)
}

// MarkNeedsReconciliation flags an order whose inventory reservation
// failed after the order was durably recorded.
func (d *DB) MarkNeedsReconciliation(ctx context.Context, reference string) error {
	_, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("needs_reconciliation = ?", true).
		Where("reference = ?", reference).
		Exec(ctx)
	return err
}

// CancelOrder deletes an order by reference (explicit cancellation only;
// fulfilment never deletes).
func (d *DB) CancelOrder(ctx context.Context, reference string) error {
	_, err := d.Bun.NewDelete().
		Model((*models.Order)(nil)).
		Where("reference = ?", reference).
		Exec(ctx)
	return err
}

// ---------------- LISTINGS ----------------

// ListByEvent returns all orders for an event, newest first.
func (d *DB) ListByEvent(ctx context.Context, eventID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("event_id = ?", eventID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByUser returns all orders belonging to an organizer, newest first.
func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// ListByPromoCodes returns orders that redeemed any of the given promo
// codes (case-insensitive), used for organizer promo reporting.
func (d *DB) ListByPromoCodes(ctx context.Context, codes []string) ([]models.Order, error) {
	if len(codes) == 0 {
		return []models.Order{}, nil
	}
	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = strings.ToUpper(c)
	}
	var orders []models.Order
	err := d.Bun.NewSelect().
		Model(&orders).
		Where("upper(promo_code) IN (?)", bun.In(keys)).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return orders, nil
}

// isDuplicateKey recognizes unique-index violations from both Postgres
// (SQLSTATE 23505) and the sqlite test driver.
func isDuplicateKey(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}
