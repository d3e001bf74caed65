package promo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"
)

var (
	ErrNotFound      = errors.New("invalid promo code")
	ErrExpired       = errors.New("promo code expired")
	ErrUsageExceeded = errors.New("promo code usage limit reached")
	ErrNotEligible   = errors.New("promo code not applicable to this product")
	ErrDuplicate     = errors.New("promo code already exists")
)

// Result is the outcome of a successful validation.
type Result struct {
	Code          string              `json:"code"`
	Discount      float64             `json:"discount"`
	NewTotal      float64             `json:"newTotal"`
	DiscountType  models.DiscountType `json:"discountType"`
	DiscountValue float64             `json:"discountValue"`
}

// Resolver validates promo codes against orders and tracks usage counts.
type Resolver struct {
	Bun    *bun.DB
	Logger *logger.Logger
}

func NewResolver(db *bun.DB, log *logger.Logger) *Resolver {
	return &Resolver{Bun: db, Logger: log}
}

// Validate checks the code against expiry, usage limit and event
// eligibility and computes the discounted total. It never mutates state;
// usage is committed separately once the order is durable.
func (r *Resolver) Validate(ctx context.Context, code, eventID string, orderTotal float64, now time.Time) (*Result, error) {
	promo, err := r.findByCode(ctx, code)
	if err != nil {
		return nil, ErrNotFound
	}

	if now.After(promo.ExpiryDate) {
		return nil, ErrExpired
	}
	if promo.UsageLimit > 0 && promo.UsedCount >= promo.UsageLimit {
		return nil, ErrUsageExceeded
	}
	if !promo.EligibleFor(eventID) {
		return nil, ErrNotEligible
	}

	var discount float64
	if promo.DiscountType == models.DiscountPercentage {
		discount = orderTotal * promo.DiscountValue / 100
	} else {
		discount = promo.DiscountValue
		if discount > orderTotal {
			discount = orderTotal
		}
	}

	newTotal := orderTotal - discount
	if newTotal < 0 {
		newTotal = 0
	}

	return &Result{
		Code:          promo.Code,
		Discount:      discount,
		NewTotal:      newTotal,
		DiscountType:  promo.DiscountType,
		DiscountValue: promo.DiscountValue,
	}, nil
}

// CommitUsage increments the used count by one. The increment is
// conditional on the limit so that concurrent commits can never push
// usedCount past usageLimit, even though each caller validated earlier
// against a stale count. Must only be called after the order is persisted
// and inventory reserved.
func (r *Resolver) CommitUsage(ctx context.Context, code string) error {
	res, err := r.Bun.NewUpdate().
		Model((*models.PromoCode)(nil)).
		Set("used_count = used_count + 1").
		Where("code = ?", models.NormalizeCode(code)).
		Where("usage_limit = 0 OR used_count < usage_limit").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to commit promo usage for %s: %w", code, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrUsageExceeded
	}
	r.Logger.Info("PROMO", fmt.Sprintf("Committed usage for promo %s", models.NormalizeCode(code)))
	return nil
}

// Create stores a new promo code owned by an organizer. The code is
// normalized (upper-case, whitespace stripped) before the uniqueness check.
func (r *Resolver) Create(ctx context.Context, promo models.PromoCode) (*models.PromoCode, error) {
	promo.Code = models.NormalizeCode(promo.Code)
	if promo.Code == "" {
		return nil, fmt.Errorf("promo code cannot be empty")
	}

	// The primary key on code is the uniqueness check; a find-then-insert
	// would race between two concurrent creates.
	if _, err := r.Bun.NewInsert().Model(&promo).Exec(ctx); err != nil {
		if isDuplicateCode(err) {
			return nil, ErrDuplicate
		}
		return nil, fmt.Errorf("failed to create promo code: %w", err)
	}
	return &promo, nil
}

// isDuplicateCode recognizes primary-key violations from both Postgres
// (SQLSTATE 23505) and the sqlite test driver.
func isDuplicateCode(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "constraint failed")
}

// ListByOwner returns all promo codes created by an organizer.
func (r *Resolver) ListByOwner(ctx context.Context, userID string) ([]models.PromoCode, error) {
	var promos []models.PromoCode
	err := r.Bun.NewSelect().
		Model(&promos).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return promos, nil
}

func (r *Resolver) findByCode(ctx context.Context, code string) (*models.PromoCode, error) {
	var promo models.PromoCode
	err := r.Bun.NewSelect().
		Model(&promo).
		Where("code = ?", models.NormalizeCode(code)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return &promo, nil
}
