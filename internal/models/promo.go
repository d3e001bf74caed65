package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// PromoCode grants a discount on eligible events. Codes are stored
// upper-cased and matched case-insensitively. UsageLimit 0 means unlimited.
type PromoCode struct {
	bun.BaseModel `bun:"table:promo_codes"`

	Code          string       `bun:"code,pk" json:"code"`
	DiscountType  DiscountType `bun:"discount_type,notnull" json:"discount_type"`
	DiscountValue float64      `bun:"discount_value,notnull" json:"discount_value"`
	ExpiryDate    time.Time    `bun:"expiry_date,notnull" json:"expiry_date"`
	UsageLimit    int          `bun:"usage_limit" json:"usage_limit"`
	UsedCount     int          `bun:"used_count" json:"used_count"`
	UserID        string       `bun:"user_id" json:"user_id"`
	ProductIDs    []string     `bun:"product_ids,type:jsonb" json:"product_ids"`
	CreatedAt     time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// NormalizeCode upper-cases a promo code and strips all whitespace, the
// same canonical form used at creation time.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.Join(strings.Fields(code), ""))
}

// EligibleFor reports whether the promo applies to the given event.
func (p *PromoCode) EligibleFor(eventID string) bool {
	for _, id := range p.ProductIDs {
		if id == eventID {
			return true
		}
	}
	return false
}
