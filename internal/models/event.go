package models

import (
	"strings"
	"time"

	"github.com/uptrace/bun"
)

type TierType string

const (
	TierLimited   TierType = "limited"
	TierUnlimited TierType = "unlimited"
)

// Event is a sellable listing owned by an organizer. Tiers live in their
// own table so reservations can update a single row under version control.
type Event struct {
	bun.BaseModel `bun:"table:events"`

	ID        string    `bun:"id,pk" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"user_id"`
	Title     string    `bun:"title,notnull" json:"title"`
	Currency  string    `bun:"currency,notnull" json:"currency"`
	StartDate time.Time `bun:"start_date" json:"start_date"`
	StartTime string    `bun:"start_time" json:"start_time"`
	Location  string    `bun:"location" json:"location"`
	CreatedAt time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at"`
}

// TicketTier is a named ticket category within an event. Tier names are
// unique per event case-insensitively; NameKey holds the lowered name.
// Version guards every quantity update (optimistic concurrency).
type TicketTier struct {
	bun.BaseModel `bun:"table:ticket_tiers"`

	ID            string   `bun:"id,pk" json:"id"`
	EventID       string   `bun:"event_id,notnull" json:"event_id"`
	Name          string   `bun:"name,notnull" json:"name"`
	NameKey       string   `bun:"name_key,notnull" json:"-"`
	Price         float64  `bun:"price,notnull" json:"price"`
	Type          TierType `bun:"type,notnull" json:"type"`
	Quantity      int      `bun:"quantity,notnull" json:"quantity"`
	PurchaseLimit int      `bun:"purchase_limit,notnull" json:"purchase_limit"`
	Version       int64    `bun:"version,notnull" json:"-"`
}

// MaxPurchase is the effective cap a single order may request: the static
// purchase limit, further capped by what is actually left in stock.
func (t *TicketTier) MaxPurchase() int {
	if t.Type == TierUnlimited {
		return t.PurchaseLimit
	}
	if t.Quantity < t.PurchaseLimit {
		return t.Quantity
	}
	return t.PurchaseLimit
}

// TierKey normalizes a tier name for case-insensitive matching.
func TierKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
