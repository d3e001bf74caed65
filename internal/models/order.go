package models

import (
	"time"

	"github.com/uptrace/bun"
)

// LineItem is one requested tier + quantity pair on an order.
type LineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type Contact struct {
	Name  string `bun:"name" json:"name"`
	Email string `bun:"email" json:"email"`
	Phone string `bun:"phone" json:"phone"`
}

// Order is the persisted record of a completed purchase. Reference is the
// payment-provider transaction id (or a client-generated id for the direct
// flow) and is the idempotency key: the unique index on it is what makes
// webhook redelivery and webhook/client races safe.
type Order struct {
	bun.BaseModel `bun:"table:orders"`

	Reference           string     `bun:"reference,pk" json:"reference"`
	Title               string     `bun:"title,notnull" json:"title"`
	Contact             Contact    `bun:"embed:contact_" json:"contact"`
	UserID              string     `bun:"user_id,notnull" json:"user_id"`
	EventID             string     `bun:"event_id,notnull" json:"event_id"`
	Tickets             []LineItem `bun:"tickets,type:jsonb" json:"tickets"`
	StartDate           time.Time  `bun:"start_date" json:"start_date"`
	StartTime           string     `bun:"start_time" json:"start_time"`
	Location            string     `bun:"location" json:"location"`
	Price               float64    `bun:"price,notnull" json:"price"`
	Currency            string     `bun:"currency,notnull" json:"currency"`
	PromoCode           string     `bun:"promo_code,nullzero" json:"promo_code,omitempty"`
	Affiliate           string     `bun:"affiliate,nullzero" json:"affiliate,omitempty"`
	Scanned             bool       `bun:"scanned" json:"scanned"`
	ScannedAt           *time.Time `bun:"scanned_at,nullzero" json:"scanned_at,omitempty"`
	NeedsReconciliation bool       `bun:"needs_reconciliation" json:"needs_reconciliation,omitempty"`
	CreatedAt           time.Time  `bun:"created_at,notnull" json:"created_at"`
}

// OrderRequest is the order intent as submitted by the client or carried
// through provider metadata. Price is the client-declared total and is
// never trusted without server-side recomputation.
type OrderRequest struct {
	Reference string     `json:"reference"`
	Title     string     `json:"title"`
	Contact   Contact    `json:"contact"`
	UserID    string     `json:"userId"`
	EventID   string     `json:"productId"`
	Tickets   []LineItem `json:"tickets"`
	StartDate time.Time  `json:"startDate"`
	StartTime string     `json:"startTime"`
	Location  string     `json:"location"`
	Price     float64    `json:"price"`
	Currency  string     `json:"currency"`
	Gateway   string     `json:"gateway,omitempty"`
	PromoCode string     `json:"promoCode,omitempty"`
	Affiliate string     `json:"affiliate,omitempty"`
}
