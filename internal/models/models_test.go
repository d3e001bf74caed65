package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTierKey(t *testing.T) {
	assert.Equal(t, "vip", TierKey("  VIP "))
	assert.Equal(t, "early bird", TierKey("Early Bird"))
}

func TestMaxPurchase(t *testing.T) {
	limited := TicketTier{Type: TierLimited, Quantity: 3, PurchaseLimit: 5}
	assert.Equal(t, 3, limited.MaxPurchase(), "stock caps the limit")

	limited.Quantity = 10
	assert.Equal(t, 5, limited.MaxPurchase(), "limit caps the stock")

	unlimited := TicketTier{Type: TierUnlimited, Quantity: 0, PurchaseLimit: 8}
	assert.Equal(t, 8, unlimited.MaxPurchase(), "unlimited tiers ignore stock")
}

func TestNormalizeCode(t *testing.T) {
	assert.Equal(t, "LAUNCH10", NormalizeCode(" launch 10 "))
	assert.Equal(t, "", NormalizeCode("   "))
}

func TestEligibleFor(t *testing.T) {
	p := PromoCode{ProductIDs: []string{"event-1", "event-2"}}
	assert.True(t, p.EligibleFor("event-2"))
	assert.False(t, p.EligibleFor("event-3"))
}

func TestCurrencySymbol(t *testing.T) {
	assert.Equal(t, "$", CurrencySymbol("USD"))
	assert.Equal(t, "₦", CurrencySymbol("XYZ"), "unknown currencies fall back to naira")
}
