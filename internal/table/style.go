package table

import (
	"time"

	"github.com/odyssey-erp/stockroom/internal/catalog"
)

// RowStyle is the highlight applied to a table row.
type RowStyle string

const (
	RowNormal       RowStyle = "normal"
	RowOutOfStock   RowStyle = "out-of-stock"
	RowNearExpiry   RowStyle = "near-expiry"
	RowExpiringSoon RowStyle = "expiring-soon"
)

const (
	nearExpiryDays   = 7
	expiringSoonDays = 14
)

// Class is the CSS class for the style.
func (s RowStyle) Class() string {
	return "row-" + string(s)
}

// StyleFor picks the row style by priority: stock first, then expiry proximity.
func StyleFor(p catalog.Product, now time.Time) RowStyle {
	if p.QuantityInStock == 0 {
		return RowOutOfStock
	}
	if p.ExpirationDate == nil {
		return RowNormal
	}
	days := DaysUntil(*p.ExpirationDate, now)
	switch {
	case days <= nearExpiryDays:
		return RowNearExpiry
	case days <= expiringSoonDays:
		return RowExpiringSoon
	default:
		return RowNormal
	}
}

// DaysUntil counts calendar days from now to d; negative once expired.
func DaysUntil(d catalog.Date, now time.Time) int {
	today := catalog.NewDate(now)
	return int(d.Sub(today.Time).Hours() / 24)
}

// StockLevel grades the quantity cell.
type StockLevel string

const (
	StockOK       StockLevel = "ok"
	StockLow      StockLevel = "low"
	StockCritical StockLevel = "critical"
)

// LevelFor grades qty: at most 4 is critical, at most 10 is low.
func LevelFor(qty int) StockLevel {
	switch {
	case qty <= 4:
		return StockCritical
	case qty <= 10:
		return StockLow
	default:
		return StockOK
	}
}

// Class is the CSS class for the level.
func (l StockLevel) Class() string {
	return "stock-" + string(l)
}
