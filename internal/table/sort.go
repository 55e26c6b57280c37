package table

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/stockroom/internal/catalog"
)

// ErrUnknownField is returned for column names the table cannot sort by.
var ErrUnknownField = errors.New("table: unknown sort field")

// Field is a sortable product attribute.
type Field string

const (
	FieldName            Field = "name"
	FieldCategory        Field = "category"
	FieldUnitPrice       Field = "unitPrice"
	FieldExpirationDate  Field = "expirationDate"
	FieldQuantityInStock Field = "quantityInStock"
	FieldCreationDate    Field = "creationDate"
	FieldUpdateDate      Field = "updateDate"
)

var fields = []Field{
	FieldName,
	FieldCategory,
	FieldUnitPrice,
	FieldExpirationDate,
	FieldQuantityInStock,
	FieldCreationDate,
	FieldUpdateDate,
}

// Fields lists every sortable field.
func Fields() []Field {
	return slices.Clone(fields)
}

// ParseField validates a column name.
func ParseField(value string) (Field, error) {
	for _, f := range fields {
		if string(f) == value {
			return f, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownField, value)
}

// Order is the direction of one sort slot.
type Order string

const (
	OrderNone Order = ""
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// Next advances the none → asc → desc → none cycle.
func (o Order) Next() Order {
	switch o {
	case OrderNone:
		return OrderAsc
	case OrderAsc:
		return OrderDesc
	default:
		return OrderNone
	}
}

// Slot is one ranked sort key.
type Slot struct {
	Field Field `json:"field,omitempty"`
	Order Order `json:"order,omitempty"`
}

// Empty reports whether the slot sorts nothing.
func (s Slot) Empty() bool {
	return s.Field == "" || s.Order == OrderNone
}

// Spec is the two-level sort: the most recently and second most recently clicked columns.
type Spec struct {
	Primary   Slot `json:"primary"`
	Secondary Slot `json:"secondary"`
}

// Click applies a header click on field and returns the new spec.
func (s Spec) Click(field Field) Spec {
	switch {
	case !s.Primary.Empty() && s.Primary.Field == field:
		next := s.Primary.Order.Next()
		if next == OrderNone {
			return Spec{Primary: s.Secondary}
		}
		s.Primary.Order = next
	case !s.Secondary.Empty() && s.Secondary.Field == field:
		next := s.Secondary.Order.Next()
		if next == OrderNone {
			s.Secondary = Slot{}
			return s
		}
		s.Secondary.Order = next
	case s.Primary.Empty():
		s.Primary = Slot{Field: field, Order: OrderAsc}
	default:
		s.Secondary = Slot{Field: field, Order: OrderAsc}
	}
	return s
}

// OrderOf returns the order applied to field and its rank (1 primary, 2 secondary, 0 unsorted).
func (s Spec) OrderOf(field Field) (Order, int) {
	if !s.Primary.Empty() && s.Primary.Field == field {
		return s.Primary.Order, 1
	}
	if !s.Secondary.Empty() && s.Secondary.Field == field {
		return s.Secondary.Order, 2
	}
	return OrderNone, 0
}

func (s Spec) slots() []Slot {
	out := make([]Slot, 0, 2)
	if !s.Primary.Empty() {
		out = append(out, s.Primary)
	}
	if !s.Secondary.Empty() {
		out = append(out, s.Secondary)
	}
	return out
}

// Keys converts the spec into API sort parameters for server-side paging.
func (s Spec) Keys() []catalog.SortKey {
	slots := s.slots()
	keys := make([]catalog.SortKey, 0, len(slots))
	for _, slot := range slots {
		keys = append(keys, catalog.SortKey{Field: string(slot.Field), Order: string(slot.Order)})
	}
	return keys
}

// Sort returns an ordered copy of records. Ties on every slot keep encounter order.
func Sort(records []catalog.Product, spec Spec) []catalog.Product {
	out := slices.Clone(records)
	slots := spec.slots()
	if len(slots) == 0 {
		return out
	}
	col := newCollator()
	slices.SortStableFunc(out, func(a, b catalog.Product) int {
		for _, slot := range slots {
			if c := compareValues(col, fieldValue(a, slot.Field), fieldValue(b, slot.Field), slot.Order); c != 0 {
				return c
			}
		}
		return 0
	})
	return out
}

// newCollator orders strings case- and accent-insensitively with numeric runs
// compared by value. Collators are not safe for concurrent use.
func newCollator() *collate.Collator {
	return collate.New(language.English, collate.IgnoreCase, collate.IgnoreDiacritics, collate.Numeric)
}

// fieldValue returns nil, a string, a time.Time, an int or a decimal.Decimal.
func fieldValue(p catalog.Product, field Field) any {
	switch field {
	case FieldName:
		return p.Name
	case FieldCategory:
		return p.Category
	case FieldUnitPrice:
		return p.UnitPrice
	case FieldQuantityInStock:
		return p.QuantityInStock
	case FieldExpirationDate:
		return dateValue(p.ExpirationDate)
	case FieldCreationDate:
		return dateValue(p.CreationDate)
	case FieldUpdateDate:
		return dateValue(p.UpdateDate)
	default:
		return nil
	}
}

func dateValue(d *catalog.Date) any {
	if d == nil {
		return nil
	}
	return d.Time
}

// compareValues keeps nil values last whatever the order.
func compareValues(col *collate.Collator, a, b any, order Order) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	c := compareNonNil(col, a, b)
	if order == OrderDesc {
		return -c
	}
	return c
}

func compareNonNil(col *collate.Collator, a, b any) int {
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if na, ok := numeric(a); ok {
		if nb, ok := numeric(b); ok {
			return na.Cmp(nb)
		}
	}
	return col.CompareString(fmt.Sprint(a), fmt.Sprint(b))
}

func numeric(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Decimal{}, false
	}
}
