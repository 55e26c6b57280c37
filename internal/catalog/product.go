package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used on the wire and in forms.
const DateLayout = "2006-01-02"

// Date is a calendar date without a time-of-day component.
type Date struct {
	time.Time
}

// NewDate truncates t to its calendar day in UTC.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD value, falling back to RFC 3339 timestamps.
func ParseDate(value string) (Date, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(DateLayout, value); err == nil {
		return Date{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return Date{}, fmt.Errorf("catalog: invalid date %q", value)
	}
	return NewDate(t), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON encodes the date as a YYYY-MM-DD string.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts YYYY-MM-DD or RFC 3339 strings.
func (d *Date) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(raw)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Product is a catalog entry as served by the inventory API.
type Product struct {
	ID              int64
	Name            string
	Category        string
	UnitPrice       decimal.Decimal
	ExpirationDate  *Date
	QuantityInStock int
	CreationDate    *Date
	UpdateDate      *Date
}

// HasID reports whether the API has assigned an identifier.
func (p Product) HasID() bool {
	return p.ID > 0
}

// InStock reports whether any units are available.
func (p Product) InStock() bool {
	return p.QuantityInStock > 0
}

// StockValue is quantity times unit price.
func (p Product) StockValue() decimal.Decimal {
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(p.QuantityInStock)))
}

// productPayload is the JSON shape exchanged with the API.
type productPayload struct {
	ID              int64           `json:"id,omitempty"`
	Name            string          `json:"name"`
	Category        string          `json:"category"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	ExpirationDate  *Date           `json:"expirationDate"`
	QuantityInStock int             `json:"quantityInStock"`
	CreationDate    *Date           `json:"creationDate,omitempty"`
	UpdateDate      *Date           `json:"updateDate"`
}

// MarshalJSON encodes the product with unitPrice as a JSON number.
func (p Product) MarshalJSON() ([]byte, error) {
	payload := productPayload(p)
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	// decimal.Decimal encodes as a quoted string by default.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["unitPrice"] = json.RawMessage(p.UnitPrice.String())
	return json.Marshal(fields)
}

// UnmarshalJSON decodes the API product shape.
func (p *Product) UnmarshalJSON(data []byte) error {
	var payload productPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	*p = Product(payload)
	return nil
}

// Categories returns the distinct categories in first-appearance order.
func Categories(products []Product) []string {
	seen := make(map[string]struct{}, len(products))
	out := make([]string, 0, len(products))
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		out = append(out, p.Category)
	}
	return out
}
