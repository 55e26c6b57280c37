package catalog

import (
	"net/url"
	"strconv"
	"strings"
)

// Availability filters products by stock status.
type Availability string

const (
	AvailabilityAll        Availability = ""
	AvailabilityInStock    Availability = "in_stock"
	AvailabilityOutOfStock Availability = "out_of_stock"
)

// ParseAvailability maps form values to an Availability, defaulting to all.
func ParseAvailability(value string) Availability {
	switch Availability(strings.TrimSpace(value)) {
	case AvailabilityInStock:
		return AvailabilityInStock
	case AvailabilityOutOfStock:
		return AvailabilityOutOfStock
	default:
		return AvailabilityAll
	}
}

// Label is the human readable option text, also used as the API parameter value.
func (a Availability) Label() string {
	switch a {
	case AvailabilityInStock:
		return "In stock"
	case AvailabilityOutOfStock:
		return "Out of stock"
	default:
		return "All"
	}
}

// AvailabilityOptions lists the selectable availability filters.
func AvailabilityOptions() []Availability {
	return []Availability{AvailabilityAll, AvailabilityInStock, AvailabilityOutOfStock}
}

// Criteria holds the search filters chosen by the user.
type Criteria struct {
	Name         string       `json:"name,omitempty"`
	Categories   []string     `json:"categories,omitempty"`
	Availability Availability `json:"availability,omitempty"`
}

// Active reports whether any filter narrows the catalog.
func (c Criteria) Active() bool {
	return strings.TrimSpace(c.Name) != "" || len(c.Categories) > 0 || c.Availability != AvailabilityAll
}

// HasCategory reports whether category is part of the filter.
func (c Criteria) HasCategory(category string) bool {
	for _, item := range c.Categories {
		if item == category {
			return true
		}
	}
	return false
}

// SortKey is one ranked sort instruction delegated to the API.
type SortKey struct {
	Field string
	Order string
}

// Query describes one product listing request.
type Query struct {
	Criteria Criteria
	// Paged requests a single page; otherwise the full filtered set is requested.
	Paged bool
	// Page is zero-based.
	Page int
	Size int
	Sort []SortKey
}

// Values encodes the query as API request parameters.
func (q Query) Values() url.Values {
	values := url.Values{}
	if q.Paged {
		page := q.Page
		if page < 0 {
			page = 0
		}
		values.Set("page", strconv.Itoa(page))
		if q.Size > 0 {
			values.Set("size", strconv.Itoa(q.Size))
		}
	}
	if len(q.Sort) > 0 && q.Sort[0].Field != "" {
		values.Set("sortBy", q.Sort[0].Field)
		values.Set("sortOrder", q.Sort[0].Order)
	}
	if len(q.Sort) > 1 && q.Sort[1].Field != "" {
		values.Set("secondarySortBy", q.Sort[1].Field)
		values.Set("secondarySortOrder", q.Sort[1].Order)
	}
	if name := strings.TrimSpace(q.Criteria.Name); name != "" {
		values.Set("name", name)
	}
	for _, category := range q.Criteria.Categories {
		values.Add("category", category)
	}
	if q.Criteria.Availability != AvailabilityAll {
		values.Set("availability", q.Criteria.Availability.Label())
	}
	return values
}

// Key identifies equivalent queries for request coalescing.
func (q Query) Key() string {
	return q.Values().Encode()
}
