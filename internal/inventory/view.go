package inventory

import (
	"github.com/odyssey-erp/stockroom/internal/catalog"
	"github.com/odyssey-erp/stockroom/internal/productform"
	"github.com/odyssey-erp/stockroom/internal/report"
	"github.com/odyssey-erp/stockroom/internal/selection"
	"github.com/odyssey-erp/stockroom/internal/table"
)

// column is one sortable table header.
type column struct {
	Field table.Field
	Label string
	Order table.Order
	// Rank is 1 for the primary sort, 2 for the secondary, 0 when unsorted.
	Rank int
}

// Indicator is the arrow rendered next to the header label.
func (c column) Indicator() string {
	switch c.Order {
	case table.OrderAsc:
		return "▲"
	case table.OrderDesc:
		return "▼"
	default:
		return ""
	}
}

// AriaSort is the aria-sort attribute value.
func (c column) AriaSort() string {
	switch c.Order {
	case table.OrderAsc:
		return "ascending"
	case table.OrderDesc:
		return "descending"
	default:
		return "none"
	}
}

var columnLabels = []struct {
	field table.Field
	label string
}{
	{table.FieldName, "Name"},
	{table.FieldCategory, "Category"},
	{table.FieldUnitPrice, "Price"},
	{table.FieldExpirationDate, "Expiration Date"},
	{table.FieldQuantityInStock, "Stock"},
}

func columnsFor(spec table.Spec) []column {
	out := make([]column, 0, len(columnLabels))
	for _, c := range columnLabels {
		order, rank := spec.OrderOf(c.field)
		out = append(out, column{Field: c.field, Label: c.label, Order: order, Rank: rank})
	}
	return out
}

type rowView struct {
	Product    catalog.Product
	Selected   bool
	RowClass   string
	StockClass string
}

type categoryOption struct {
	Name    string
	Checked bool
}

type availabilityOption struct {
	Value   catalog.Availability
	Label   string
	Checked bool
}

type searchView struct {
	Name         string
	Categories   []categoryOption
	Availability []availabilityOption
	Errors       map[string]string
}

func newSearchView(criteria catalog.Criteria, categories []string, errs map[string]string) searchView {
	v := searchView{Name: criteria.Name, Errors: errs}
	if v.Errors == nil {
		v.Errors = map[string]string{}
	}
	known := make(map[string]struct{}, len(categories))
	for _, name := range categories {
		known[name] = struct{}{}
		v.Categories = append(v.Categories, categoryOption{Name: name, Checked: criteria.HasCategory(name)})
	}
	// Keep chosen categories visible even when the listing no longer has them.
	for _, name := range criteria.Categories {
		if _, ok := known[name]; !ok {
			v.Categories = append(v.Categories, categoryOption{Name: name, Checked: true})
		}
	}
	for _, a := range catalog.AvailabilityOptions() {
		v.Availability = append(v.Availability, availabilityOption{Value: a, Label: a.Label(), Checked: criteria.Availability == a})
	}
	return v
}

// pageView feeds pages/inventory.html.
type pageView struct {
	Columns       []column
	Rows          []rowView
	Header        selection.HeaderState
	Window        table.Window
	Search        searchView
	Searching     bool
	Categories    []string
	Updating      bool
	SelectedCount int
	Report        report.Report
	LoadError     string
	Draft         *productform.Form
}

// HeaderAria is the aria-checked value of the page checkbox.
func (p pageView) HeaderAria() string {
	switch p.Header {
	case selection.HeaderChecked:
		return "true"
	case selection.HeaderMixed:
		return "mixed"
	default:
		return "false"
	}
}

// formView feeds pages/product_form.html.
type formView struct {
	Form          productform.Form
	Errors        map[string]string
	Categories    []string
	Action        string
	Heading       string
	SubmitLabel   string
	SubmissionKey string
}

// reportView feeds pages/report.html.
type reportView struct {
	Report    report.Report
	LoadError string
}

func productIDs(products []catalog.Product) []int64 {
	ids := make([]int64, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
