package report

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockroom/internal/catalog"
)

// OverallLabel names the synthetic row aggregating every category.
const OverallLabel = "Overall"

// CategoryReport is the stock valuation of one category.
type CategoryReport struct {
	Category      string
	TotalProducts int
	TotalValue    decimal.Decimal
	AveragePrice  decimal.Decimal
}

// Report holds the per-category rows in first-appearance order and the overall row.
type Report struct {
	Categories []CategoryReport
	Overall    CategoryReport
}

// Aggregate values the in-stock products. Products with no stock are ignored.
func Aggregate(products []catalog.Product) Report {
	type bucket struct {
		units int
		value decimal.Decimal
	}
	order := make([]string, 0)
	buckets := make(map[string]*bucket)
	overall := bucket{value: decimal.Zero}

	for _, p := range products {
		if p.QuantityInStock <= 0 {
			continue
		}
		b, ok := buckets[p.Category]
		if !ok {
			b = &bucket{value: decimal.Zero}
			buckets[p.Category] = b
			order = append(order, p.Category)
		}
		value := p.StockValue()
		b.units += p.QuantityInStock
		b.value = b.value.Add(value)
		overall.units += p.QuantityInStock
		overall.value = overall.value.Add(value)
	}

	rep := Report{Categories: make([]CategoryReport, 0, len(order))}
	for _, category := range order {
		b := buckets[category]
		rep.Categories = append(rep.Categories, row(category, b.units, b.value))
	}
	rep.Overall = row(OverallLabel, overall.units, overall.value)
	return rep
}

func row(category string, units int, value decimal.Decimal) CategoryReport {
	average := decimal.Zero
	if units > 0 {
		average = value.Div(decimal.NewFromInt(int64(units)))
	}
	return CategoryReport{
		Category:      category,
		TotalProducts: units,
		TotalValue:    value,
		AveragePrice:  average,
	}
}

// Aggregator keeps the report of the latest product list it was notified of.
type Aggregator struct {
	mu     sync.RWMutex
	report Report
}

func NewAggregator() *Aggregator {
	return &Aggregator{report: Aggregate(nil)}
}

// Observe recomputes the report from products.
func (a *Aggregator) Observe(products []catalog.Product) {
	rep := Aggregate(products)
	a.mu.Lock()
	a.report = rep
	a.mu.Unlock()
}

// Report returns the latest report.
func (a *Aggregator) Report() Report {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.report
}
