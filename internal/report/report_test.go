package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockroom/internal/catalog"
)

func product(category string, qty int, price string) catalog.Product {
	return catalog.Product{Category: category, QuantityInStock: qty, UnitPrice: decimal.RequireFromString(price)}
}

func TestAggregateExcludesEmptyStock(t *testing.T) {
	rep := Aggregate([]catalog.Product{
		product("Fruit", 10, "2"),
		product("Fruit", 0, "5"),
		product("Snack", 4, "10"),
	})

	require.Len(t, rep.Categories, 2)
	fruit, snack := rep.Categories[0], rep.Categories[1]
	require.Equal(t, "Fruit", fruit.Category)
	require.Equal(t, 10, fruit.TotalProducts)
	require.True(t, fruit.TotalValue.Equal(decimal.NewFromInt(20)))
	require.True(t, fruit.AveragePrice.Equal(decimal.NewFromInt(2)))
	require.Equal(t, "Snack", snack.Category)
	require.Equal(t, 4, snack.TotalProducts)
	require.True(t, snack.TotalValue.Equal(decimal.NewFromInt(40)))
	require.True(t, snack.AveragePrice.Equal(decimal.NewFromInt(10)))

	require.Equal(t, OverallLabel, rep.Overall.Category)
	require.Equal(t, 14, rep.Overall.TotalProducts)
	require.True(t, rep.Overall.TotalValue.Equal(decimal.NewFromInt(60)))
	require.True(t, rep.Overall.AveragePrice.Equal(decimal.NewFromInt(60).Div(decimal.NewFromInt(14))))
}

func TestAggregateOmitsCategoryWithoutStock(t *testing.T) {
	rep := Aggregate([]catalog.Product{product("Dairy", 0, "3"), product("Bakery", 2, "1.50")})
	require.Len(t, rep.Categories, 1)
	require.Equal(t, "Bakery", rep.Categories[0].Category)
	require.Equal(t, "3.00", rep.Categories[0].TotalValue.StringFixed(2))
}

func TestAggregateEmptyOverallAverageIsZero(t *testing.T) {
	rep := Aggregate([]catalog.Product{product("Fruit", 0, "5")})
	require.Empty(t, rep.Categories)
	require.Zero(t, rep.Overall.TotalProducts)
	require.True(t, rep.Overall.AveragePrice.IsZero())
	require.True(t, rep.Overall.TotalValue.IsZero())
}

func TestAggregatorObserve(t *testing.T) {
	agg := NewAggregator()
	require.True(t, agg.Report().Overall.AveragePrice.IsZero())

	agg.Observe([]catalog.Product{product("Fruit", 3, "1")})
	require.Equal(t, 3, agg.Report().Overall.TotalProducts)
}

func TestWriteCSV(t *testing.T) {
	rep := Aggregate([]catalog.Product{product("Fruit", 10, "2"), product("Snack", 4, "10")})
	buf := &bytes.Buffer{}
	require.NoError(t, WriteCSV(buf, rep))

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	require.Equal(t, [][]string{
		{"Category", "Total Products", "Total Value", "Average Price"},
		{"Fruit", "10", "20.00", "2.00"},
		{"Snack", "4", "40.00", "10.00"},
		{"Overall", "14", "60.00", "4.29"},
	}, records)
}

func TestReportJSONUsesNumbers(t *testing.T) {
	rep := Aggregate([]catalog.Product{product("Fruit", 3, "2.5")})
	data, err := json.Marshal(rep)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"categories":[{"category":"Fruit","totalProducts":3,"totalValue":7.50,"averagePrice":2.50}],
		"overall":{"category":"Overall","totalProducts":3,"totalValue":7.50,"averagePrice":2.50}
	}`, string(data))
}
