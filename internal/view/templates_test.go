package view

import (
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockroom/internal/catalog"
)

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine()
	assert.NoError(t, err, "Templates should parse without error")
	assert.NotNil(t, engine)
}

func TestRenderUnknownTemplateWritesNothing(t *testing.T) {
	engine, err := NewEngine()
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	require.Error(t, engine.Render(rr, "pages/missing.html", TemplateData{}))
	require.Empty(t, rr.Body.String())
}

func TestFormatMoney(t *testing.T) {
	assert.Equal(t, "$1,234.50", FormatMoney(decimal.RequireFromString("1234.5")))
	assert.Equal(t, "$0.00", FormatMoney(decimal.Zero))
	assert.Equal(t, "$4.29", FormatMoney(decimal.NewFromInt(60).Div(decimal.NewFromInt(14))))
	assert.Equal(t, "-$3.10", FormatMoney(decimal.RequireFromString("-3.1")))
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "N/A", FormatDate(nil))
	d, err := catalog.ParseDate("2025-04-09")
	require.NoError(t, err)
	assert.Equal(t, "2025-04-09", FormatDate(&d))
}
