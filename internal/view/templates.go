package view

import (
	"bytes"
	"fmt"
	"html/template"
	"net/http"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/stockroom/internal/catalog"
	"github.com/odyssey-erp/stockroom/internal/shared"
	"github.com/odyssey-erp/stockroom/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	Data        any
}

// NewEngine parses the embedded templates.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatMoney": FormatMoney,
		"formatDate":  FormatDate,
		"add":         func(a, b int) int { return a + b },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	return e.RenderStatus(w, http.StatusOK, name, data)
}

// RenderStatus executes a named template and answers with status. Output is
// buffered so a failing template never leaves a half-written page.
func (e *Engine) RenderStatus(w http.ResponseWriter, status int, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	var buf bytes.Buffer
	if err := e.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}

// FormatMoney renders an amount as US currency with grouped thousands.
func FormatMoney(amount decimal.Decimal) string {
	printer := message.NewPrinter(language.English)
	rounded := amount.Round(2)
	if rounded.IsNegative() {
		return "-$" + printer.Sprintf("%.2f", rounded.Neg().InexactFloat64())
	}
	return "$" + printer.Sprintf("%.2f", rounded.InexactFloat64())
}

// FormatDate renders a calendar date, or N/A when unknown.
func FormatDate(d *catalog.Date) string {
	if d == nil || d.IsZero() {
		return "N/A"
	}
	return d.String()
}
