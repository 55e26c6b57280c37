package productform

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockroom/internal/catalog"
)

// MaxNameLength bounds product and category names.
const MaxNameLength = 120

// Mode tells whether the form creates a product or edits an existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeEdit   Mode = "edit"
)

// Saver persists products through the inventory API.
type Saver interface {
	Create(ctx context.Context, p catalog.Product) error
	Update(ctx context.Context, id int64, p catalog.Product) error
}

// Form holds the staged, unparsed field values of the product form.
type Form struct {
	Open           bool   `json:"open"`
	Mode           Mode   `json:"mode,omitempty"`
	EditingID      int64  `json:"editingId,omitempty"`
	Name           string `json:"name" form:"name" validate:"required,max=120"`
	Category       string `json:"category" form:"category" validate:"required_unless=UseNewCategory true,max=120"`
	UseNewCategory bool   `json:"useNewCategory" form:"use_new_category"`
	NewCategory    string `json:"newCategory" form:"new_category" validate:"required_if=UseNewCategory true,max=120"`
	UnitPrice      string `json:"unitPrice" form:"unit_price" validate:"required,price"`
	Quantity       string `json:"quantity" form:"quantity" validate:"required,quantity"`
	ExpirationDate string `json:"expirationDate" form:"expiration_date" validate:"omitempty,datetime=2006-01-02"`
	CreationDate   string `json:"creationDate,omitempty" form:"-"`
}

// FieldError is a validation failure bound to one form field.
type FieldError struct {
	Field   string
	Message string
}

// FieldErrors is returned when the staged values do not form a valid product.
type FieldErrors []FieldError

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "productform: invalid fields: " + strings.Join(parts, "; ")
}

// Map indexes messages by form field name.
func (e FieldErrors) Map() map[string]string {
	out := make(map[string]string, len(e))
	for _, fe := range e {
		if _, ok := out[fe.Field]; !ok {
			out[fe.Field] = fe.Message
		}
	}
	return out
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		price, err := decimal.NewFromString(strings.TrimSpace(fl.Field().String()))
		return err == nil && price.IsPositive()
	})
	_ = v.RegisterValidation("quantity", func(fl validator.FieldLevel) bool {
		qty, err := strconv.Atoi(strings.TrimSpace(fl.Field().String()))
		return err == nil && qty >= 0
	})
	return v
}

var messages = map[string]string{
	"name.required":            "Please add a name.",
	"name.max":                 fmt.Sprintf("Name must be at most %d characters.", MaxNameLength),
	"category.required_unless": "Please select a category.",
	"category.max":             fmt.Sprintf("Category must be at most %d characters.", MaxNameLength),
	"new_category.required_if": "Please add the new category.",
	"new_category.max":         fmt.Sprintf("Category must be at most %d characters.", MaxNameLength),
	"unit_price.required":      "Please add a price.",
	"unit_price.price":         "Price must be a number greater than 0.",
	"quantity.required":        "Please add a stock.",
	"quantity.quantity":        "Stock must be a whole number of 0 or more.",
	"expiration_date.datetime": "Expiration date must be YYYY-MM-DD.",
}

// NewForm opens an empty form in create mode.
func NewForm() Form {
	return Form{Open: true, Mode: ModeCreate}
}

// FromProduct opens the form in edit mode, pre-filled from p.
func FromProduct(p catalog.Product) Form {
	f := Form{
		Open:      true,
		Mode:      ModeEdit,
		EditingID: p.ID,
		Name:      p.Name,
		Category:  p.Category,
		UnitPrice: p.UnitPrice.String(),
		Quantity:  strconv.Itoa(p.QuantityInStock),
	}
	if p.ExpirationDate != nil {
		f.ExpirationDate = p.ExpirationDate.String()
	}
	if p.CreationDate != nil {
		f.CreationDate = p.CreationDate.String()
	}
	return f
}

// Staged reports whether the form holds values from an earlier attempt.
func (f Form) Staged() bool {
	return f.Mode != ""
}

// Normalize trims surrounding whitespace from every text field.
func (f *Form) Normalize() {
	f.Name = strings.TrimSpace(f.Name)
	f.Category = strings.TrimSpace(f.Category)
	f.NewCategory = strings.TrimSpace(f.NewCategory)
	f.UnitPrice = strings.TrimSpace(f.UnitPrice)
	f.Quantity = strings.TrimSpace(f.Quantity)
	f.ExpirationDate = strings.TrimSpace(f.ExpirationDate)
}

// Validate checks the staged values. It never touches the network.
func (f Form) Validate() FieldErrors {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return FieldErrors{{Field: "general", Message: err.Error()}}
	}
	out := make(FieldErrors, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := messages[fe.Field()+"."+fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		out = append(out, FieldError{Field: fe.Field(), Message: msg})
	}
	return out
}

// ResolvedCategory is the category the product will be saved under.
func (f Form) ResolvedCategory() string {
	if f.UseNewCategory {
		return f.NewCategory
	}
	return f.Category
}

// Product assembles the product to send. Creation keeps the original date on edit.
func (f Form) Product(now time.Time) (catalog.Product, error) {
	if errs := f.Validate(); len(errs) > 0 {
		return catalog.Product{}, errs
	}
	price, _ := decimal.NewFromString(f.UnitPrice)
	qty, _ := strconv.Atoi(f.Quantity)
	p := catalog.Product{
		ID:              f.EditingID,
		Name:            f.Name,
		Category:        f.ResolvedCategory(),
		UnitPrice:       price,
		QuantityInStock: qty,
	}
	if f.ExpirationDate != "" {
		d, err := catalog.ParseDate(f.ExpirationDate)
		if err != nil {
			return catalog.Product{}, FieldErrors{{Field: "expiration_date", Message: messages["expiration_date.datetime"]}}
		}
		p.ExpirationDate = &d
	}
	today := catalog.NewDate(now)
	created := today
	if f.Mode == ModeEdit {
		if d, err := catalog.ParseDate(f.CreationDate); err == nil {
			created = d
		}
		p.UpdateDate = &today
	}
	p.CreationDate = &created
	return p, nil
}

// Submit validates and saves the form. Success clears the staged values; an API
// failure closes the form but keeps the values for a retry. Validation errors
// leave the form open and make no call.
func (f *Form) Submit(ctx context.Context, saver Saver, now time.Time) error {
	f.Normalize()
	p, err := f.Product(now)
	if err != nil {
		return err
	}
	if f.Mode == ModeEdit {
		err = saver.Update(ctx, f.EditingID, p)
	} else {
		err = saver.Create(ctx, p)
	}
	if err != nil {
		f.Open = false
		return err
	}
	*f = Form{}
	return nil
}

// Close hides the form and keeps any staged values.
func (f *Form) Close() {
	f.Open = false
}

// Cancel discards the staged values.
func (f *Form) Cancel() {
	*f = Form{}
}

// SuccessMessage is the banner shown after a successful submit in mode.
func SuccessMessage(mode Mode) string {
	if mode == ModeEdit {
		return "Product updated successfully"
	}
	return "Product added successfully"
}
