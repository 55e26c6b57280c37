package inventory

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/stockroom/internal/catalog"
)

// searchForm is the submitted search bar.
type searchForm struct {
	Name         string   `form:"name" validate:"max=120"`
	Categories   []string `form:"category" validate:"dive,required,max=120"`
	Availability string   `form:"availability" validate:"omitempty,oneof=in_stock out_of_stock"`
}

var searchValidator = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		return strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
	})
	return v
}()

var searchMessages = map[string]string{
	"name":         "Search text must be at most 120 characters.",
	"category":     "Choose categories from the list.",
	"availability": "Choose a valid availability.",
}

func parseSearchForm(r *http.Request) searchForm {
	form := searchForm{
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Availability: strings.TrimSpace(r.PostFormValue("availability")),
	}
	for _, category := range r.PostForm["category"] {
		if category = strings.TrimSpace(category); category != "" {
			form.Categories = append(form.Categories, category)
		}
	}
	return form
}

// validate returns field messages keyed by form field name.
func (f searchForm) validate() map[string]string {
	err := searchValidator.Struct(f)
	if err == nil {
		return nil
	}
	out := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out["general"] = err.Error()
		return out
	}
	for _, fe := range verrs {
		// Slice elements report as category[0].
		field, _, _ := strings.Cut(fe.Field(), "[")
		if msg, ok := searchMessages[field]; ok {
			out[field] = msg
		}
	}
	return out
}

func (f searchForm) criteria() catalog.Criteria {
	return catalog.Criteria{
		Name:         f.Name,
		Categories:   f.Categories,
		Availability: catalog.ParseAvailability(f.Availability),
	}
}
