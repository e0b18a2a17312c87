// Package validation holds the field rules every write path applies before a value
// reaches the lifecycle coordinator.
package validation

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/raffchen/inventory/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Decimals are range-checked as floats; the exact value is stored untouched.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			return d.InexactFloat64()
		}
		return nil
	}, decimal.Decimal{})
	return v
}

// fieldRules are validator tags checked against non-null business values.
var fieldRules = map[*domain.Kind]map[string]string{
	domain.Products: {
		"name":        "min=1,max=255",
		"description": "max=2000",
		"quantity":    "gte=0",
	},
	domain.Lenses: {
		"lens_type":     "min=1,max=64",
		"sphere":        "gt=-100,lt=100",
		"cylinder":      "gt=-100,lt=100",
		"unit_price":    "gte=0,lt=1000",
		"quantity":      "gte=0",
		"storage_limit": "gte=0",
		"comment":       "max=2000",
	},
}

const annotationRule = "max=2000"

// Value checks a coerced business value. Nil passes; nullability is the domain's call.
func Value(kind *domain.Kind, field domain.Field, v any) error {
	if v == nil {
		return nil
	}
	if err := field.Check(v); err != nil {
		return err
	}
	rule, ok := fieldRules[kind][field.Name]
	if !ok {
		return nil
	}
	if err := validate.Var(v, rule); err != nil {
		return ruleError(field.Name, err)
	}
	return nil
}

// Annotation checks an update_notes or update_source text.
func Annotation(name, text string) error {
	if err := validate.Var(text, annotationRule); err != nil {
		return ruleError(name, err)
	}
	return nil
}

func ruleError(name string, err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("%w: field %s fails %s=%s", domain.ErrInvalidPayload, name, fe.Tag(), fe.Param())
		}
		return fmt.Errorf("%w: field %s fails %s", domain.ErrInvalidPayload, name, fe.Tag())
	}
	return fmt.Errorf("%w: field %s: %v", domain.ErrInvalidPayload, name, err)
}
