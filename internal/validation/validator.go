package validation

import (
	"reflect"
	"strings"
	"unicode"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/imrishuroy/go-payment-reconciler/internal/amount"
)

// messages overrides the default validator text per tag.
var messages = map[string]string{
	"utr":    "UTR must be exactly 12 digits",
	"money":  "must be a positive amount with at most 2 decimals",
	"amount": "must be a positive amount",
}

// New returns a configured validator with the utr, money and amount tags registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report json names in field errors
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// Money is validated as its decimal string
	v.RegisterCustomTypeFunc(func(f reflect.Value) interface{} {
		if m, ok := f.Interface().(amount.Money); ok {
			return m.Decimal.String()
		}
		return nil
	}, amount.Money{})

	_ = v.RegisterValidation("utr", validateUTR)
	_ = v.RegisterValidation("money", validateMoney)
	_ = v.RegisterValidation("amount", validateAmount)
	return v
}

// validateUTR accepts 12 ASCII digits once whitespace is removed.
func validateUTR(fl validatorv10.FieldLevel) bool {
	n := 0
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsSpace(r):
		case r >= '0' && r <= '9':
			n++
		default:
			return false
		}
	}
	return n == 12
}

// validateMoney accepts a catalog price: positive, at most two decimals.
func validateMoney(fl validatorv10.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	if err != nil {
		return false
	}
	return d.IsPositive() && d.Equal(d.Round(2))
}

// validateAmount accepts any positive claimed amount; precision is left to scoring.
func validateAmount(fl validatorv10.FieldLevel) bool {
	d, err := decimal.NewFromString(fl.Field().String())
	return err == nil && d.IsPositive()
}
