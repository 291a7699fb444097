package api

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrValidatorInit is returned when custom validator registration fails.
var ErrValidatorInit = errors.New("validator initialization failed")

var (
	validate     *validator.Validate
	validateOnce sync.Once
	errValidate  error
)

// initValidators creates the validator with the custom amount rule.
func initValidators() (*validator.Validate, error) {
	vld := validator.New(validator.WithRequiredStructEnabled())

	// positive_amount accepts a string that parses to a strictly positive
	// decimal. Empty strings pass so the required tag reports them instead.
	if err := vld.RegisterValidation("positive_amount", func(fl validator.FieldLevel) bool {
		str := fl.Field().String()
		if str == "" {
			return true
		}

		d, parseErr := decimal.NewFromString(str)
		if parseErr != nil {
			return false
		}

		return d.IsPositive()
	}); err != nil {
		return nil, fmt.Errorf("%w: failed to register 'positive_amount': %w", ErrValidatorInit, err)
	}

	return vld, nil
}

// validateStruct validates s against its struct tags.
func validateStruct(s any) error {
	validateOnce.Do(func() {
		validate, errValidate = initValidators()
	})

	if errValidate != nil {
		return errValidate
	}

	return validate.Struct(s)
}
