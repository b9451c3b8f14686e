package middleware

import (
	"github.com/go-playground/validator/v10"

	"github.com/nguyentranbao-ct/catalog-console/internal/models"
)

// Validator plugs the catalog rules into echo's c.Validate.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: models.Validator()}
}

func (v *Validator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		return models.AsValidationError(err)
	}
	return nil
}
