package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared struct validator with the catalog rules
// registered. Field names in errors follow the json tag.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"json", "form", "param", "query"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return ""
		})
		_ = v.RegisterValidation("packagetype", func(fl validator.FieldLevel) bool {
			return IsPackageType(fl.Field().String())
		})
		validate = v
	})
	return validate
}

// Validate checks the draft before it is sent anywhere.
func (d ProductDraft) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	if err := Validator().Struct(d); err != nil {
		return AsValidationError(err)
	}
	if d.Image != nil {
		if len(d.Image.Data) == 0 {
			return NewValidationError("image", "file is empty")
		}
		mt := mimetype.Detect(d.Image.Data)
		if !strings.HasPrefix(mt.String(), "image/") {
			return NewValidationError("image", "unsupported content type "+mt.String())
		}
	}
	return nil
}

// AsValidationError turns a validator failure into a ValidationError
// naming the first offending field.
func AsValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return NewValidationError("", err.Error())
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return NewValidationError(fe.Field(), "is required")
	case "packagetype":
		return NewValidationError(fe.Field(), fmt.Sprintf("unknown package type %q", fe.Value()))
	default:
		return NewValidationError(fe.Field(), "failed on "+fe.Tag())
	}
}
