package dto

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sd-enrollment-api/internal/models"
)

// NewValidator returns a validator that reports JSON field names and knows
// the gradelevel tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("gradelevel", func(fl validator.FieldLevel) bool {
		_, ok := models.ParseGradeLevel(fl.Field().String())
		return ok
	})
	return v
}
