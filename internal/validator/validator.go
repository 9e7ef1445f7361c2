// Package validator builds the request validator shared by the HTTP handlers.
package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/storefront-discount-service/internal/urldiscount"
)

// New creates a validator with the storefront rules registered:
//
//	notblank  rejects whitespace-only strings (variant IDs, page URLs)
//	pageurl   requires a page URL the discount detector can parse
func New() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true // not a string; other tags decide
		}
		return strings.TrimSpace(str) != ""
	})

	_ = v.RegisterValidation("pageurl", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true
		}
		_, err := urldiscount.ParsePage(str)
		return err == nil
	})

	return v
}
