// Package validator provides request validation infrastructure.
// This is part of the platform layer and contains no business logic.
package validator

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator wraps the go-playground validator so handlers receive it by injection.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the intake-specific tags registered:
//
//	platform    web or whatsapp (case-insensitive, empty allowed)
//	session_id  printable id without whitespace, at most 128 bytes
func New() *Validator {
	v := validator.New()
	_ = v.RegisterValidation("platform", validatePlatform)
	_ = v.RegisterValidation("session_id", validateSessionID)
	return &Validator{v: v}
}

// Struct validates a struct based on validation tags.
func (val *Validator) Struct(s any) error {
	return val.v.Struct(s)
}

// Var validates a single variable against a tag.
func (val *Validator) Var(field any, tag string) error {
	return val.v.Var(field, tag)
}

func validatePlatform(fl validator.FieldLevel) bool {
	switch strings.ToLower(strings.TrimSpace(fl.Field().String())) {
	case "", "web", "whatsapp":
		return true
	default:
		return false
	}
}

func validateSessionID(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	if len(value) > 128 {
		return false
	}
	for _, r := range value {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
