package api

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	app_errors "timeline-ai/backend/internal/errors"

	"github.com/go-playground/validator/v10"
)

// This file provides a centralized, singleton-based validation helper for API request bodies.

var (
	// validate holds the single instance of the validator.
	validate *validator.Validate
	// once ensures that the validator is initialized only one time.
	once sync.Once
)

// getInstance uses sync.Once to safely initialize and return the validator singleton.
func getInstance() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateRequest checks a given payload struct against the validation rules
// defined in its field tags (e.g., `validate:"required"`).
// If validation fails, it returns a wrapped `app_errors.ErrValidation` with a
// user-friendly, detailed message.
func validateRequest(payload interface{}) error {
	return formatValidationError(getInstance().Struct(payload), "")
}

// validateVar checks a single value against a tag built at runtime, such as a
// configured maximum length. name is used in the error message.
func validateVar(value interface{}, tag, name string) error {
	return formatValidationError(getInstance().Var(value, tag), name)
}

func formatValidationError(err error, name string) error {
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: an unexpected error occurred during validation: %s", app_errors.ErrValidation, err.Error())
	}

	var errorMessages []string
	for _, fieldErr := range validationErrors {
		field := fieldErr.Field()
		if field == "" {
			field = name
		}
		// Example output: "Field 'Event' failed on the 'max' tag (500)".
		errMsg := fmt.Sprintf("Field '%s' failed on the '%s' tag", field, fieldErr.Tag())
		if fieldErr.Param() != "" {
			errMsg += fmt.Sprintf(" (%s)", fieldErr.Param())
		}
		errorMessages = append(errorMessages, errMsg)
	}

	return fmt.Errorf("%w: %s", app_errors.ErrValidation, strings.Join(errorMessages, "; "))
}
