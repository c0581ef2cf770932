package core

import (
	"log/slog"

	"github.com/go-playground/validator/v10"

	"shopimport/internal/types"
)

// Validator wraps go-playground/validator and translates validation failures
// into structured AppErrors so handlers can pass them straight to Error().
type Validator struct {
	v      *validator.Validate
	logger *slog.Logger
}

// NewValidator creates a new Validator and registers domain-specific rules.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}

	v := validator.New(validator.WithRequiredStructEnabled())

	return &Validator{v: v, logger: logger}
}

// ValidateStruct validates the struct's `validate` tags. On failure it returns
// a *types.AppError (400) with per-field details; internal validator errors
// (malformed rules) surface as internal_unexpected_error.
func (val *Validator) ValidateStruct(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		val.logger.Error("validator internal error", "error", err)
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"request validation could not be performed",
			err,
		)
	}

	details := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
	}

	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationMissingField,
		"request validation failed",
		err,
		details,
	)
}
