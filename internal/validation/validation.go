// Package validation validates request DTOs using `validate` struct tags
package validation

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-while/checkweb/internal/models"
)

// ErrorCode is the response status error code of a failed validation
const ErrorCode = "ValidationException"

// FieldError represents a single failed rule
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message"`
}

// Errors is a collection of validation errors
type Errors []FieldError

func (ve Errors) Error() string {
	if len(ve) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", ve[0].Message)
}

// ResponseStatus converts the errors to the wire error payload
func (ve Errors) ResponseStatus() models.ResponseStatus {
	status := models.ResponseStatus{
		ErrorCode: ErrorCode,
		Message:   ve.Error(),
		Errors:    make([]models.ResponseError, 0, len(ve)),
	}
	if len(ve) > 0 {
		status.Message = ve[0].Message
	}
	for _, fe := range ve {
		status.Errors = append(status.Errors, models.ResponseError{
			ErrorCode: fe.Tag,
			FieldName: fe.Field,
			Message:   fe.Message,
		})
	}
	return status
}

// Validator wraps go-playground/validator
type Validator struct {
	validate *validator.Validate
}

func New() *Validator {
	return &Validator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

// Struct validates dto. It returns nil or Errors.
// Values that are not structs have nothing to validate.
func (v *Validator) Struct(dto any) error {
	err := v.validate.Struct(dto)
	if err == nil {
		return nil
	}
	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	out := make(Errors, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Tag:     fe.Tag(),
			Param:   fe.Param(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("'%s' must not be empty.", fe.Field())
	case "email":
		return fmt.Sprintf("'%s' is not a valid email address.", fe.Field())
	case "min":
		return fmt.Sprintf("'%s' must be at least %s characters long.", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("'%s' must be at most %s characters long.", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("'%s' is not valid.", fe.Field())
	}
}
