package validation

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	InvalidCountryCode   Kind = "InvalidCountryCode"
	InvalidCurrencyCode  Kind = "InvalidCurrencyCode"
	InvalidPhoneNumber   Kind = "InvalidPhoneNumber"
	InvalidEmail         Kind = "InvalidEmail"
	OutOfRangePercentage Kind = "OutOfRangePercentage"
	MissingRequiredField Kind = "MissingRequiredField"
	InvalidStatus        Kind = "InvalidStatus"
	InvalidDate          Kind = "InvalidDate"
	InvalidAmount        Kind = "InvalidAmount"
)

// FieldError reports a single rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func newFieldError(field string, kind Kind, format string, args ...any) *FieldError {
	return &FieldError{Field: field, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Errors is every field error found while building one record.
type Errors []*FieldError

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Error())
	}
	return strings.Join(parts, "; ")
}

func (e Errors) Unwrap() []error {
	out := make([]error, 0, len(e))
	for _, fe := range e {
		out = append(out, fe)
	}
	return out
}

// Kinds lists the error kind of each field error in order.
func (e Errors) Kinds() []Kind {
	out := make([]Kind, 0, len(e))
	for _, fe := range e {
		out = append(out, fe.Kind)
	}
	return out
}

// ForField returns the error recorded for field, if any.
func (e Errors) ForField(field string) *FieldError {
	for _, fe := range e {
		if fe.Field == field {
			return fe
		}
	}
	return nil
}

// KindOf returns the kind of the first FieldError wrapped in err.
func KindOf(err error) (Kind, bool) {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// AsErrors extracts the collected field errors from err.
func AsErrors(err error) (Errors, bool) {
	var errs Errors
	if errors.As(err, &errs) {
		return errs, true
	}
	var fe *FieldError
	if errors.As(err, &fe) {
		return Errors{fe}, true
	}
	return nil, false
}
