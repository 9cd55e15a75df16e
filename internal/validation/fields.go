package validation

import (
	"math"
	"strings"
	"time"

	"paytrack/internal/domain"

	"github.com/spf13/cast"
)

// HumanDateTimeLayout is how bulk imports render epoch timestamps.
const HumanDateTimeLayout = "Jan 02, 2006, 03:04 PM"

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	HumanDateTimeLayout,
}

func ValidateCountry(table CountryTable, field, code string) (string, *FieldError) {
	if code == "" {
		return "", missing(field)
	}
	if !table.IsValidCountry(code) {
		return "", newFieldError(field, InvalidCountryCode, "%s is not a valid ISO 3166-1 alpha-2 country code", code)
	}
	return code, nil
}

func ValidateCurrency(table CurrencyTable, field, code string) (string, *FieldError) {
	if code == "" {
		return "", missing(field)
	}
	if !table.IsValidCurrency(code) {
		return "", newFieldError(field, InvalidCurrencyCode, "%s is not a valid ISO 4217 currency code", code)
	}
	return code, nil
}

// ValidatePhone returns the E.164 form of raw. A missing leading plus is
// inferred before parsing.
func ValidatePhone(svc PhoneService, field, raw string) (string, *FieldError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", missing(field)
	}
	if !strings.HasPrefix(raw, "+") {
		raw = "+" + raw
	}
	normalized, err := svc.ParseAndNormalize(raw)
	if err != nil {
		return "", newFieldError(field, InvalidPhoneNumber, "%s is not a valid phone number", raw)
	}
	return normalized, nil
}

type emailChecker interface {
	IsValidEmail(addr string) bool
}

func ValidateEmail(checker emailChecker, field, raw string) (string, *FieldError) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", missing(field)
	}
	if !checker.IsValidEmail(raw) {
		return "", newFieldError(field, InvalidEmail, "%s is not a valid email address", raw)
	}
	return raw, nil
}

func RequireText(field, v string) (string, *FieldError) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", missing(field)
	}
	return v, nil
}

// OptionalText trims v and maps blank values to nil.
func OptionalText(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	if t == "" {
		return nil
	}
	return &t
}

func ValidateStatus(field, v string) (domain.PaymentStatus, *FieldError) {
	v = strings.TrimSpace(v)
	if v == "" {
		return domain.StatusPending, nil
	}
	s := domain.PaymentStatus(strings.ToLower(v))
	if !s.Valid() {
		return "", newFieldError(field, InvalidStatus, "%s is not one of completed, due_now, overdue, pending", v)
	}
	return s, nil
}

// ToNumber coerces a loosely typed input into a finite float. Nil and blank
// strings mean "unset"; NaN and infinities are rejected.
func ToNumber(field string, v any) (*float64, *FieldError) {
	if v == nil {
		return nil, nil
	}
	if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, newFieldError(field, InvalidAmount, "%v is not a number", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, newFieldError(field, InvalidAmount, "%v is not a finite number", v)
	}
	return &f, nil
}

// RoundPercent rounds to 2 decimal places; nil passes through.
func RoundPercent(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := domain.Round2(*v)
	return &r
}

// ValidatePercent rounds v, checks it lies in [0,100] and defaults unset
// values to 0.
func ValidatePercent(field string, v *float64) (float64, *FieldError) {
	v = RoundPercent(v)
	if v == nil {
		return 0, nil
	}
	if *v < 0 || *v > 100 {
		return 0, newFieldError(field, OutOfRangePercentage, "%v is outside the range [0, 100]", *v)
	}
	return *v, nil
}

func ValidateAmount(field string, v *float64) (float64, *FieldError) {
	v = RoundPercent(v)
	if v == nil {
		return 0, missing(field)
	}
	if *v < 0 {
		return 0, newFieldError(field, InvalidAmount, "%v must not be negative", *v)
	}
	if *v >= domain.MaxAmount {
		return 0, tooLarge(field, *v)
	}
	return *v, nil
}

// ParseTimestamp accepts RFC 3339, naive ISO date-times (read as UTC), the
// import display layout and epoch seconds.
func ParseTimestamp(field string, v any) (time.Time, *FieldError) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, missing(field)
	case time.Time:
		if t.IsZero() {
			return time.Time{}, missing(field)
		}
		return t.UTC(), nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, missing(field)
		}
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed.UTC(), nil
			}
		}
		if secs, err := cast.ToInt64E(s); err == nil {
			return time.Unix(secs, 0).UTC(), nil
		}
		return time.Time{}, newFieldError(field, InvalidDate, "%s is not a recognised date-time", s)
	default:
		secs, err := cast.ToInt64E(v)
		if err != nil {
			return time.Time{}, newFieldError(field, InvalidDate, "%v is not a recognised date-time", v)
		}
		return time.Unix(secs, 0).UTC(), nil
	}
}

// ParseDueDate accepts YYYY-MM-DD, or a full timestamp whose date part is
// used as is.
func ParseDueDate(field, v string) (domain.Date, *FieldError) {
	v = strings.TrimSpace(v)
	if v == "" {
		return domain.Date{}, missing(field)
	}
	if d, err := domain.ParseDate(v); err == nil {
		return d, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return domain.DateOf(t), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", v); err == nil {
		return domain.DateOf(t), nil
	}
	return domain.Date{}, newFieldError(field, InvalidDate, "%s must be YYYY-MM-DD", v)
}

func tooLarge(field string, v float64) *FieldError {
	return newFieldError(field, InvalidAmount, "%.2f must be less than %.0f", v, domain.MaxAmount)
}

func missing(field string) *FieldError {
	return newFieldError(field, MissingRequiredField, "%s is required", field)
}
