package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

// CountryTable answers whether a code is an ISO 3166-1 alpha-2 country.
type CountryTable interface {
	IsValidCountry(code string) bool
}

// CurrencyTable answers whether a code is an ISO 4217 alpha-3 currency.
type CurrencyTable interface {
	IsValidCurrency(code string) bool
}

// PhoneService parses a phone number and formats it as E.164.
type PhoneService interface {
	ParseAndNormalize(raw string) (string, error)
}

var ErrInvalidPhone = errors.New("invalid phone number")

// isoTables checks codes against the ISO tables bundled with the validator
// package. A single *validator.Validate is safe for concurrent use.
type isoTables struct {
	v *validator.Validate
}

func newISOTables(v *validator.Validate) *isoTables {
	return &isoTables{v: v}
}

func (t *isoTables) IsValidCountry(code string) bool {
	return code != "" && t.v.Var(code, "iso3166_1_alpha2") == nil
}

func (t *isoTables) IsValidCurrency(code string) bool {
	return code != "" && t.v.Var(code, "iso4217") == nil
}

func (t *isoTables) IsValidEmail(addr string) bool {
	return addr != "" && t.v.Var(addr, "email") == nil
}

// libPhoneNumbers is backed by the libphonenumber metadata.
type libPhoneNumbers struct{}

func (libPhoneNumbers) ParseAndNormalize(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, "")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %s is not valid for its region", ErrInvalidPhone, strings.TrimSpace(raw))
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
