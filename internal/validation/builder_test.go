package validation

import (
	"errors"
	"testing"
	"time"

	"paytrack/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func validRaw() RawPayment {
	return RawPayment{
		PayeeFirstName:       "Ada",
		PayeeLastName:        "Lovelace",
		PayeePaymentStatus:   "pending",
		PayeeAddedDateUTC:    "2024-05-01T10:30:00Z",
		PayeeDueDate:         "2024-06-01",
		PayeeAddressLine1:    "1 Main Street",
		PayeeAddressLine2:    strPtr("  "),
		PayeeCity:            "San Francisco",
		PayeeCountry:         "US",
		PayeeProvinceOrState: strPtr("CA"),
		PayeePostalCode:      "94105",
		PayeePhoneNumber:     "14155552671",
		PayeeEmail:           "ada@example.com",
		Currency:             "USD",
		DiscountPercent:      10.0,
		TaxPercent:           "5",
		DueAmount:            100.0,
	}
}

func TestBuilder_ValidRecord(t *testing.T) {
	b := NewDefaultBuilder()

	p, err := b.ValidateAndNormalize(validRaw())
	require.NoError(t, err)

	assert.Equal(t, "Ada", p.PayeeFirstName)
	assert.Equal(t, domain.StatusPending, p.PayeePaymentStatus)
	assert.Equal(t, time.Date(2024, time.May, 1, 10, 30, 0, 0, time.UTC), p.PayeeAddedDateUTC)
	assert.Equal(t, domain.Date{Year: 2024, Month: time.June, Day: 1}, p.PayeeDueDate)
	assert.Nil(t, p.PayeeAddressLine2)
	require.NotNil(t, p.PayeeProvinceOrState)
	assert.Equal(t, "CA", *p.PayeeProvinceOrState)
	assert.Equal(t, "+14155552671", p.PayeePhoneNumber)
	assert.Equal(t, "US", p.PayeeCountry)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, 95.0, p.TotalDue)
}

func TestBuilder_IgnoresClientTotalDue(t *testing.T) {
	raw := validRaw()
	raw.TotalDue = 1.0

	p, err := NewDefaultBuilder().ValidateAndNormalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 95.0, p.TotalDue)
}

func TestBuilder_RoundsAndDefaults(t *testing.T) {
	raw := validRaw()
	raw.DiscountPercent = nil
	raw.TaxPercent = ""
	raw.DueAmount = "19.999"

	p, err := NewDefaultBuilder().ValidateAndNormalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.DiscountPercent)
	assert.Equal(t, 0.0, p.TaxPercent)
	assert.Equal(t, 20.0, p.DueAmount)
	assert.Equal(t, 20.0, p.TotalDue)
}

func TestBuilder_RoundsBeforeRangeCheck(t *testing.T) {
	raw := validRaw()
	raw.DiscountPercent = 100.004

	p, err := NewDefaultBuilder().ValidateAndNormalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 100.0, p.DiscountPercent)
}

func TestBuilder_CollectsAllErrors(t *testing.T) {
	raw := validRaw()
	raw.PayeeFirstName = ""
	raw.PayeeCountry = "XX"
	raw.Currency = "ZZZ"
	raw.PayeePhoneNumber = "call me maybe"
	raw.PayeeEmail = "not-an-email"
	raw.TaxPercent = 150.0
	raw.PayeePaymentStatus = "lost"

	_, err := NewDefaultBuilder().ValidateAndNormalize(raw)
	require.Error(t, err)

	errs, ok := AsErrors(err)
	require.True(t, ok)
	assert.ElementsMatch(t, []Kind{
		MissingRequiredField,
		InvalidCountryCode,
		InvalidCurrencyCode,
		InvalidPhoneNumber,
		InvalidEmail,
		OutOfRangePercentage,
		InvalidStatus,
	}, errs.Kinds())

	fe := errs.ForField("payee_country")
	require.NotNil(t, fe)
	assert.Equal(t, InvalidCountryCode, fe.Kind)

	var target *FieldError
	assert.True(t, errors.As(err, &target))
}

func TestBuilder_MissingFields(t *testing.T) {
	_, err := NewDefaultBuilder().ValidateAndNormalize(RawPayment{})
	errs, ok := AsErrors(err)
	require.True(t, ok)

	for _, field := range []string{
		"payee_first_name", "payee_last_name", "payee_added_date_utc", "payee_due_date",
		"payee_address_line_1", "payee_city", "payee_postal_code", "payee_country",
		"payee_phone_number", "payee_email", "currency", "due_amount",
	} {
		fe := errs.ForField(field)
		if assert.NotNil(t, fe, field) {
			assert.Equal(t, MissingRequiredField, fe.Kind, field)
		}
	}
	assert.Nil(t, errs.ForField("payee_payment_status"), "status defaults to pending")
}

func TestBuilder_UsesInjectedReferenceData(t *testing.T) {
	b := NewBuilder(
		stubCountries{"ZZ": true},
		stubCurrencies{"ABC": true},
		stubPhones{"+1": "+100"},
	)
	raw := validRaw()
	raw.PayeeCountry = "ZZ"
	raw.Currency = "ABC"
	raw.PayeePhoneNumber = "1"

	p, err := b.ValidateAndNormalize(raw)
	require.NoError(t, err)
	assert.Equal(t, "ZZ", p.PayeeCountry)
	assert.Equal(t, "ABC", p.Currency)
	assert.Equal(t, "+100", p.PayeePhoneNumber)
}

func TestBuilder_NonNumericAmount(t *testing.T) {
	raw := validRaw()
	raw.DueAmount = "ten dollars"

	_, err := NewDefaultBuilder().ValidateAndNormalize(raw)
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, InvalidAmount, kind)
}

func TestBuilder_NonFiniteNumbers(t *testing.T) {
	b := NewDefaultBuilder()

	for _, v := range []string{"NaN", "Inf", "-Inf", "+Inf", "infinity"} {
		t.Run(v, func(t *testing.T) {
			raw := validRaw()
			raw.DiscountPercent = v
			raw.TaxPercent = v
			raw.DueAmount = v

			var err error
			require.NotPanics(t, func() {
				_, err = b.ValidateAndNormalize(raw)
			})

			errs, ok := AsErrors(err)
			require.True(t, ok, "expected field errors, got %v", err)
			for _, field := range []string{"discount_percent", "tax_percent", "due_amount"} {
				fe := errs.ForField(field)
				if assert.NotNil(t, fe, field) {
					assert.Equal(t, InvalidAmount, fe.Kind, field)
				}
			}
		})
	}
}

func TestBuilder_AmountLimit(t *testing.T) {
	b := NewDefaultBuilder()

	raw := validRaw()
	raw.DiscountPercent = 0
	raw.TaxPercent = 0
	raw.DueAmount = "999999999999.99"
	p, err := b.ValidateAndNormalize(raw)
	require.NoError(t, err)
	assert.Equal(t, 999999999999.99, p.TotalDue)

	raw.DueAmount = 1e13
	_, err = b.ValidateAndNormalize(raw)
	errs, ok := AsErrors(err)
	require.True(t, ok)
	fe := errs.ForField("due_amount")
	require.NotNil(t, fe)
	assert.Equal(t, InvalidAmount, fe.Kind)

	raw.DueAmount = "900000000000"
	raw.TaxPercent = 20
	_, err = b.ValidateAndNormalize(raw)
	errs, ok = AsErrors(err)
	require.True(t, ok)
	fe = errs.ForField("total_due")
	require.NotNil(t, fe)
	assert.Equal(t, InvalidAmount, fe.Kind)
}

type stubCountries map[string]bool

func (s stubCountries) IsValidCountry(code string) bool { return s[code] }

type stubCurrencies map[string]bool

func (s stubCurrencies) IsValidCurrency(code string) bool { return s[code] }

type stubPhones map[string]string

func (s stubPhones) ParseAndNormalize(raw string) (string, error) {
	if v, ok := s[raw]; ok {
		return v, nil
	}
	return "", ErrInvalidPhone
}
