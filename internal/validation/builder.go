package validation

import (
	"math"
	"strings"

	"paytrack/internal/domain"

	"github.com/go-playground/validator/v10"
)

// RawPayment is an untrusted payment as received from an API request or an
// import row. Numeric and timestamp fields are loosely typed so callers can
// hand over JSON numbers, numeric strings or spreadsheet cells unchanged.
type RawPayment struct {
	TransactionID        string  `json:"transaction_id"`
	PayeeFirstName       string  `json:"payee_first_name"`
	PayeeLastName        string  `json:"payee_last_name"`
	PayeePaymentStatus   string  `json:"payee_payment_status"`
	PayeeAddedDateUTC    any     `json:"payee_added_date_utc"`
	PayeeDueDate         string  `json:"payee_due_date"`
	PayeeAddressLine1    string  `json:"payee_address_line_1"`
	PayeeAddressLine2    *string `json:"payee_address_line_2"`
	PayeeCity            string  `json:"payee_city"`
	PayeeCountry         string  `json:"payee_country"`
	PayeeProvinceOrState *string `json:"payee_province_or_state"`
	PayeePostalCode      string  `json:"payee_postal_code"`
	PayeePhoneNumber     string  `json:"payee_phone_number"`
	PayeeEmail           string  `json:"payee_email"`
	Currency             string  `json:"currency"`
	DiscountPercent      any     `json:"discount_percent"`
	TaxPercent           any     `json:"tax_percent"`
	DueAmount            any     `json:"due_amount"`

	// TotalDue is accepted for wire compatibility and always ignored.
	TotalDue any `json:"total_due,omitempty"`
}

type Builder struct {
	countries  CountryTable
	currencies CurrencyTable
	phones     PhoneService
	emails     emailChecker
}

func NewBuilder(countries CountryTable, currencies CurrencyTable, phones PhoneService) *Builder {
	return &Builder{
		countries:  countries,
		currencies: currencies,
		phones:     phones,
		emails:     newISOTables(validator.New()),
	}
}

// NewDefaultBuilder wires the bundled ISO tables and libphonenumber.
func NewDefaultBuilder() *Builder {
	tables := newISOTables(validator.New())
	return &Builder{
		countries:  tables,
		currencies: tables,
		phones:     libPhoneNumbers{},
		emails:     tables,
	}
}

// ValidateAndNormalize checks every field of raw independently and returns
// either a normalized payment with TotalDue derived, or Errors listing every
// rejected field.
func (b *Builder) ValidateAndNormalize(raw RawPayment) (domain.Payment, error) {
	var (
		p    domain.Payment
		errs Errors
	)
	collect := func(fe *FieldError) {
		if fe != nil {
			errs = append(errs, fe)
		}
	}

	var fe *FieldError

	p.TransactionID = strings.TrimSpace(raw.TransactionID)
	p.PayeeFirstName, fe = RequireText("payee_first_name", raw.PayeeFirstName)
	collect(fe)
	p.PayeeLastName, fe = RequireText("payee_last_name", raw.PayeeLastName)
	collect(fe)
	p.PayeePaymentStatus, fe = ValidateStatus("payee_payment_status", raw.PayeePaymentStatus)
	collect(fe)
	p.PayeeAddedDateUTC, fe = ParseTimestamp("payee_added_date_utc", raw.PayeeAddedDateUTC)
	collect(fe)
	p.PayeeDueDate, fe = ParseDueDate("payee_due_date", raw.PayeeDueDate)
	collect(fe)

	p.PayeeAddressLine1, fe = RequireText("payee_address_line_1", raw.PayeeAddressLine1)
	collect(fe)
	p.PayeeAddressLine2 = OptionalText(raw.PayeeAddressLine2)
	p.PayeeCity, fe = RequireText("payee_city", raw.PayeeCity)
	collect(fe)
	p.PayeeProvinceOrState = OptionalText(raw.PayeeProvinceOrState)
	p.PayeePostalCode, fe = RequireText("payee_postal_code", raw.PayeePostalCode)
	collect(fe)

	p.PayeeCountry, fe = ValidateCountry(b.countries, "payee_country", raw.PayeeCountry)
	collect(fe)
	p.PayeePhoneNumber, fe = ValidatePhone(b.phones, "payee_phone_number", raw.PayeePhoneNumber)
	collect(fe)
	p.PayeeEmail, fe = ValidateEmail(b.emails, "payee_email", raw.PayeeEmail)
	collect(fe)
	p.Currency, fe = ValidateCurrency(b.currencies, "currency", raw.Currency)
	collect(fe)

	if v, fe := ToNumber("discount_percent", raw.DiscountPercent); fe != nil {
		collect(fe)
	} else {
		p.DiscountPercent, fe = ValidatePercent("discount_percent", v)
		collect(fe)
	}
	if v, fe := ToNumber("tax_percent", raw.TaxPercent); fe != nil {
		collect(fe)
	} else {
		p.TaxPercent, fe = ValidatePercent("tax_percent", v)
		collect(fe)
	}
	if v, fe := ToNumber("due_amount", raw.DueAmount); fe != nil {
		collect(fe)
	} else {
		p.DueAmount, fe = ValidateAmount("due_amount", v)
		collect(fe)
	}

	if len(errs) > 0 {
		return domain.Payment{}, errs
	}

	p.RecomputeTotalDue()
	if math.Abs(p.TotalDue) >= domain.MaxAmount {
		return domain.Payment{}, Errors{tooLarge("total_due", p.TotalDue)}
	}
	return p, nil
}
