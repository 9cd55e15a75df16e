package domain

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPaymentLocked    = errors.New("overdue payments cannot be edited")
	ErrUnsupportedMedia = errors.New("unsupported evidence file type")
	ErrEmptyFile        = errors.New("evidence file is empty")
)

type PaymentStatus string

const (
	StatusCompleted PaymentStatus = "completed"
	StatusDueNow    PaymentStatus = "due_now"
	StatusOverdue   PaymentStatus = "overdue"
	StatusPending   PaymentStatus = "pending"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusCompleted, StatusDueNow, StatusOverdue, StatusPending:
		return true
	}
	return false
}

// Payment is a validated and normalized payment record. TotalDue is always
// derived from DueAmount, DiscountPercent and TaxPercent.
type Payment struct {
	ID            string `json:"id"`
	TransactionID string `json:"transaction_id"`

	PayeeFirstName     string        `json:"payee_first_name"`
	PayeeLastName      string        `json:"payee_last_name"`
	PayeePaymentStatus PaymentStatus `json:"payee_payment_status"`
	PayeeAddedDateUTC  time.Time     `json:"payee_added_date_utc"`
	PayeeDueDate       Date          `json:"payee_due_date"`

	PayeeAddressLine1    string  `json:"payee_address_line_1"`
	PayeeAddressLine2    *string `json:"payee_address_line_2"`
	PayeeCity            string  `json:"payee_city"`
	PayeeCountry         string  `json:"payee_country"`
	PayeeProvinceOrState *string `json:"payee_province_or_state"`
	PayeePostalCode      string  `json:"payee_postal_code"`
	PayeePhoneNumber     string  `json:"payee_phone_number"`
	PayeeEmail           string  `json:"payee_email"`

	Currency        string  `json:"currency"`
	DiscountPercent float64 `json:"discount_percent"`
	TaxPercent      float64 `json:"tax_percent"`
	DueAmount       float64 `json:"due_amount"`
	TotalDue        float64 `json:"total_due"`

	Evidence *EvidenceFile `json:"evidence,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecomputeTotalDue overwrites TotalDue from the canonical inputs.
func (p *Payment) RecomputeTotalDue() {
	p.TotalDue = ComputeTotalDue(p.DueAmount, p.DiscountPercent, p.TaxPercent)
}

// WithDisplayStatus returns a copy whose status is derived for presentation
// on the given day.
func (p Payment) WithDisplayStatus(today Date) Payment {
	p.PayeePaymentStatus = DeriveDisplayStatus(p.PayeePaymentStatus, p.PayeeDueDate, today)
	return p
}

type EvidenceFile struct {
	ID          string    `json:"id"`
	PaymentID   string    `json:"payment_id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"-"`
	UploadedAt  time.Time `json:"uploaded_at"`
}
