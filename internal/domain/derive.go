package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// MaxAmount is the exclusive upper bound of a stored money value
// (NUMERIC(14,2) holds at most 12 integer digits).
const MaxAmount = 1e12

// ComputeTotalDue is the only place total_due is calculated:
// due - due*discount/100 + due*tax/100, rounded to 2 decimal places.
// Non-finite inputs yield a non-finite result instead of a panic.
func ComputeTotalDue(dueAmount, discountPercent, taxPercent float64) float64 {
	if !isFinite(dueAmount) || !isFinite(discountPercent) || !isFinite(taxPercent) {
		return dueAmount - dueAmount*discountPercent/100 + dueAmount*taxPercent/100
	}

	due := decimal.NewFromFloat(dueAmount)
	discount := due.Mul(decimal.NewFromFloat(discountPercent)).Div(hundred)
	tax := due.Mul(decimal.NewFromFloat(taxPercent)).Div(hundred)

	total, _ := due.Sub(discount).Add(tax).Round(2).Float64()
	return total
}

// Round2 rounds v to 2 decimal places on its shortest decimal form, with
// halves going away from zero: 0.125 becomes 0.13, not 0.12 as banker's
// rounding on the binary float would give. NaN and infinities are returned
// unchanged.
func Round2(v float64) float64 {
	if !isFinite(v) {
		return v
	}
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// DeriveDisplayStatus computes the status shown to readers. A due date equal
// to today reads as due_now, a past one as overdue; anything else keeps the
// stored status. Completed payments are never downgraded.
func DeriveDisplayStatus(stored PaymentStatus, due Date, today Date) PaymentStatus {
	if stored == StatusCompleted || due.IsZero() {
		return stored
	}
	switch {
	case due == today:
		return StatusDueNow
	case due.Before(today):
		return StatusOverdue
	default:
		return stored
	}
}
