// Package pricing computes amounts due for borrowings. Amounts are always
// derived from the borrowing dates and the book's daily fee, never stored
// input.
package pricing

import (
	"errors"
	"time"
)

var ErrNotOverdue = errors.New("borrowing is not overdue")

// PriceFor is the rental fee: the day count is inclusive, so a same-day
// rental costs one day's fee, never zero.
func PriceFor(borrowDate, expectedReturn time.Time, dailyFee float64) float64 {
	days := daysBetween(borrowDate, expectedReturn) + 1
	return float64(days) * dailyFee
}

// FineFor is the overdue surcharge: one daily fee per day past the
// expected return date. Only valid when asOf is past the expected date.
func FineFor(expectedReturn, asOf time.Time, dailyFee float64) (float64, error) {
	days := daysBetween(expectedReturn, asOf)
	if days <= 0 {
		return 0, ErrNotOverdue
	}
	return float64(days) * dailyFee, nil
}

// daysBetween counts whole calendar days from a to b, ignoring the
// time-of-day component.
func daysBetween(a, b time.Time) int {
	ad := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bd := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bd.Sub(ad) / (24 * time.Hour))
}
