// model/borrowing.go
package model

import "time"

// DateOnly is the wire format for borrow/return dates.
const DateOnly = "2006-01-02"

type Borrowing struct {
	ID                 int64      `json:"id"`
	BorrowDate         time.Time  `json:"borrow_date"`
	ExpectedReturnDate time.Time  `json:"expected_return_date"`
	ActualReturnDate   *time.Time `json:"actual_return_date,omitempty"`
	BookID             int64      `json:"book_id"`
	UserID             int64      `json:"user_id"`
}

// Open reports whether the borrowing is still outstanding.
func (b Borrowing) Open() bool { return b.ActualReturnDate == nil }

// OverdueAt reports the derived overdue state: past the expected return
// date with no actual return recorded. Never stored.
func (b Borrowing) OverdueAt(asOf time.Time) bool {
	return b.Open() && b.ExpectedReturnDate.Before(asOf)
}
