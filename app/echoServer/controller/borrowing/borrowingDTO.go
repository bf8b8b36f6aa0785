package borrowing

type CreateBorrowingReq struct {
	// Either book_id or book_title resolves the book; title lookups can
	// fail ambiguous.
	BookID             int64  `json:"book_id" validate:"omitempty,gt=0"`
	BookTitle          string `json:"book_title"`
	BorrowDate         string `json:"borrow_date" validate:"required"`
	ExpectedReturnDate string `json:"expected_return_date" validate:"required"`
}
