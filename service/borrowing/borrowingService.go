package borrowsvc

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olga-kim7/library-service/model"
	"github.com/olga-kim7/library-service/notify"
	bookrepo "github.com/olga-kim7/library-service/repository/book"
	borrowrepo "github.com/olga-kim7/library-service/repository/borrowing"
	striperepo "github.com/olga-kim7/library-service/repository/stripe"
	"github.com/olga-kim7/library-service/service/pricing"
)

// errors used by controllers

type ErrCode string

const (
	ErrValidation      ErrCode = "VALIDATION"
	ErrBookNotFound    ErrCode = "BOOK_NOT_FOUND"
	ErrMultipleBooks   ErrCode = "MULTIPLE_BOOKS"
	ErrOutOfStock      ErrCode = "OUT_OF_STOCK"
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrForbidden       ErrCode = "FORBIDDEN"
	ErrAlreadyReturned ErrCode = "ALREADY_RETURNED"
	ErrGateway         ErrCode = "GATEWAY"
)

type codedError struct {
	code  ErrCode
	cause error
}

func (e codedError) Error() string {
	if e.cause != nil {
		return string(e.code) + ": " + e.cause.Error()
	}
	return string(e.code)
}
func (e codedError) Code() ErrCode { return e.code }
func (e codedError) Unwrap() error { return e.cause }

func makeErr(c ErrCode) error            { return codedError{code: c} }
func wrapErr(c ErrCode, err error) error { return codedError{code: c, cause: err} }

// Code extracts error code
func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

// dto

type CreateInput struct {
	BookID             int64
	BookTitle          string
	BorrowDate         time.Time
	ExpectedReturnDate time.Time
}

type Created struct {
	BorrowingID int64   `json:"borrowing_id"`
	PaymentID   int64   `json:"payment_id"`
	Amount      float64 `json:"amount"`
	PaymentLink string  `json:"payment_link"`
}

type FineInfo struct {
	PaymentID   int64   `json:"payment_id"`
	Amount      float64 `json:"amount"`
	PaymentLink string  `json:"payment_link,omitempty"`
}

type ReturnResult struct {
	BorrowingID int64     `json:"borrowing_id"`
	ReturnedAt  time.Time `json:"returned_at"`
	Fine        *FineInfo `json:"fine,omitempty"`
}

// View is a borrowing plus its derived overdue state. Overdue is computed
// at read time, never persisted.
type View struct {
	model.Borrowing
	Overdue bool `json:"overdue"`
}

type Filter = borrowrepo.Filter

type Books interface {
	Detail(ctx context.Context, id int64) (*model.Book, error)
	FindByTitle(ctx context.Context, title string) (*model.Book, error)
}

type Users interface {
	ByID(ctx context.Context, id int64) (*model.User, error)
}

type Payments interface {
	SetSession(ctx context.Context, paymentID int64, url, sessionID string) (bool, error)
}

type Repo interface {
	CreateWithReservation(ctx context.Context, b *model.Borrowing, p *model.Payment) error
	GetByID(ctx context.Context, id int64) (*model.Borrowing, error)
	List(ctx context.Context, f Filter) ([]model.Borrowing, error)
	Return(ctx context.Context, borrowingID int64, returnedAt time.Time, fine *model.Payment) error
	Delete(ctx context.Context, id int64) error
}

type Service interface {
	// Create runs the REQUESTED -> RESERVED -> AWAITING_PAYMENT leg:
	// reserve a copy, persist the borrowing with its priced PENDING
	// payment, then open a checkout session.
	Create(ctx context.Context, userID int64, in CreateInput) (*Created, error)

	// Return closes a borrowing and releases its copy, invoicing a FINE
	// when past the expected return date.
	Return(ctx context.Context, callerID int64, role string, borrowingID int64, today time.Time) (*ReturnResult, error)

	List(ctx context.Context, callerID int64, role string, f Filter) ([]View, error)
	Get(ctx context.Context, callerID int64, role string, id int64) (*View, error)

	// Delete is an administrative correction: payments go with the
	// borrowing, inventory stays untouched.
	Delete(ctx context.Context, id int64) error
}

// ----- Service implementation -----

type service struct {
	r          Repo
	books      Books
	users      Users
	payments   Payments
	gateway    striperepo.Repo
	notifier   notify.Notifier
	log        *slog.Logger
	successURL string
	cancelURL  string
}

func New(r Repo, books Books, users Users, payments Payments, gateway striperepo.Repo, notifier notify.Notifier, log *slog.Logger, domain string) Service {
	return &service{
		r:          r,
		books:      books,
		users:      users,
		payments:   payments,
		gateway:    gateway,
		notifier:   notifier,
		log:        log,
		successURL: domain + "/success.html",
		cancelURL:  domain + "/cancel.html",
	}
}

func (s *service) Create(ctx context.Context, userID int64, in CreateInput) (*Created, error) {
	// Reject before any mutation.
	if !in.ExpectedReturnDate.After(in.BorrowDate) {
		return nil, makeErr(ErrValidation)
	}

	book, err := s.resolveBook(ctx, in)
	if err != nil {
		return nil, err
	}

	amount := pricing.PriceFor(in.BorrowDate, in.ExpectedReturnDate, book.DailyFee)

	b := &model.Borrowing{
		BorrowDate:         in.BorrowDate,
		ExpectedReturnDate: in.ExpectedReturnDate,
		BookID:             book.ID,
		UserID:             userID,
	}
	p := &model.Payment{
		Status: model.PaymentPending,
		Type:   model.TypePayment,
		Amount: amount,
	}

	// Reservation, borrowing and payment commit together or not at all.
	if err := s.r.CreateWithReservation(ctx, b, p); err != nil {
		switch {
		case errors.Is(err, bookrepo.ErrOutOfStock):
			return nil, wrapErr(ErrOutOfStock, err)
		case errors.Is(err, sql.ErrNoRows):
			return nil, wrapErr(ErrBookNotFound, err)
		default:
			return nil, err
		}
	}

	s.notifyNewBorrowing(ctx, userID)

	// The gateway round trip runs with no transaction open. A failure here
	// leaves the committed borrowing in place; the session can be retried
	// per payment.
	ref, err := s.gateway.OpenSession(ctx, "Payment for borrowing "+book.Title, amount, s.successURL, s.cancelURL)
	if err != nil {
		s.log.Error("checkout session failed", "payment_id", p.ID, "err", err)
		return nil, wrapErr(ErrGateway, err)
	}
	if _, err := s.payments.SetSession(ctx, p.ID, ref.URL, ref.ID); err != nil {
		// Session exists at the provider; the identifiers can be
		// recovered via the retry path.
		s.log.Error("persist session failed", "payment_id", p.ID, "err", err)
	}

	return &Created{
		BorrowingID: b.ID,
		PaymentID:   p.ID,
		Amount:      amount,
		PaymentLink: ref.URL,
	}, nil
}

func (s *service) resolveBook(ctx context.Context, in CreateInput) (*model.Book, error) {
	if in.BookID > 0 {
		book, err := s.books.Detail(ctx, in.BookID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, makeErr(ErrBookNotFound)
			}
			return nil, err
		}
		return book, nil
	}
	if in.BookTitle == "" {
		return nil, makeErr(ErrValidation)
	}
	book, err := s.books.FindByTitle(ctx, in.BookTitle)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, makeErr(ErrBookNotFound)
		case errors.Is(err, bookrepo.ErrMultiple):
			return nil, wrapErr(ErrMultipleBooks, err)
		default:
			return nil, err
		}
	}
	return book, nil
}

func (s *service) notifyNewBorrowing(ctx context.Context, userID int64) {
	who := fmt.Sprintf("user %d", userID)
	if u, err := s.users.ByID(ctx, userID); err == nil {
		who = u.Email
	}
	if err := s.notifier.Notify(ctx, "There is a new borrowing from "+who); err != nil {
		s.log.Warn("borrowing notification failed", "err", err)
	}
}

func (s *service) Return(ctx context.Context, callerID int64, role string, borrowingID int64, today time.Time) (*ReturnResult, error) {
	b, err := s.r.GetByID(ctx, borrowingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if b.UserID != callerID && role != model.RoleAdmin {
		return nil, makeErr(ErrForbidden)
	}

	// Overdue is a calendar-day question; expected_return_date is a plain
	// date while today carries a clock. FineFor settles it: a return later
	// the same day is still on time and must go through without a fine.
	var fine *model.Payment
	if today.After(b.ExpectedReturnDate) {
		book, err := s.books.Detail(ctx, b.BookID)
		if err != nil {
			return nil, err
		}
		switch amount, err := pricing.FineFor(b.ExpectedReturnDate, today, book.DailyFee); {
		case errors.Is(err, pricing.ErrNotOverdue):
			// Due date, just past midnight; no fine.
		case err != nil:
			return nil, err
		default:
			fine = &model.Payment{
				Status: model.PaymentPending,
				Type:   model.TypeFine,
				Amount: amount,
			}
		}
	}

	if err := s.r.Return(ctx, borrowingID, today, fine); err != nil {
		switch {
		case errors.Is(err, borrowrepo.ErrAlreadyReturned):
			return nil, wrapErr(ErrAlreadyReturned, err)
		case errors.Is(err, sql.ErrNoRows):
			return nil, makeErr(ErrNotFound)
		default:
			return nil, err
		}
	}

	res := &ReturnResult{BorrowingID: borrowingID, ReturnedAt: today}
	if fine != nil {
		res.Fine = &FineInfo{PaymentID: fine.ID, Amount: fine.Amount}
		// The return has already succeeded; the fine stays an
		// outstanding PENDING payment if the session cannot be opened.
		ref, err := s.gateway.OpenSession(ctx, "Overdue fine", fine.Amount, s.successURL, s.cancelURL)
		if err != nil {
			s.log.Error("fine session failed", "payment_id", fine.ID, "err", err)
		} else {
			if _, err := s.payments.SetSession(ctx, fine.ID, ref.URL, ref.ID); err != nil {
				s.log.Error("persist fine session failed", "payment_id", fine.ID, "err", err)
			}
			res.Fine.PaymentLink = ref.URL
		}
	}
	return res, nil
}

func (s *service) List(ctx context.Context, callerID int64, role string, f Filter) ([]View, error) {
	if role != model.RoleAdmin {
		if f.UserID != nil && *f.UserID != callerID {
			return nil, makeErr(ErrForbidden)
		}
		f.UserID = &callerID
	}
	rows, err := s.r.List(ctx, f)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	out := make([]View, 0, len(rows))
	for _, b := range rows {
		out = append(out, View{Borrowing: b, Overdue: b.OverdueAt(now)})
	}
	return out, nil
}

func (s *service) Get(ctx context.Context, callerID int64, role string, id int64) (*View, error) {
	b, err := s.r.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if b.UserID != callerID && role != model.RoleAdmin {
		return nil, makeErr(ErrForbidden)
	}
	return &View{Borrowing: *b, Overdue: b.OverdueAt(time.Now().UTC())}, nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	if err := s.r.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return makeErr(ErrNotFound)
		}
		return err
	}
	return nil
}
