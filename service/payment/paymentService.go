package paymentsvc

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/olga-kim7/library-service/model"
	striperepo "github.com/olga-kim7/library-service/repository/stripe"
)

type ErrCode string

const (
	ErrNotFound   ErrCode = "NOT_FOUND"
	ErrForbidden  ErrCode = "FORBIDDEN"
	ErrNotPending ErrCode = "NOT_PENDING"
	ErrGateway    ErrCode = "GATEWAY"
	ErrBadEvent   ErrCode = "BAD_EVENT"
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

func Code(err error) ErrCode {
	var ce interface{ Code() ErrCode }
	if errors.As(err, &ce) {
		return ce.Code()
	}
	return ""
}

type Repo interface {
	GetByID(ctx context.Context, id int64) (*model.Payment, error)
	GetWithOwner(ctx context.Context, id int64) (*model.Payment, int64, error)
	List(ctx context.Context, userID *int64) ([]model.Payment, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.Payment, error)
	SetSession(ctx context.Context, paymentID int64, url, sessionID string) (bool, error)
	MarkPaid(ctx context.Context, paymentID int64) (bool, error)
}

type Service interface {
	// MarkPaid is the AWAITING_PAYMENT -> ACTIVE confirmation. Replays of
	// the same confirmation are no-ops: the payment is returned as-is and
	// no side effects run twice.
	MarkPaid(ctx context.Context, callerID int64, role string, paymentID int64) (*model.Payment, error)

	// HandleWebhook verifies and applies a checkout-completion callback.
	HandleWebhook(ctx context.Context, sigHeader string, raw []byte) error

	// RetrySession re-creates a checkout session for a payment whose
	// session was never stored. Idempotent per payment: an existing
	// session is returned unchanged.
	RetrySession(ctx context.Context, callerID int64, role string, paymentID int64) (*model.Payment, error)

	List(ctx context.Context, callerID int64, role string) ([]model.Payment, error)
	Get(ctx context.Context, callerID int64, role string, id int64) (*model.Payment, error)
}

type service struct {
	r          Repo
	gateway    striperepo.Repo
	log        *slog.Logger
	successURL string
	cancelURL  string
}

func New(r Repo, gateway striperepo.Repo, log *slog.Logger, domain string) Service {
	return &service{
		r:          r,
		gateway:    gateway,
		log:        log,
		successURL: domain + "/success.html",
		cancelURL:  domain + "/cancel.html",
	}
}

func (s *service) MarkPaid(ctx context.Context, callerID int64, role string, paymentID int64) (*model.Payment, error) {
	p, ownerID, err := s.r.GetWithOwner(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if ownerID != callerID && role != model.RoleAdmin {
		return nil, makeErr(ErrForbidden)
	}

	applied, err := s.r.MarkPaid(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if !applied {
		// Replayed confirmation; already PAID.
		return p, nil
	}
	return s.r.GetByID(ctx, paymentID)
}

func (s *service) HandleWebhook(ctx context.Context, sigHeader string, raw []byte) error {
	ev, err := s.gateway.VerifyWebhook(raw, sigHeader)
	if err != nil {
		return wrapErr(ErrBadEvent, err)
	}
	if ev.Type != "checkout.session.completed" {
		return nil
	}
	if ev.SessionID == "" {
		return makeErr(ErrBadEvent)
	}

	p, err := s.r.FindBySessionID(ctx, ev.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Not one of ours. Acknowledge it so the provider stops
			// retrying a callback we can never apply.
			s.log.Warn("webhook for unknown session ignored", "session_id", ev.SessionID)
			return nil
		}
		return err
	}

	applied, err := s.r.MarkPaid(ctx, p.ID)
	if err != nil {
		return err
	}
	if !applied {
		s.log.Info("webhook replay ignored", "payment_id", p.ID)
	}
	return nil
}

func (s *service) RetrySession(ctx context.Context, callerID int64, role string, paymentID int64) (*model.Payment, error) {
	p, ownerID, err := s.r.GetWithOwner(ctx, paymentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if ownerID != callerID && role != model.RoleAdmin {
		return nil, makeErr(ErrForbidden)
	}
	if p.Status != model.PaymentPending {
		return nil, makeErr(ErrNotPending)
	}
	if p.SessionID != nil {
		return p, nil
	}

	desc := "Payment for borrowing"
	if p.Type == model.TypeFine {
		desc = "Overdue fine"
	}
	ref, err := s.gateway.OpenSession(ctx, desc, p.Amount, s.successURL, s.cancelURL)
	if err != nil {
		return nil, wrapErr(ErrGateway, err)
	}

	applied, err := s.r.SetSession(ctx, paymentID, ref.URL, ref.ID)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Lost the race to a concurrent retry; the stored session wins.
		s.log.Info("session retry raced, keeping stored session", "payment_id", paymentID)
	}
	return s.r.GetByID(ctx, paymentID)
}

func (s *service) List(ctx context.Context, callerID int64, role string) ([]model.Payment, error) {
	if role == model.RoleAdmin {
		return s.r.List(ctx, nil)
	}
	return s.r.List(ctx, &callerID)
}

func (s *service) Get(ctx context.Context, callerID int64, role string, id int64) (*model.Payment, error) {
	p, ownerID, err := s.r.GetWithOwner(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, makeErr(ErrNotFound)
		}
		return nil, err
	}
	if ownerID != callerID && role != model.RoleAdmin {
		return nil, makeErr(ErrForbidden)
	}
	return p, nil
}
