// repository/payment/paymentRepository.go
package paymentrepo

import (
	"context"
	"database/sql"

	"github.com/olga-kim7/library-service/model"
)

type Repo interface {
	GetByID(ctx context.Context, id int64) (*model.Payment, error)

	// GetWithOwner also resolves the borrowing's user for ownership checks.
	GetWithOwner(ctx context.Context, id int64) (*model.Payment, int64, error)

	List(ctx context.Context, userID *int64) ([]model.Payment, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.Payment, error)

	// SetSession stores checkout identifiers only when none are recorded
	// yet, so concurrent session retries cannot clobber each other.
	// Reports whether the update applied.
	SetSession(ctx context.Context, paymentID int64, url, sessionID string) (bool, error)

	// MarkPaid flips PENDING to PAID. A replay on an already-PAID payment
	// reports applied=false with no error; an unknown id is sql.ErrNoRows.
	MarkPaid(ctx context.Context, paymentID int64) (bool, error)
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

const cols = `id, status, type, borrowing_id, session_url, session_id, amount, created_at`

func scanPayment(row interface{ Scan(...any) error }, p *model.Payment) error {
	return row.Scan(&p.ID, &p.Status, &p.Type, &p.BorrowingID, &p.SessionURL, &p.SessionID, &p.Amount, &p.CreatedAt)
}

func (r *repo) GetByID(ctx context.Context, id int64) (*model.Payment, error) {
	var p model.Payment
	err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+cols+` FROM payments WHERE id = $1`, id), &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) GetWithOwner(ctx context.Context, id int64) (*model.Payment, int64, error) {
	const q = `
		SELECT p.id, p.status, p.type, p.borrowing_id, p.session_url, p.session_id,
		       p.amount, p.created_at, b.user_id
		FROM payments p
		JOIN borrowings b ON b.id = p.borrowing_id
		WHERE p.id = $1`
	var p model.Payment
	var ownerID int64
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&p.ID, &p.Status, &p.Type, &p.BorrowingID, &p.SessionURL, &p.SessionID,
		&p.Amount, &p.CreatedAt, &ownerID,
	)
	if err != nil {
		return nil, 0, err
	}
	return &p, ownerID, nil
}

func (r *repo) List(ctx context.Context, userID *int64) ([]model.Payment, error) {
	const q = `
		SELECT p.id, p.status, p.type, p.borrowing_id, p.session_url, p.session_id,
		       p.amount, p.created_at
		FROM payments p
		JOIN borrowings b ON b.id = p.borrowing_id
		WHERE ($1::BIGINT IS NULL OR b.user_id = $1)
		ORDER BY p.id DESC`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Payment
	for rows.Next() {
		var p model.Payment
		if err := scanPayment(rows, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) FindBySessionID(ctx context.Context, sessionID string) (*model.Payment, error) {
	var p model.Payment
	err := scanPayment(r.db.QueryRowContext(ctx,
		`SELECT `+cols+` FROM payments WHERE session_id = $1`, sessionID), &p)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repo) SetSession(ctx context.Context, paymentID int64, url, sessionID string) (bool, error) {
	const q = `
		UPDATE payments
		SET session_url = $2,
			session_id = $3
		WHERE id = $1
		AND session_id IS NULL`
	res, err := r.db.ExecContext(ctx, q, paymentID, url, sessionID)
	if err != nil {
		return false, err
	}
	aff, _ := res.RowsAffected()
	return aff > 0, nil
}

func (r *repo) MarkPaid(ctx context.Context, paymentID int64) (bool, error) {
	const q = `
		UPDATE payments
		SET status = 'PAID'
		WHERE id = $1
		AND status = 'PENDING'`
	res, err := r.db.ExecContext(ctx, q, paymentID)
	if err != nil {
		return false, err
	}
	if aff, _ := res.RowsAffected(); aff > 0 {
		return true, nil
	}

	// Zero rows: either a replayed confirmation or an unknown payment.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, paymentID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, sql.ErrNoRows
	}
	return false, nil
}
