// repository/borrowing/borrowingRepository.go
package borrowrepo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/olga-kim7/library-service/model"
)

var ErrAlreadyReturned = errors.New("borrowing already returned")

// Catalog is the slice of the book repository the ledger needs inside its
// transactions: the atomic inventory reserve/release.
type Catalog interface {
	ReserveCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
	ReleaseCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
}

type Filter struct {
	UserID   *int64
	IsActive *bool
}

// OverdueRow carries what the scanner needs to format a notification.
type OverdueRow struct {
	BorrowingID        int64
	UserFirstName      string
	UserEmail          string
	BookTitle          string
	ExpectedReturnDate time.Time
}

type Repo interface {
	// CreateWithReservation commits the inventory decrement, the borrowing
	// row and its initial PENDING payment as one unit of work.
	CreateWithReservation(ctx context.Context, b *model.Borrowing, p *model.Payment) error

	GetByID(ctx context.Context, id int64) (*model.Borrowing, error)
	List(ctx context.Context, f Filter) ([]model.Borrowing, error)

	// Return closes the borrowing, releases the copy and, when fine is
	// non-nil, records it — all in one transaction. A borrowing that is
	// already closed fails with ErrAlreadyReturned and nothing is applied.
	Return(ctx context.Context, borrowingID int64, returnedAt time.Time, fine *model.Payment) error

	// Delete removes the borrowing and its payments. Inventory is left
	// alone: deletion is an administrative correction, not a return.
	Delete(ctx context.Context, id int64) error

	FindOverdue(ctx context.Context, asOf time.Time) ([]OverdueRow, error)
}

type repo struct {
	db      *sql.DB
	catalog Catalog
}

func New(db *sql.DB, catalog Catalog) Repo { return &repo{db: db, catalog: catalog} }

func (r *repo) CreateWithReservation(ctx context.Context, b *model.Borrowing, p *model.Payment) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.catalog.ReserveCopy(ctx, tx, b.BookID); err != nil {
		return err
	}

	const insBorrowing = `
		INSERT INTO borrowings (borrow_date, expected_return_date, book_id, user_id)
		VALUES ($1,$2,$3,$4)
		RETURNING id`
	if err = tx.QueryRowContext(ctx, insBorrowing,
		b.BorrowDate, b.ExpectedReturnDate, b.BookID, b.UserID,
	).Scan(&b.ID); err != nil {
		return err
	}

	p.BorrowingID = b.ID
	const insPayment = `
		INSERT INTO payments (status, type, borrowing_id, amount)
		VALUES ($1,$2,$3,$4)
		RETURNING id, created_at`
	if err = tx.QueryRowContext(ctx, insPayment,
		p.Status, p.Type, p.BorrowingID, p.Amount,
	).Scan(&p.ID, &p.CreatedAt); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *repo) GetByID(ctx context.Context, id int64) (*model.Borrowing, error) {
	const q = `
		SELECT id, borrow_date, expected_return_date, actual_return_date, book_id, user_id
		FROM borrowings
		WHERE id = $1`
	var b model.Borrowing
	err := r.db.QueryRowContext(ctx, q, id).Scan(
		&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate, &b.BookID, &b.UserID,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) List(ctx context.Context, f Filter) ([]model.Borrowing, error) {
	q := `
		SELECT id, borrow_date, expected_return_date, actual_return_date, book_id, user_id
		FROM borrowings
		WHERE ($1::BIGINT IS NULL OR user_id = $1)
		AND ($2::BOOLEAN IS NULL OR (actual_return_date IS NULL) = $2)
		ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, q, f.UserID, f.IsActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Borrowing
	for rows.Next() {
		var b model.Borrowing
		if err := rows.Scan(&b.ID, &b.BorrowDate, &b.ExpectedReturnDate, &b.ActualReturnDate, &b.BookID, &b.UserID); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Return(ctx context.Context, borrowingID int64, returnedAt time.Time, fine *model.Payment) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const lock = `
		SELECT book_id, actual_return_date
		FROM borrowings
		WHERE id = $1
		FOR UPDATE`
	var bookID int64
	var returned *time.Time
	if err = tx.QueryRowContext(ctx, lock, borrowingID).Scan(&bookID, &returned); err != nil {
		return err
	}
	if returned != nil {
		return ErrAlreadyReturned
	}

	const closeRow = `
		UPDATE borrowings
		SET actual_return_date = $2
		WHERE id = $1`
	if _, err = tx.ExecContext(ctx, closeRow, borrowingID, returnedAt); err != nil {
		return err
	}

	if err = r.catalog.ReleaseCopy(ctx, tx, bookID); err != nil {
		return err
	}

	if fine != nil {
		fine.BorrowingID = borrowingID
		const insFine = `
			INSERT INTO payments (status, type, borrowing_id, amount)
			VALUES ($1,$2,$3,$4)
			RETURNING id, created_at`
		if err = tx.QueryRowContext(ctx, insFine,
			fine.Status, fine.Type, fine.BorrowingID, fine.Amount,
		).Scan(&fine.ID, &fine.CreatedAt); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *repo) Delete(ctx context.Context, id int64) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM payments WHERE borrowing_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM borrowings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		err = sql.ErrNoRows
		return err
	}

	return tx.Commit()
}

func (r *repo) FindOverdue(ctx context.Context, asOf time.Time) ([]OverdueRow, error) {
	const q = `
		SELECT b.id, u.first_name, u.email, bk.title, b.expected_return_date
		FROM borrowings b
		JOIN users u ON u.id = b.user_id
		JOIN books bk ON bk.id = b.book_id
		WHERE b.expected_return_date <= $1
		AND b.actual_return_date IS NULL
		ORDER BY b.expected_return_date, b.id`
	rows, err := r.db.QueryContext(ctx, q, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []OverdueRow
	for rows.Next() {
		var o OverdueRow
		if err := rows.Scan(&o.BorrowingID, &o.UserFirstName, &o.UserEmail, &o.BookTitle, &o.ExpectedReturnDate); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
