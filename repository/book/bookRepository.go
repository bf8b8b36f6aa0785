package bookrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/olga-kim7/library-service/model"
)

var (
	// ErrOutOfStock means the conditional inventory decrement matched no row:
	// every copy is reserved.
	ErrOutOfStock = errors.New("book out of stock")

	// ErrMultiple means a title lookup matched more than one book.
	ErrMultiple = errors.New("multiple books match")
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) error
	FindByTitle(ctx context.Context, title string) (*model.Book, error)

	// ReserveCopy decrements inventory inside the caller's transaction.
	// The WHERE clause is the arbiter under concurrency: when two
	// reservations race for the last copy, exactly one update applies.
	ReserveCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
	ReleaseCopy(ctx context.Context, tx *sql.Tx, bookID int64) error
}

type repo struct{ db *sql.DB }

func New(db *sql.DB) Repo { return &repo{db: db} }

func (r *repo) Create(ctx context.Context, b *model.Book) error {
	const q = `
		INSERT INTO books (title, author, cover, inventory, daily_fee)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id`
	return r.db.QueryRowContext(ctx, q, b.Title, b.Author, b.Cover, b.Inventory, b.DailyFee).Scan(&b.ID)
}

func (r *repo) List(ctx context.Context) ([]model.Book, error) {
	const q = `
		SELECT id, title, author, cover, inventory, daily_fee
		FROM books
		ORDER BY id DESC`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repo) Detail(ctx context.Context, id int64) (*model.Book, error) {
	const q = `
		SELECT id, title, author, cover, inventory, daily_fee
		FROM books
		WHERE id = $1`
	var b model.Book
	if err := r.db.QueryRowContext(ctx, q, id).Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *repo) Update(ctx context.Context, b *model.Book) error {
	const q = `
		UPDATE books
		SET title = $2, author = $3, cover = $4, daily_fee = $5
		WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, b.ID, b.Title, b.Author, b.Cover, b.DailyFee)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// FindByTitle resolves a non-unique title. Zero rows surface as
// sql.ErrNoRows, more than one as ErrMultiple.
func (r *repo) FindByTitle(ctx context.Context, title string) (*model.Book, error) {
	const q = `
		SELECT id, title, author, cover, inventory, daily_fee
		FROM books
		WHERE title = $1
		LIMIT 2`
	rows, err := r.db.QueryContext(ctx, q, title)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var found []model.Book
	for rows.Next() {
		var b model.Book
		if err := rows.Scan(&b.ID, &b.Title, &b.Author, &b.Cover, &b.Inventory, &b.DailyFee); err != nil {
			return nil, err
		}
		found = append(found, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	switch len(found) {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return &found[0], nil
	default:
		return nil, ErrMultiple
	}
}

func (r *repo) ReserveCopy(ctx context.Context, tx *sql.Tx, bookID int64) error {
	const q = `
		UPDATE books
		SET inventory = inventory - 1
		WHERE id = $1
		AND inventory > 0`
	res, err := tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		// Distinguish an unknown book from an exhausted one.
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return sql.ErrNoRows
		}
		return ErrOutOfStock
	}
	return nil
}

func (r *repo) ReleaseCopy(ctx context.Context, tx *sql.Tx, bookID int64) error {
	const q = `
		UPDATE books
		SET inventory = inventory + 1
		WHERE id = $1`
	res, err := tx.ExecContext(ctx, q, bookID)
	if err != nil {
		return err
	}
	if aff, _ := res.RowsAffected(); aff == 0 {
		return sql.ErrNoRows
	}
	return nil
}
