package booksvc

import (
	"context"
	"database/sql"
	"errors"

	"github.com/olga-kim7/library-service/model"
)

var (
	ErrBadInput = errors.New("invalid payload")
	ErrNotFound = errors.New("book not found")
)

type Repo interface {
	Create(ctx context.Context, b *model.Book) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) error
}

type Service interface {
	Create(ctx context.Context, b *model.Book) error
	List(ctx context.Context) ([]model.Book, error)
	Detail(ctx context.Context, id int64) (*model.Book, error)
	Update(ctx context.Context, b *model.Book) error
	Delete(ctx context.Context, id int64) error
}

type service struct{ r Repo }

func New(r Repo) Service { return &service{r: r} }

func validCover(c model.CoverType) bool {
	return c == model.CoverHard || c == model.CoverSoft
}

func (s *service) Create(ctx context.Context, b *model.Book) error {
	if b.Title == "" || b.Author == "" || !validCover(b.Cover) || b.Inventory < 0 || b.DailyFee <= 0 {
		return ErrBadInput
	}
	return s.r.Create(ctx, b)
}

func (s *service) List(ctx context.Context) ([]model.Book, error) { return s.r.List(ctx) }

func (s *service) Detail(ctx context.Context, id int64) (*model.Book, error) {
	b, err := s.r.Detail(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return b, nil
}

func (s *service) Update(ctx context.Context, b *model.Book) error {
	if b.Title == "" || b.Author == "" || !validCover(b.Cover) || b.DailyFee <= 0 {
		return ErrBadInput
	}
	if err := s.r.Update(ctx, b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id int64) error {
	if err := s.r.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}
