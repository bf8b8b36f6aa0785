// service/overdue/scannerService.go
package overduesvc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/olga-kim7/library-service/model"
	"github.com/olga-kim7/library-service/notify"
	borrowrepo "github.com/olga-kim7/library-service/repository/borrowing"
)

type Repo interface {
	FindOverdue(ctx context.Context, asOf time.Time) ([]borrowrepo.OverdueRow, error)
}

type Scanner interface {
	// Scan emits one notification per overdue borrowing, or a single
	// "none overdue" message. Returns how many overdue rows were seen.
	// Duplicate notifications across scans are the scheduler's problem,
	// not the scanner's: there is no dedup here.
	Scan(ctx context.Context, asOf time.Time) (int, error)

	// Run sweeps on a fixed interval until ctx is done.
	Run(ctx context.Context, interval time.Duration)
}

type scanner struct {
	r        Repo
	notifier notify.Notifier
	log      *slog.Logger
}

func New(r Repo, notifier notify.Notifier, log *slog.Logger) Scanner {
	return &scanner{r: r, notifier: notifier, log: log}
}

func (s *scanner) Scan(ctx context.Context, asOf time.Time) (int, error) {
	rows, err := s.r.FindOverdue(ctx, asOf)
	if err != nil {
		return 0, err
	}

	if len(rows) == 0 {
		if err := s.notifier.Notify(ctx, "No borrowings overdue today!"); err != nil {
			s.log.Warn("overdue notification failed", "err", err)
		}
		return 0, nil
	}

	for _, row := range rows {
		msg := fmt.Sprintf(
			"Borrowing overdue! User: %s, Book: %s, Expected Return Date: %s",
			row.UserFirstName, row.BookTitle, row.ExpectedReturnDate.Format(model.DateOnly),
		)
		if err := s.notifier.Notify(ctx, msg); err != nil {
			// Logged, never retried; the sweep keeps going.
			s.log.Warn("overdue notification failed", "borrowing_id", row.BorrowingID, "err", err)
		}
	}
	return len(rows), nil
}

func (s *scanner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *scanner) sweep(ctx context.Context) {
	n, err := s.Scan(ctx, time.Now().UTC())
	if err != nil {
		s.log.Error("overdue scan failed", "err", err)
		return
	}
	s.log.Info("overdue scan finished", "overdue", n)
}
