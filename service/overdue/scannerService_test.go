package overduesvc_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	borrowrepo "github.com/olga-kim7/library-service/repository/borrowing"
	overduesvc "github.com/olga-kim7/library-service/service/overdue"
)

type repoMock struct {
	rows []borrowrepo.OverdueRow
	err  error
}

func (m *repoMock) FindOverdue(ctx context.Context, asOf time.Time) ([]borrowrepo.OverdueRow, error) {
	return m.rows, m.err
}

type notifierMock struct {
	msgs []string
	errs []error
}

func (m *notifierMock) Notify(ctx context.Context, text string) error {
	m.msgs = append(m.msgs, text)
	if len(m.errs) >= len(m.msgs) {
		return m.errs[len(m.msgs)-1]
	}
	return nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newScanner(r *repoMock, n *notifierMock) overduesvc.Scanner {
	log := slog.New(slog.NewTextHandler(discard{}, nil))
	return overduesvc.New(r, n, log)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestScan_OneMessagePerOverdue(t *testing.T) {
	repo := &repoMock{rows: []borrowrepo.OverdueRow{
		{BorrowingID: 1, UserFirstName: "Olga", BookTitle: "Kobzar", ExpectedReturnDate: date(2024, 1, 5)},
		{BorrowingID: 2, UserFirstName: "Ivan", BookTitle: "Zakhar Berkut", ExpectedReturnDate: date(2024, 1, 7)},
	}}
	notifier := &notifierMock{}

	n, err := newScanner(repo, notifier).Scan(context.Background(), date(2024, 1, 10))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, notifier.msgs, 2)
	require.Equal(t, "Borrowing overdue! User: Olga, Book: Kobzar, Expected Return Date: 2024-01-05", notifier.msgs[0])
	require.Contains(t, notifier.msgs[1], "Ivan")
}

func TestScan_NoneOverdue_SingleMessage(t *testing.T) {
	notifier := &notifierMock{}

	n, err := newScanner(&repoMock{}, notifier).Scan(context.Background(), date(2024, 1, 10))
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, []string{"No borrowings overdue today!"}, notifier.msgs)
}

func TestScan_NotifyFailureDoesNotAbortSweep(t *testing.T) {
	repo := &repoMock{rows: []borrowrepo.OverdueRow{
		{BorrowingID: 1, UserFirstName: "Olga", BookTitle: "Kobzar", ExpectedReturnDate: date(2024, 1, 5)},
		{BorrowingID: 2, UserFirstName: "Ivan", BookTitle: "Zakhar Berkut", ExpectedReturnDate: date(2024, 1, 7)},
	}}
	notifier := &notifierMock{errs: []error{errors.New("telegram down")}}

	n, err := newScanner(repo, notifier).Scan(context.Background(), date(2024, 1, 10))
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, notifier.msgs, 2)
}

func TestScan_RepoError(t *testing.T) {
	repo := &repoMock{err: errors.New("db down")}
	notifier := &notifierMock{}

	_, err := newScanner(repo, notifier).Scan(context.Background(), date(2024, 1, 10))
	require.Error(t, err)
	require.Empty(t, notifier.msgs)
}
