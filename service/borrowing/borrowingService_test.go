package borrowsvc_test

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/olga-kim7/library-service/model"
	bookrepo "github.com/olga-kim7/library-service/repository/book"
	borrowrepo "github.com/olga-kim7/library-service/repository/borrowing"
	striperepo "github.com/olga-kim7/library-service/repository/stripe"
	borrowsvc "github.com/olga-kim7/library-service/service/borrowing"
)

// --- mocks ---

type repoMock struct {
	mu        sync.Mutex
	inventory int64
	nextID    int64

	createFn func(ctx context.Context, b *model.Borrowing, p *model.Payment) error
	getFn    func(ctx context.Context, id int64) (*model.Borrowing, error)
	listFn   func(ctx context.Context, f borrowsvc.Filter) ([]model.Borrowing, error)
	returnFn func(ctx context.Context, id int64, at time.Time, fine *model.Payment) error
	deleteFn func(ctx context.Context, id int64) error
}

func (m *repoMock) CreateWithReservation(ctx context.Context, b *model.Borrowing, p *model.Payment) error {
	if m.createFn != nil {
		return m.createFn(ctx, b, p)
	}
	// Default: behave like the conditional inventory decrement.
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.inventory <= 0 {
		return bookrepo.ErrOutOfStock
	}
	m.inventory--
	m.nextID++
	b.ID = m.nextID
	p.ID = m.nextID
	return nil
}

func (m *repoMock) GetByID(ctx context.Context, id int64) (*model.Borrowing, error) {
	return m.getFn(ctx, id)
}
func (m *repoMock) List(ctx context.Context, f borrowsvc.Filter) ([]model.Borrowing, error) {
	return m.listFn(ctx, f)
}
func (m *repoMock) Return(ctx context.Context, id int64, at time.Time, fine *model.Payment) error {
	return m.returnFn(ctx, id, at, fine)
}
func (m *repoMock) Delete(ctx context.Context, id int64) error { return m.deleteFn(ctx, id) }

type booksMock struct {
	detailFn  func(ctx context.Context, id int64) (*model.Book, error)
	byTitleFn func(ctx context.Context, title string) (*model.Book, error)
}

func (m *booksMock) Detail(ctx context.Context, id int64) (*model.Book, error) {
	return m.detailFn(ctx, id)
}
func (m *booksMock) FindByTitle(ctx context.Context, title string) (*model.Book, error) {
	return m.byTitleFn(ctx, title)
}

type usersMock struct{}

func (usersMock) ByID(ctx context.Context, id int64) (*model.User, error) {
	return &model.User{ID: id, Email: "reader@example.com"}, nil
}

type paymentsMock struct {
	mu       sync.Mutex
	sessions map[int64]string
}

func (m *paymentsMock) SetSession(ctx context.Context, paymentID int64, url, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = map[int64]string{}
	}
	if _, ok := m.sessions[paymentID]; ok {
		return false, nil
	}
	m.sessions[paymentID] = sessionID
	return true, nil
}

type gatewayMock struct {
	mu     sync.Mutex
	calls  int
	openFn func(ctx context.Context, desc string, amount float64, successURL, cancelURL string) (*striperepo.SessionRef, error)
}

func (m *gatewayMock) OpenSession(ctx context.Context, desc string, amount float64, successURL, cancelURL string) (*striperepo.SessionRef, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.openFn != nil {
		return m.openFn(ctx, desc, amount, successURL, cancelURL)
	}
	return &striperepo.SessionRef{URL: "https://checkout.test/s", ID: "cs_test"}, nil
}

func (m *gatewayMock) VerifyWebhook(payload []byte, sigHeader string) (*striperepo.WebhookEvent, error) {
	return nil, errors.New("not used")
}

type notifierMock struct {
	mu   sync.Mutex
	msgs []string
	err  error
}

func (m *notifierMock) Notify(ctx context.Context, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, text)
	return m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(errWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type errWriter struct{}

func (errWriter) Write(p []byte) (int, error) { return len(p), nil }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newService(r *repoMock, b *booksMock, p *paymentsMock, g *gatewayMock, n *notifierMock) borrowsvc.Service {
	return borrowsvc.New(r, b, usersMock{}, p, g, n, testLogger(), "http://localhost:8080")
}

func theBook() *model.Book {
	return &model.Book{ID: 1, Title: "Kobzar", Author: "Shevchenko", Cover: model.CoverHard, Inventory: 1, DailyFee: 7}
}

// --- create ---

func TestCreate_BadDates_NoMutation(t *testing.T) {
	repo := &repoMock{
		createFn: func(ctx context.Context, b *model.Borrowing, p *model.Payment) error {
			t.Fatal("repo must not be touched when validation fails")
			return nil
		},
	}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	svc := newService(repo, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	_, err := svc.Create(context.Background(), 5, borrowsvc.CreateInput{
		BookID:             1,
		BorrowDate:         date(2024, 1, 10),
		ExpectedReturnDate: date(2024, 1, 5),
	})
	require.Error(t, err)
	require.Equal(t, borrowsvc.ErrValidation, borrowsvc.Code(err))

	// Same-day is not a valid rental window either: strictly after.
	_, err = svc.Create(context.Background(), 5, borrowsvc.CreateInput{
		BookID:             1,
		BorrowDate:         date(2024, 1, 10),
		ExpectedReturnDate: date(2024, 1, 10),
	})
	require.Equal(t, borrowsvc.ErrValidation, borrowsvc.Code(err))
}

func TestCreate_Success(t *testing.T) {
	repo := &repoMock{inventory: 1}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	payments := &paymentsMock{}
	gw := &gatewayMock{}
	notifier := &notifierMock{}
	svc := newService(repo, books, payments, gw, notifier)

	out, err := svc.Create(context.Background(), 5, borrowsvc.CreateInput{
		BookID:             1,
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 3),
	})
	require.NoError(t, err)
	// 3 inclusive days at 7/day.
	require.Equal(t, 21.0, out.Amount)
	require.Equal(t, "https://checkout.test/s", out.PaymentLink)
	require.Equal(t, "cs_test", payments.sessions[out.PaymentID])
	require.Len(t, notifier.msgs, 1)
	require.Contains(t, notifier.msgs[0], "reader@example.com")
}

func TestCreate_ByTitle_Ambiguous(t *testing.T) {
	books := &booksMock{byTitleFn: func(ctx context.Context, title string) (*model.Book, error) {
		return nil, bookrepo.ErrMultiple
	}}
	svc := newService(&repoMock{inventory: 1}, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	_, err := svc.Create(context.Background(), 5, borrowsvc.CreateInput{
		BookTitle:          "Kobzar",
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 3),
	})
	require.Equal(t, borrowsvc.ErrMultipleBooks, borrowsvc.Code(err))
}

func TestCreate_BookNotFound(t *testing.T) {
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return nil, sql.ErrNoRows
	}}
	svc := newService(&repoMock{}, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	_, err := svc.Create(context.Background(), 5, borrowsvc.CreateInput{
		BookID:             404,
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 3),
	})
	require.Equal(t, borrowsvc.ErrBookNotFound, borrowsvc.Code(err))
}

func TestCreate_OutOfStock(t *testing.T) {
	repo := &repoMock{inventory: 0}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	svc := newService(repo, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	_, err := svc.Create(context.Background(), 5, borrowsvc.CreateInput{
		BookID:             1,
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 3),
	})
	require.Equal(t, borrowsvc.ErrOutOfStock, borrowsvc.Code(err))
}

func TestCreate_GatewayFailure_KeepsBorrowing(t *testing.T) {
	repo := &repoMock{inventory: 1}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	gw := &gatewayMock{openFn: func(ctx context.Context, desc string, amount float64, su, cu string) (*striperepo.SessionRef, error) {
		return nil, errors.New("stripe down")
	}}
	svc := newService(repo, books, &paymentsMock{}, gw, &notifierMock{})

	_, err := svc.Create(context.Background(), 5, borrowsvc.CreateInput{
		BookID:             1,
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 3),
	})
	require.Equal(t, borrowsvc.ErrGateway, borrowsvc.Code(err))
	// The reservation committed before the gateway round trip and is
	// deliberately not rolled back.
	require.EqualValues(t, 0, repo.inventory)
	require.EqualValues(t, 1, repo.nextID)
}

// With inventory = k, exactly min(N, k) of N concurrent requests succeed.
func TestCreate_ConcurrentRequests_ExactlyKSucceed(t *testing.T) {
	const n = 20
	const k = 3

	repo := &repoMock{inventory: k}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	svc := newService(repo, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Create(context.Background(), int64(100+i), borrowsvc.CreateInput{
				BookID:             1,
				BorrowDate:         date(2024, 1, 1),
				ExpectedReturnDate: date(2024, 1, 3),
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	var ok, outOfStock int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case borrowsvc.Code(err) == borrowsvc.ErrOutOfStock:
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, k, ok)
	require.Equal(t, n-k, outOfStock)
	require.EqualValues(t, 0, repo.inventory)
}

// --- return ---

func openBorrowing() *model.Borrowing {
	return &model.Borrowing{
		ID:                 10,
		BorrowDate:         date(2024, 1, 1),
		ExpectedReturnDate: date(2024, 1, 5),
		BookID:             1,
		UserID:             5,
	}
}

func TestReturn_OnTime_NoFine(t *testing.T) {
	var gotFine *model.Payment
	released := false
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			return openBorrowing(), nil
		},
		returnFn: func(ctx context.Context, id int64, at time.Time, fine *model.Payment) error {
			gotFine = fine
			released = true
			return nil
		},
	}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	svc := newService(repo, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	out, err := svc.Return(context.Background(), 5, model.RoleUser, 10, date(2024, 1, 5))
	require.NoError(t, err)
	require.True(t, released)
	require.Nil(t, gotFine)
	require.Nil(t, out.Fine)
}

func TestReturn_OnDueDateAfternoon_NoFine(t *testing.T) {
	var gotFine *model.Payment
	released := false
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			return openBorrowing(), nil
		},
		returnFn: func(ctx context.Context, id int64, at time.Time, fine *model.Payment) error {
			gotFine = fine
			released = true
			return nil
		},
	}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	svc := newService(repo, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	// Expected 2024-01-05; handed back that afternoon. Same calendar day,
	// so the return goes through with no fine.
	afternoon := time.Date(2024, time.January, 5, 14, 30, 0, 0, time.UTC)
	out, err := svc.Return(context.Background(), 5, model.RoleUser, 10, afternoon)
	require.NoError(t, err)
	require.True(t, released)
	require.Nil(t, gotFine)
	require.Nil(t, out.Fine)
}

func TestReturn_Late_CreatesFine(t *testing.T) {
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			return openBorrowing(), nil
		},
		returnFn: func(ctx context.Context, id int64, at time.Time, fine *model.Payment) error {
			require.NotNil(t, fine)
			fine.ID = 77
			return nil
		},
	}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		b := theBook()
		b.DailyFee = 5
		return b, nil
	}}
	payments := &paymentsMock{}
	svc := newService(repo, books, payments, &gatewayMock{}, &notifierMock{})

	// Expected 2024-01-05, returned 2024-01-10: 5 days late at 5/day.
	out, err := svc.Return(context.Background(), 5, model.RoleUser, 10, date(2024, 1, 10))
	require.NoError(t, err)
	require.NotNil(t, out.Fine)
	require.Equal(t, 25.0, out.Fine.Amount)
	require.Equal(t, int64(77), out.Fine.PaymentID)
	require.Equal(t, "https://checkout.test/s", out.Fine.PaymentLink)
	require.Equal(t, "cs_test", payments.sessions[77])
}

func TestReturn_Late_FineSessionFailure_StillReturns(t *testing.T) {
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			return openBorrowing(), nil
		},
		returnFn: func(ctx context.Context, id int64, at time.Time, fine *model.Payment) error {
			fine.ID = 77
			return nil
		},
	}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	gw := &gatewayMock{openFn: func(ctx context.Context, desc string, amount float64, su, cu string) (*striperepo.SessionRef, error) {
		return nil, errors.New("stripe down")
	}}
	svc := newService(repo, books, &paymentsMock{}, gw, &notifierMock{})

	out, err := svc.Return(context.Background(), 5, model.RoleUser, 10, date(2024, 1, 10))
	require.NoError(t, err)
	require.NotNil(t, out.Fine)
	require.Empty(t, out.Fine.PaymentLink)
}

func TestReturn_Twice_Rejected(t *testing.T) {
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			return openBorrowing(), nil
		},
		returnFn: func(ctx context.Context, id int64, at time.Time, fine *model.Payment) error {
			return borrowrepo.ErrAlreadyReturned
		},
	}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	svc := newService(repo, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	_, err := svc.Return(context.Background(), 5, model.RoleUser, 10, date(2024, 1, 5))
	require.Equal(t, borrowsvc.ErrAlreadyReturned, borrowsvc.Code(err))
}

func TestReturn_NotOwner(t *testing.T) {
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			return openBorrowing(), nil
		},
	}
	svc := newService(repo, &booksMock{}, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	_, err := svc.Return(context.Background(), 99, model.RoleUser, 10, date(2024, 1, 5))
	require.Equal(t, borrowsvc.ErrForbidden, borrowsvc.Code(err))
}

func TestReturn_AdminMayReturnForUser(t *testing.T) {
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			return openBorrowing(), nil
		},
		returnFn: func(ctx context.Context, id int64, at time.Time, fine *model.Payment) error {
			return nil
		},
	}
	books := &booksMock{detailFn: func(ctx context.Context, id int64) (*model.Book, error) {
		return theBook(), nil
	}}
	svc := newService(repo, books, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	_, err := svc.Return(context.Background(), 99, model.RoleAdmin, 10, date(2024, 1, 5))
	require.NoError(t, err)
}

// --- list / get ---

func TestList_NonAdminScopedToSelf(t *testing.T) {
	var gotFilter borrowsvc.Filter
	repo := &repoMock{
		listFn: func(ctx context.Context, f borrowsvc.Filter) ([]model.Borrowing, error) {
			gotFilter = f
			return []model.Borrowing{*openBorrowing()}, nil
		},
	}
	svc := newService(repo, &booksMock{}, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	rows, err := svc.List(context.Background(), 5, model.RoleUser, borrowsvc.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, gotFilter.UserID)
	require.EqualValues(t, 5, *gotFilter.UserID)
}

func TestList_UserFilterIsAdminOnly(t *testing.T) {
	svc := newService(&repoMock{}, &booksMock{}, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	other := int64(42)
	_, err := svc.List(context.Background(), 5, model.RoleUser, borrowsvc.Filter{UserID: &other})
	require.Equal(t, borrowsvc.ErrForbidden, borrowsvc.Code(err))
}

func TestGet_DerivesOverdue(t *testing.T) {
	repo := &repoMock{
		getFn: func(ctx context.Context, id int64) (*model.Borrowing, error) {
			b := openBorrowing()
			b.ExpectedReturnDate = date(2000, 1, 1)
			return b, nil
		},
	}
	svc := newService(repo, &booksMock{}, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	v, err := svc.Get(context.Background(), 5, model.RoleUser, 10)
	require.NoError(t, err)
	require.True(t, v.Overdue)
}

func TestDelete_NotFound(t *testing.T) {
	repo := &repoMock{
		deleteFn: func(ctx context.Context, id int64) error { return sql.ErrNoRows },
	}
	svc := newService(repo, &booksMock{}, &paymentsMock{}, &gatewayMock{}, &notifierMock{})

	err := svc.Delete(context.Background(), 404)
	require.Equal(t, borrowsvc.ErrNotFound, borrowsvc.Code(err))
}
