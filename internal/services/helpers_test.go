package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nimasrn/studio-gateway/internal/email"
	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/push"
	"github.com/nimasrn/studio-gateway/internal/repository"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type MockPushSender struct {
	mock.Mock
}

func (m *MockPushSender) Send(ctx context.Context, sub push.Subscription, payload []byte, opts push.Options) error {
	args := m.Called(ctx, sub, payload, opts)
	return args.Error(0)
}

func endpoint(url string) any {
	return mock.MatchedBy(func(s push.Subscription) bool { return s.Endpoint == url })
}

type MockEmailSender struct {
	mock.Mock
}

func (m *MockEmailSender) Send(ctx context.Context, msg email.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

// memLocker is an in-process Locker.
type memLocker struct {
	mu    sync.Mutex
	held  map[string]bool
	calls []string
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[string]bool)}
}

func (l *memLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, key)
	if l.held[key] {
		return nil, false, nil
	}
	l.held[key] = true
	return func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}, true, nil
}

type store struct {
	db            *pg.DB
	users         *repository.UserRepository
	catalog       *repository.CatalogRepository
	bookings      *repository.BookingRepository
	transactions  *repository.TransactionRepository
	notifications *repository.NotificationRepository
	subscriptions *repository.PushSubscriptionRepository
	preferences   *repository.PreferenceRepository
}

func newStore(t *testing.T) *store {
	db := repository.OpenTestDB(t)
	return &store{
		db:            db,
		users:         repository.NewUserRepository(db),
		catalog:       repository.NewCatalogRepository(db),
		bookings:      repository.NewBookingRepository(db),
		transactions:  repository.NewTransactionRepository(db),
		notifications: repository.NewNotificationRepository(db),
		subscriptions: repository.NewPushSubscriptionRepository(db),
		preferences:   repository.NewPreferenceRepository(db),
	}
}

func (s *store) user(t *testing.T, email string, role model.UserRole) *model.User {
	t.Helper()
	u, err := s.users.Create(context.Background(), &model.User{Email: email, FirstName: "Test", LastName: email[:1], Role: role})
	require.NoError(t, err)
	return u
}

func (s *store) subscribe(t *testing.T, userID int64, url string) *model.PushSubscription {
	t.Helper()
	sub, err := s.subscriptions.Create(context.Background(), &model.PushSubscription{
		UserID: userID, Endpoint: url, P256dh: "p256dh", Auth: "auth", IsActive: true,
	})
	require.NoError(t, err)
	return sub
}

func (s *store) prefer(t *testing.T, userID int64, typ model.NotificationType, enabled bool, quiet ...string) {
	t.Helper()
	p := &model.NotificationPreference{UserID: userID, Type: typ, PushEnabled: enabled}
	if len(quiet) == 2 {
		p.QuietHoursStart, p.QuietHoursEnd = &quiet[0], &quiet[1]
	}
	_, err := s.preferences.Save(context.Background(), p)
	require.NoError(t, err)
}

func (s *store) class(t *testing.T, title string, start time.Time) *repository.ClassEntity {
	t.Helper()
	ctx := context.Background()
	venue := &repository.VenueEntity{Name: "Main Studio", Address: "Rua A 1", City: "Lisbon"}
	require.NoError(t, s.db.Write(ctx).Create(venue).Error)
	instructor := &repository.InstructorEntity{Name: "Marta"}
	require.NoError(t, s.db.Write(ctx).Create(instructor).Error)
	c := &repository.ClassEntity{Title: title, StartTime: start, EndTime: start.Add(time.Hour), VenueID: &venue.ID, InstructorID: &instructor.ID}
	require.NoError(t, s.db.Write(ctx).Create(c).Error)
	return c
}

func (s *store) event(t *testing.T, title string, start time.Time) *repository.EventEntity {
	t.Helper()
	e := &repository.EventEntity{Title: title, StartTime: start, EndTime: start.Add(3 * time.Hour)}
	require.NoError(t, s.db.Write(context.Background()).Create(e).Error)
	return e
}

func (s *store) booking(t *testing.T, userID int64, classID, eventID *int64, status model.BookingStatus) *model.Booking {
	t.Helper()
	b, err := s.bookings.Create(context.Background(), &model.Booking{
		UserID:           userID,
		ClassID:          classID,
		EventID:          eventID,
		Status:           status,
		PaymentStatus:    model.PaymentProcessing,
		TotalAmount:      1500,
		Currency:         "EUR",
		ConfirmationCode: "ABC123",
	})
	require.NoError(t, err)
	return b
}

func (s *store) transaction(t *testing.T, bookingID int64, transferID string, status model.TransactionStatus) *model.Transaction {
	t.Helper()
	txn, err := s.transactions.Create(context.Background(), &model.Transaction{
		BookingID:         bookingID,
		Provider:          model.ProviderWise,
		ProviderPaymentID: transferID,
		Amount:            1500,
		Currency:          "EUR",
		Status:            status,
	})
	require.NoError(t, err)
	return txn
}

func (s *store) dispatcher(sender push.Sender, opts ...DispatcherOption) *NotificationDispatcher {
	opts = append([]DispatcherOption{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewNotificationDispatcher(sender, s.subscriptions, s.preferences, s.notifications, opts...)
}

func ptr[T any](v T) *T { return &v }
