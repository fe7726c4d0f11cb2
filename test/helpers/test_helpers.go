package helpers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/repository"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"github.com/nimasrn/studio-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func SetupTestDB(t *testing.T) *pg.DB {
	return repository.OpenTestDB(t)
}

// SetupTestRedis starts miniredis and an adapter with a connection name
// unique to the test, since adapters are cached by name.
func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	adapter, err := redis.NewRedisAdapter(fmt.Sprintf("test-%d", time.Now().UnixNano()), "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestUser(t *testing.T, db *pg.DB, email string) *model.User {
	u, err := repository.NewUserRepository(db).Create(context.Background(), &model.User{
		Email:     email,
		FirstName: "Test",
		LastName:  "User",
		Role:      model.RoleUser,
	})
	require.NoError(t, err)
	return u
}

func CreateTestSubscription(t *testing.T, db *pg.DB, userID int64, endpoint string) *model.PushSubscription {
	sub, err := repository.NewPushSubscriptionRepository(db).Create(context.Background(), &model.PushSubscription{
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   "p256dh",
		Auth:     "auth",
		IsActive: true,
	})
	require.NoError(t, err)
	return sub
}

func CreateTestClass(t *testing.T, db *pg.DB, title string, start time.Time) *repository.ClassEntity {
	c := &repository.ClassEntity{Title: title, StartTime: start, EndTime: start.Add(time.Hour)}
	require.NoError(t, db.Write(context.Background()).Create(c).Error)
	return c
}

func CreateTestBooking(t *testing.T, db *pg.DB, userID int64, classID *int64, amount int64) *model.Booking {
	b, err := repository.NewBookingRepository(db).Create(context.Background(), &model.Booking{
		UserID:           userID,
		ClassID:          classID,
		Status:           model.BookingPending,
		PaymentStatus:    model.PaymentProcessing,
		TotalAmount:      amount,
		Currency:         "EUR",
		ConfirmationCode: RandomConfirmationCode(),
	})
	require.NoError(t, err)
	return b
}

func CreateTestTransaction(t *testing.T, db *pg.DB, bookingID int64, transferID string, amount int64) *model.Transaction {
	txn, err := repository.NewTransactionRepository(db).Create(context.Background(), &model.Transaction{
		BookingID:         bookingID,
		Provider:          model.ProviderWise,
		ProviderPaymentID: transferID,
		Amount:            amount,
		Currency:          "EUR",
		Status:            model.TransactionCreated,
	})
	require.NoError(t, err)
	return txn
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func RandomConfirmationCode() string {
	return fmt.Sprintf("C%d", time.Now().UnixNano()%1_000_000)
}

func Ptr[T any](v T) *T {
	return &v
}
