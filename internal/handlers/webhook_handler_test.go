package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/studio-gateway/internal/email"
	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/push"
	"github.com/nimasrn/studio-gateway/internal/repository"
	"github.com/nimasrn/studio-gateway/internal/services"
	"github.com/nimasrn/studio-gateway/internal/wise"
	xhttp "github.com/nimasrn/studio-gateway/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const (
	testSecret = "whsec_test"
	sigHeader  = "X-Signature-SHA256"
)

type MockReconciler struct {
	mock.Mock
}

func (m *MockReconciler) Process(ctx context.Context, transferID, providerStatus string) (*services.ReconcileResult, error) {
	args := m.Called(ctx, transferID, providerStatus)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ReconcileResult), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	var req fasthttp.Request
	req.Header.SetMethod(method)
	req.SetRequestURI(path)
	if body != nil {
		req.SetBody(body)
	}
	ctx := &fasthttp.RequestCtx{}
	ctx.Init(&req, nil, nil)
	return ctx
}

func signedRequest(body string) *xhttp.RequestCtx {
	ctx := setupTestContext("POST", "/api/webhooks/wise", []byte(body))
	ctx.Request.Header.Set(sigHeader, wise.NewVerifier(testSecret).Sign([]byte(body)))
	return ctx
}

func decode(t *testing.T, ctx *xhttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func TestWebhookHandler_HandleWise(t *testing.T) {
	stateChange := `{"event_type":"transfers#state-change","schema_version":"2.0.0","data":{"resource":{"id":111,"type":"transfer","profile_id":9},"current_state":"outgoing_payment_sent","previous_state":"processing"}}`

	t.Run("processes a signed state change", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("Process", mock.Anything, "111", "outgoing_payment_sent").
			Return(&services.ReconcileResult{Matched: true, Changed: true}, nil).Once()
		h := NewWebhookHandler(wise.NewVerifier(testSecret), rec, sigHeader)

		ctx := signedRequest(stateChange)
		h.HandleWise(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, true, decode(t, ctx)["received"])
		rec.AssertExpectations(t)
	})

	t.Run("rejects a bad signature", func(t *testing.T) {
		rec := new(MockReconciler)
		h := NewWebhookHandler(wise.NewVerifier(testSecret), rec, sigHeader)

		ctx := setupTestContext("POST", "/api/webhooks/wise", []byte(stateChange))
		ctx.Request.Header.Set(sigHeader, wise.NewVerifier("other").Sign([]byte(stateChange)))
		h.HandleWise(ctx)

		assert.Equal(t, xhttp.StatusUnauthorized, ctx.Response.StatusCode())
		assert.Equal(t, "invalid signature", decode(t, ctx)["error"])
		rec.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a missing signature", func(t *testing.T) {
		rec := new(MockReconciler)
		h := NewWebhookHandler(wise.NewVerifier(testSecret), rec, sigHeader)

		ctx := setupTestContext("POST", "/api/webhooks/wise", []byte(stateChange))
		h.HandleWise(ctx)

		assert.Equal(t, xhttp.StatusUnauthorized, ctx.Response.StatusCode())
	})

	t.Run("acknowledges unrelated event types", func(t *testing.T) {
		rec := new(MockReconciler)
		h := NewWebhookHandler(wise.NewVerifier(testSecret), rec, sigHeader)

		ctx := signedRequest(`{"event_type":"balances#credit","data":{"resource":{"id":5}}}`)
		h.HandleWise(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		assert.Equal(t, true, decode(t, ctx)["received"])
		rec.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown transfer is still acknowledged", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("Process", mock.Anything, "404", "cancelled").
			Return(&services.ReconcileResult{Matched: false}, nil).Once()
		h := NewWebhookHandler(wise.NewVerifier(testSecret), rec, sigHeader)

		ctx := signedRequest(`{"event_type":"transfer.cancelled","resource":{"id":"404"}}`)
		h.HandleWise(ctx)

		assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
		rec.AssertExpectations(t)
	})

	t.Run("malformed body", func(t *testing.T) {
		h := NewWebhookHandler(wise.NewVerifier(testSecret), new(MockReconciler), sigHeader)

		ctx := signedRequest(`{"event_type":`)
		h.HandleWise(ctx)

		assert.Equal(t, xhttp.StatusInternalServerError, ctx.Response.StatusCode())
	})

	t.Run("persistence failure asks for a retry", func(t *testing.T) {
		rec := new(MockReconciler)
		rec.On("Process", mock.Anything, "111", "outgoing_payment_sent").
			Return(nil, errors.New("connection reset")).Once()
		h := NewWebhookHandler(wise.NewVerifier(testSecret), rec, sigHeader)

		ctx := signedRequest(stateChange)
		h.HandleWise(ctx)

		assert.Equal(t, xhttp.StatusInternalServerError, ctx.Response.StatusCode())
		assert.Equal(t, "processing failed", decode(t, ctx)["error"])
	})
}

func TestWebhookHandler_WiseStatus(t *testing.T) {
	h := NewWebhookHandler(wise.NewVerifier(testSecret), new(MockReconciler), sigHeader)
	h.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	ctx := setupTestContext("GET", "/api/webhooks/wise", nil)
	h.WiseStatus(ctx)

	assert.Equal(t, xhttp.StatusOK, ctx.Response.StatusCode())
	body := decode(t, ctx)
	assert.Equal(t, "2026-03-01T12:00:00Z", body["timestamp"])
	assert.NotEmpty(t, body["message"])
}

type recordingPush struct {
	mock.Mock
}

func (m *recordingPush) Send(ctx context.Context, sub push.Subscription, payload []byte, opts push.Options) error {
	return m.Called(ctx, sub, payload, opts).Error(0)
}

type recordingMailer struct {
	mock.Mock
}

func (m *recordingMailer) Send(ctx context.Context, msg email.Message) error {
	return m.Called(ctx, msg).Error(0)
}

func TestWebhookHandler_ConfirmsBookingEndToEnd(t *testing.T) {
	ctx := context.Background()
	db := repository.OpenTestDB(t)
	users := repository.NewUserRepository(db)
	catalog := repository.NewCatalogRepository(db)
	bookings := repository.NewBookingRepository(db)
	transactions := repository.NewTransactionRepository(db)
	notifications := repository.NewNotificationRepository(db)
	subscriptions := repository.NewPushSubscriptionRepository(db)
	preferences := repository.NewPreferenceRepository(db)

	u, err := users.Create(ctx, &model.User{Email: "ana@example.com", FirstName: "Ana", LastName: "Silva", Role: model.RoleUser})
	require.NoError(t, err)
	_, err = subscriptions.Create(ctx, &model.PushSubscription{
		UserID: u.ID, Endpoint: "https://push.example/ana", P256dh: "p256dh", Auth: "auth", IsActive: true,
	})
	require.NoError(t, err)
	class := &repository.ClassEntity{Title: "Salsa Basics", StartTime: time.Now().Add(48 * time.Hour), EndTime: time.Now().Add(49 * time.Hour)}
	require.NoError(t, db.Write(ctx).Create(class).Error)
	b, err := bookings.Create(ctx, &model.Booking{
		UserID:           u.ID,
		ClassID:          &class.ID,
		Status:           model.BookingPending,
		PaymentStatus:    model.PaymentProcessing,
		TotalAmount:      2500,
		Currency:         "EUR",
		ConfirmationCode: "XYZ789",
	})
	require.NoError(t, err)
	txn, err := transactions.Create(ctx, &model.Transaction{
		BookingID: b.ID, Provider: model.ProviderWise, ProviderPaymentID: "T123", Amount: 2500, Currency: "EUR", Status: model.TransactionCreated,
	})
	require.NoError(t, err)

	pusher := new(recordingPush)
	pusher.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	mailer := new(recordingMailer)
	mailer.On("Send", mock.Anything, mock.MatchedBy(func(m email.Message) bool {
		return m.To == "ana@example.com"
	})).Return(nil).Once()

	renderer, err := email.NewRenderer()
	require.NoError(t, err)
	dispatcher := services.NewNotificationDispatcher(pusher, subscriptions, preferences, notifications)
	triggers := services.NewNotificationTriggers(dispatcher, notifications, bookings, catalog, users, mailer, renderer,
		services.TriggerConfig{BaseURL: "https://studio.example"})
	sink := services.NewInlineSink(services.NewEffectExecutor(triggers, nil))
	reconciler := services.NewBookingReconciler(db, transactions, bookings, sink)
	h := NewWebhookHandler(wise.NewVerifier(testSecret), reconciler, sigHeader)

	req := signedRequest(`{"event_type":"transfer.sent","resource":{"id":"T123"}}`)
	h.HandleWise(req)
	require.Equal(t, xhttp.StatusOK, req.Response.StatusCode())

	gotTxn, err := transactions.Get(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionSucceeded, gotTxn.Status)

	gotBooking, err := bookings.Get(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BookingConfirmed, gotBooking.Status)
	assert.Equal(t, model.PaymentSucceeded, gotBooking.PaymentStatus)
	assert.Equal(t, int64(2500), gotBooking.AmountPaid)

	pusher.AssertExpectations(t)
	mailer.AssertExpectations(t)

	// the same delivery again changes nothing and notifies no one
	again := signedRequest(`{"event_type":"transfer.sent","resource":{"id":"T123"}}`)
	h.HandleWise(again)
	assert.Equal(t, xhttp.StatusOK, again.Response.StatusCode())
	pusher.AssertNumberOfCalls(t, "Send", 1)
	mailer.AssertNumberOfCalls(t, "Send", 1)
}
