package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nimasrn/studio-gateway/internal/email"
	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/push"
	"github.com/nimasrn/studio-gateway/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type triggerFixture struct {
	*store
	sender   *MockPushSender
	mailer   *MockEmailSender
	triggers *NotificationTriggers
}

func newTriggerFixture(t *testing.T) *triggerFixture {
	s := newStore(t)
	sender := &MockPushSender{}
	mailer := &MockEmailSender{}
	d := s.dispatcher(sender)
	tr := NewNotificationTriggers(d, s.notifications, s.bookings, s.catalog, s.users, mailer, email.MustRenderer(), TriggerConfig{
		BaseURL:  "https://studio.test/",
		Location: time.UTC,
	})
	return &triggerFixture{store: s, sender: sender, mailer: mailer, triggers: tr}
}

func (f *triggerFixture) countNotifications(t *testing.T, typ model.NotificationType, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := f.db.Read(context.Background()).Model(&repository.NotificationEntity{}).Where("type = ?", string(typ))
	if where != "" {
		q = q.Where(where, args...)
	}
	require.NoError(t, q.Count(&n).Error)
	return n
}

func decodePayload(t *testing.T, args mock.Arguments) push.Payload {
	t.Helper()
	var p push.Payload
	require.NoError(t, json.Unmarshal(args.Get(2).([]byte), &p))
	return p
}

func TestNotificationTriggers_BookingConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newTriggerFixture(t)
	u := f.user(t, "ana@example.com", model.RoleUser)
	f.subscribe(t, u.ID, "https://push.test/ana")
	c := f.class(t, "Salsa Basics", time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC))
	b := f.booking(t, u.ID, &c.ID, nil, model.BookingConfirmed)

	var payload push.Payload
	f.sender.On("Send", mock.Anything, endpoint("https://push.test/ana"), mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { payload = decodePayload(t, args) }).
		Return(nil).Once()

	require.NoError(t, f.triggers.BookingConfirmed(ctx, b.ID))
	f.sender.AssertExpectations(t)

	assert.Equal(t, "🎉 Booking Confirmed!", payload.Title)
	assert.Contains(t, payload.Body, "Salsa Basics")
	assert.Contains(t, payload.Body, "Sun 8 Mar, 18:00")
	assert.True(t, payload.RequireInteraction)
	assert.Equal(t, "/bookings/1", payload.URL)
	assert.EqualValues(t, 1, f.countNotifications(t, model.NotificationBookingConfirmed, "is_delivered = ?", true))
}

func TestNotificationTriggers_SendBookingConfirmationEmail(t *testing.T) {
	f := newTriggerFixture(t)
	u := f.user(t, "ana@example.com", model.RoleUser)
	c := f.class(t, "Salsa Basics", time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC))
	b := f.booking(t, u.ID, &c.ID, nil, model.BookingConfirmed)

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m email.Message) bool {
		return m.To == "ana@example.com" &&
			m.Template == email.TemplateBookingConfirmation &&
			strings.Contains(m.Subject, "Salsa Basics") &&
			strings.Contains(m.Text, "ABC123") &&
			strings.Contains(m.HTML, "Main Studio") &&
			strings.Contains(m.HTML, "https://studio.test/bookings/1")
	})).Return(nil).Once()

	require.NoError(t, f.triggers.SendBookingConfirmationEmail(context.Background(), b.ID))
	f.mailer.AssertExpectations(t)
}

func TestNotificationTriggers_MissingRootEntityIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newTriggerFixture(t)

	assert.NoError(t, f.triggers.BookingConfirmed(ctx, 404))
	assert.NoError(t, f.triggers.PaymentFailed(ctx, 404, ""))
	assert.NoError(t, f.triggers.WaitlistSpotAvailable(ctx, 1, 404))
	res, err := f.triggers.ClassCancelled(ctx, 404, "")
	assert.NoError(t, err)
	assert.Nil(t, res)
	res, err = f.triggers.EventReminder24h(ctx, 404)
	assert.NoError(t, err)
	assert.Nil(t, res)
	assert.NoError(t, f.triggers.NewUserRegistered(ctx, 404))

	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestNotificationTriggers_PaymentFailed(t *testing.T) {
	ctx := context.Background()
	f := newTriggerFixture(t)
	u := f.user(t, "ana@example.com", model.RoleUser)
	f.subscribe(t, u.ID, "https://push.test/ana")
	c := f.class(t, "Salsa Basics", time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC))
	b := f.booking(t, u.ID, &c.ID, nil, model.BookingCancelled)

	var payload push.Payload
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { payload = decodePayload(t, args) }).
		Return(nil).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m email.Message) bool {
		return m.Template == email.TemplatePaymentFailed && strings.Contains(m.Text, "card declined")
	})).Return(errors.New("smtp down")).Once()

	require.NoError(t, f.triggers.PaymentFailed(ctx, b.ID, "card declined"))
	assert.Equal(t, "⚠️ Payment Failed", payload.Title)
	assert.Contains(t, payload.Body, "card declined")
	assert.True(t, payload.RequireInteraction)
	f.mailer.AssertExpectations(t)
}

func TestNotificationTriggers_PaymentConfirmation(t *testing.T) {
	f := newTriggerFixture(t)
	u := f.user(t, "ana@example.com", model.RoleUser)
	f.subscribe(t, u.ID, "https://push.test/ana")
	b := f.booking(t, u.ID, nil, nil, model.BookingConfirmed)

	var payload push.Payload
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { payload = decodePayload(t, args) }).
		Return(nil).Once()

	require.NoError(t, f.triggers.PaymentConfirmation(context.Background(), b.ID))
	assert.Equal(t, "💳 Payment Received", payload.Title)
	assert.False(t, payload.RequireInteraction)
}

func TestNotificationTriggers_ClassCancelled(t *testing.T) {
	ctx := context.Background()
	f := newTriggerFixture(t)
	c := f.class(t, "Salsa Basics", time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC))
	ana := f.user(t, "ana@example.com", model.RoleUser)
	rui := f.user(t, "rui@example.com", model.RoleUser)
	pending := f.user(t, "pending@example.com", model.RoleUser)
	f.booking(t, ana.ID, &c.ID, nil, model.BookingConfirmed)
	f.booking(t, rui.ID, &c.ID, nil, model.BookingConfirmed)
	f.booking(t, pending.ID, &c.ID, nil, model.BookingPending)
	f.subscribe(t, ana.ID, "https://push.test/ana")
	f.subscribe(t, rui.ID, "https://push.test/rui")
	f.subscribe(t, pending.ID, "https://push.test/pending")

	f.sender.On("Send", mock.Anything, endpoint("https://push.test/ana"), mock.Anything, push.Options{Urgency: push.UrgencyHigh, TTL: defaultPushTTL}).
		Run(func(args mock.Arguments) {
			p := decodePayload(t, args)
			assert.Equal(t, "❌ Class Cancelled", p.Title)
			assert.Contains(t, p.Body, "Reason: studio flooded")
			assert.True(t, p.RequireInteraction)
		}).
		Return(nil).Once()
	f.sender.On("Send", mock.Anything, endpoint("https://push.test/rui"), mock.Anything, mock.Anything).
		Return(&push.SendError{StatusCode: 404}).Once()

	res, err := f.triggers.ClassCancelled(ctx, c.ID, "studio flooded")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Users)
	assert.Equal(t, 2, res.Stored)
	assert.Equal(t, 1, res.Delivered)
	assert.Equal(t, 1, res.Push.Success)
	assert.Equal(t, 1, res.Push.Failed)
	assert.Equal(t, []int64{ana.ID}, res.Push.DeliveredTo)
	f.sender.AssertExpectations(t)

	assert.EqualValues(t, 2, f.countNotifications(t, model.NotificationClassCancelled, "priority = ?", "URGENT"))
	assert.EqualValues(t, 1, f.countNotifications(t, model.NotificationClassCancelled, "is_delivered = ? AND user_id = ?", true, ana.ID))
	assert.EqualValues(t, 1, f.countNotifications(t, model.NotificationClassCancelled, "is_delivered = ? AND user_id = ?", false, rui.ID),
		"a row whose push failed stays undelivered")
	active, err := f.subscriptions.ListActiveByUser(ctx, rui.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestNotificationTriggers_ClassReminderWithoutAttendees(t *testing.T) {
	f := newTriggerFixture(t)
	c := f.class(t, "Empty Class", time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC))

	res, err := f.triggers.ClassReminder(context.Background(), c.ID)
	require.NoError(t, err)
	assert.Zero(t, res.Users)
	assert.Zero(t, f.countNotifications(t, model.NotificationClassReminder, ""))
}

func TestNotificationTriggers_EventReminders(t *testing.T) {
	ctx := context.Background()
	f := newTriggerFixture(t)
	e := f.event(t, "Spring Social", time.Date(2026, 3, 8, 20, 0, 0, 0, time.UTC))
	u := f.user(t, "ana@example.com", model.RoleUser)
	f.booking(t, u.ID, nil, &e.ID, model.BookingConfirmed)
	f.subscribe(t, u.ID, "https://push.test/ana")

	var got []push.Payload
	var opts []push.Options
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			got = append(got, decodePayload(t, args))
			opts = append(opts, args.Get(3).(push.Options))
		}).
		Return(nil)

	_, err := f.triggers.EventReminder24h(ctx, e.ID)
	require.NoError(t, err)
	_, err = f.triggers.EventReminder1h(ctx, e.ID)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "📅 Event Tomorrow", got[0].Title)
	assert.False(t, got[0].RequireInteraction)
	assert.Equal(t, push.UrgencyNormal, opts[0].Urgency)
	assert.Equal(t, "⏰ Event Starting Soon", got[1].Title)
	assert.True(t, got[1].RequireInteraction)
	assert.Equal(t, push.UrgencyHigh, opts[1].Urgency)
	assert.EqualValues(t, 1, f.countNotifications(t, model.NotificationEventReminder, "priority = ?", "NORMAL"))
	assert.EqualValues(t, 1, f.countNotifications(t, model.NotificationEventReminder, "priority = ?", "HIGH"))
}

func TestNotificationTriggers_WaitlistAndInstructorMessage(t *testing.T) {
	ctx := context.Background()
	f := newTriggerFixture(t)
	c := f.class(t, "Salsa Basics", time.Date(2026, 3, 8, 18, 0, 0, 0, time.UTC))
	u := f.user(t, "ana@example.com", model.RoleUser)
	f.subscribe(t, u.ID, "https://push.test/ana")
	f.booking(t, u.ID, &c.ID, nil, model.BookingConfirmed)
	instructor := f.user(t, "marta@example.com", model.RoleInstructor)

	var got []push.Payload
	f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { got = append(got, decodePayload(t, args)) }).
		Return(nil)

	require.NoError(t, f.triggers.WaitlistSpotAvailable(ctx, u.ID, c.ID))
	_, err := f.triggers.InstructorMessage(ctx, instructor.ID, c.ID, "Bring water")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "🎯 Spot Available!", got[0].Title)
	assert.True(t, got[0].RequireInteraction)
	assert.Equal(t, "💬 Message from Test m", got[1].Title)
	assert.Equal(t, "Salsa Basics: Bring water", got[1].Body)
	assert.False(t, got[1].RequireInteraction)
}

func TestNotificationTriggers_SystemAnnouncement(t *testing.T) {
	tests := []struct {
		priority    model.NotificationPriority
		wantUrgency push.Urgency
		wantRequire bool
	}{
		{"", push.UrgencyNormal, false},
		{model.PriorityHigh, push.UrgencyHigh, false},
		{model.PriorityUrgent, push.UrgencyHigh, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			f := newTriggerFixture(t)
			u := f.user(t, "ana@example.com", model.RoleUser)
			f.subscribe(t, u.ID, "https://push.test/ana")

			var payload push.Payload
			var opts push.Options
			f.sender.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Run(func(args mock.Arguments) {
					payload = decodePayload(t, args)
					opts = args.Get(3).(push.Options)
				}).
				Return(nil).Once()

			res, err := f.triggers.SystemAnnouncement(context.Background(), []int64{u.ID}, "Maintenance", "Back soon", tt.priority)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Stored)
			assert.Equal(t, "📢 Maintenance", payload.Title)
			assert.Equal(t, tt.wantRequire, payload.RequireInteraction)
			assert.Equal(t, tt.wantUrgency, opts.Urgency)
		})
	}
}

func TestNotificationTriggers_NewUserRegistered(t *testing.T) {
	ctx := context.Background()
	f := newTriggerFixture(t)
	boss := f.user(t, "boss@example.com", model.RoleAdmin)
	ops := f.user(t, "ops@example.com", model.RoleAdmin)
	u := f.user(t, "ana@example.com", model.RoleUser)

	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m email.Message) bool {
		return m.To == "ana@example.com" && m.Template == email.TemplateWelcome
	})).Return(nil).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m email.Message) bool {
		return m.To == "boss@example.com" && m.Template == email.TemplateAdminNewUser
	})).Return(errors.New("mailbox full")).Once()
	f.mailer.On("Send", mock.Anything, mock.MatchedBy(func(m email.Message) bool {
		return m.To == "ops@example.com" && m.Template == email.TemplateAdminNewUser && strings.Contains(m.Text, "3")
	})).Return(nil).Once()

	require.NoError(t, f.triggers.NewUserRegistered(ctx, u.ID))
	f.mailer.AssertExpectations(t)

	assert.EqualValues(t, 1, f.countNotifications(t, model.NotificationNewUserRegistered, "user_id = ? AND delivery_method = ?", boss.ID, "IN_APP"))
	assert.EqualValues(t, 1, f.countNotifications(t, model.NotificationNewUserRegistered, "user_id = ? AND delivery_method = ?", ops.ID, "IN_APP"))
	f.sender.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
