package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nimasrn/studio-gateway/internal/email"
	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/push"
	"github.com/nimasrn/studio-gateway/internal/repository"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/settle"
)

const timeLayout = "Mon 2 Jan, 15:04"

type BookingReader interface {
	GetDetails(ctx context.Context, id int64) (*model.BookingDetails, error)
	ConfirmedClassAttendees(ctx context.Context, classID int64) ([]int64, error)
	ConfirmedEventAttendees(ctx context.Context, eventID int64) ([]int64, error)
}

type CatalogReader interface {
	GetClass(ctx context.Context, id int64) (*model.ClassDetails, error)
	GetEvent(ctx context.Context, id int64) (*model.EventDetails, error)
}

type UserReader interface {
	Get(ctx context.Context, id int64) (*model.User, error)
	Count(ctx context.Context) (int64, error)
	ListByRole(ctx context.Context, role model.UserRole) ([]*model.User, error)
}

// Notifier is the part of the dispatcher the triggers drive.
type Notifier interface {
	CreateAndSend(ctx context.Context, req NotificationRequest) (*CreateResult, error)
	SendToUsers(ctx context.Context, userIDs []int64, payload push.Payload, opts push.Options) BatchResult
}

type NotificationWriter interface {
	CreateBatch(ctx context.Context, ns []*model.Notification) ([]*model.Notification, error)
	MarkDeliveredMany(ctx context.Context, ids []int64, at time.Time) (int64, error)
}

type TriggerConfig struct {
	BaseURL  string
	Location *time.Location
}

// BroadcastResult is the outcome of one notification sent to many users.
type BroadcastResult struct {
	Users     int
	Stored    int
	Delivered int
	Push      BatchResult
}

// NotificationTriggers turns domain events into push notifications,
// notification rows and emails.
type NotificationTriggers struct {
	notifier Notifier
	store    NotificationWriter
	bookings BookingReader
	catalog  CatalogReader
	users    UserReader
	mailer   email.Sender
	renderer *email.Renderer

	baseURL string
	loc     *time.Location
	now     func() time.Time
}

func NewNotificationTriggers(
	notifier Notifier,
	store NotificationWriter,
	bookings BookingReader,
	catalog CatalogReader,
	users UserReader,
	mailer email.Sender,
	renderer *email.Renderer,
	cfg TriggerConfig,
) *NotificationTriggers {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationTriggers{
		notifier: notifier,
		store:    store,
		bookings: bookings,
		catalog:  catalog,
		users:    users,
		mailer:   mailer,
		renderer: renderer,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		loc:      loc,
		now:      time.Now,
	}
}

func (t *NotificationTriggers) when(ts time.Time) string {
	return ts.In(t.loc).Format(timeLayout)
}

func (t *NotificationTriggers) link(format string, args ...any) string {
	return t.baseURL + fmt.Sprintf(format, args...)
}

func (t *NotificationTriggers) loadBooking(ctx context.Context, id int64) (*model.BookingDetails, error) {
	b, err := t.bookings.GetDetails(ctx, id)
	if errors.Is(err, repository.ErrBookingNotFound) {
		logger.Warn("booking not found, skipping notification", "booking_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load booking %d: %w", id, err)
	}
	return b, nil
}

func (t *NotificationTriggers) loadClass(ctx context.Context, id int64) (*model.ClassDetails, error) {
	c, err := t.catalog.GetClass(ctx, id)
	if errors.Is(err, repository.ErrClassNotFound) {
		logger.Warn("class not found, skipping notification", "class_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load class %d: %w", id, err)
	}
	return c, nil
}

func (t *NotificationTriggers) loadEvent(ctx context.Context, id int64) (*model.EventDetails, error) {
	e, err := t.catalog.GetEvent(ctx, id)
	if errors.Is(err, repository.ErrEventNotFound) {
		logger.Warn("event not found, skipping notification", "event_id", id)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load event %d: %w", id, err)
	}
	return e, nil
}

func (t *NotificationTriggers) single(ctx context.Context, req NotificationRequest) error {
	res, err := t.notifier.CreateAndSend(ctx, req)
	if err != nil {
		return err
	}
	logger.Info("notification created",
		"id", res.Notification.ID, "user_id", req.UserID, "type", req.Type,
		"delivered", res.Push.Delivered(), "skipped", res.Push.Skipped, "scheduled", res.Scheduled)
	return nil
}

// BookingConfirmed tells the customer their booking went through.
func (t *NotificationTriggers) BookingConfirmed(ctx context.Context, bookingID int64) error {
	b, err := t.loadBooking(ctx, bookingID)
	if err != nil || b == nil {
		return err
	}
	return t.single(ctx, NotificationRequest{
		UserID:            b.UserID,
		Type:              model.NotificationBookingConfirmed,
		Title:             "🎉 Booking Confirmed!",
		Message:           fmt.Sprintf("Your booking for %s on %s is confirmed. See you there!", b.Title(), t.when(b.StartsAt())),
		Priority:          model.PriorityHigh,
		ActionURL:         fmt.Sprintf("/bookings/%d", b.ID),
		RelatedEntityID:   &bookingID,
		RelatedEntityType: "booking",
	})
}

// SendBookingConfirmationEmail mails the booking summary to the customer.
func (t *NotificationTriggers) SendBookingConfirmationEmail(ctx context.Context, bookingID int64) error {
	b, err := t.loadBooking(ctx, bookingID)
	if err != nil || b == nil {
		return err
	}
	if b.User == nil || b.User.Email == "" {
		logger.Warn("booking has no customer email", "booking_id", bookingID)
		return nil
	}

	data := email.BookingConfirmationData{
		UserName:         b.User.DisplayName(),
		Title:            b.Title(),
		Kind:             b.Kind(),
		StartsAt:         t.when(b.StartsAt()),
		Host:             b.HostName(),
		Amount:           model.FormatAmount(b.TotalAmount, b.Currency),
		ConfirmationCode: b.ConfirmationCode,
		BookingURL:       t.link("/bookings/%d", b.ID),
	}
	if v := b.Venue(); v != nil {
		data.Venue = v.Name
		data.Address = strings.Trim(strings.Join([]string{v.Address, v.City}, ", "), ", ")
	}
	return t.sendEmail(ctx, email.TemplateBookingConfirmation, b.User.Email, data)
}

// PaymentConfirmation acknowledges a received payment.
func (t *NotificationTriggers) PaymentConfirmation(ctx context.Context, bookingID int64) error {
	b, err := t.loadBooking(ctx, bookingID)
	if err != nil || b == nil {
		return err
	}
	no := false
	return t.single(ctx, NotificationRequest{
		UserID:             b.UserID,
		Type:               model.NotificationPaymentConfirmed,
		Title:              "💳 Payment Received",
		Message:            fmt.Sprintf("We received your payment of %s for %s.", model.FormatAmount(b.AmountPaid, b.Currency), b.Title()),
		Priority:           model.PriorityNormal,
		ActionURL:          fmt.Sprintf("/bookings/%d", b.ID),
		RelatedEntityID:    &bookingID,
		RelatedEntityType:  "booking",
		RequireInteraction: &no,
	})
}

// PaymentFailed tells the customer by push and email that the payment did
// not go through. An email failure is logged and does not fail the trigger.
func (t *NotificationTriggers) PaymentFailed(ctx context.Context, bookingID int64, reason string) error {
	b, err := t.loadBooking(ctx, bookingID)
	if err != nil || b == nil {
		return err
	}

	msg := fmt.Sprintf("Your payment for %s could not be processed.", b.Title())
	if reason != "" {
		msg += " " + reason
	}
	if err := t.single(ctx, NotificationRequest{
		UserID:            b.UserID,
		Type:              model.NotificationPaymentFailed,
		Title:             "⚠️ Payment Failed",
		Message:           msg,
		Priority:          model.PriorityHigh,
		ActionURL:         fmt.Sprintf("/bookings/%d", b.ID),
		RelatedEntityID:   &bookingID,
		RelatedEntityType: "booking",
	}); err != nil {
		return err
	}

	if b.User == nil || b.User.Email == "" {
		return nil
	}
	if err := t.sendEmail(ctx, email.TemplatePaymentFailed, b.User.Email, email.PaymentFailedData{
		UserName: b.User.DisplayName(),
		Title:    b.Title(),
		Amount:   model.FormatAmount(b.TotalAmount, b.Currency),
		Reason:   reason,
		RetryURL: t.link("/bookings/%d", b.ID),
	}); err != nil {
		logger.Warn("payment failed email not sent", "booking_id", bookingID, "error", err)
	}
	return nil
}

// ClassReminder reminds everyone booked on the class that it starts in an hour.
func (t *NotificationTriggers) ClassReminder(ctx context.Context, classID int64) (*BroadcastResult, error) {
	c, err := t.loadClass(ctx, classID)
	if err != nil || c == nil {
		return nil, err
	}
	users, err := t.bookings.ConfirmedClassAttendees(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("class %d attendees: %w", classID, err)
	}
	return t.broadcast(ctx, users, broadcast{
		typ:         model.NotificationClassReminder,
		title:       "⏰ Class Starting Soon",
		message:     fmt.Sprintf("%s starts in 1 hour%s.", c.Title, atVenue(c.VenueName())),
		priority:    model.PriorityHigh,
		actionURL:   fmt.Sprintf("/classes/%d", c.ID),
		relatedID:   classID,
		relatedType: "class",
		urgency:     push.UrgencyHigh,
		require:     true,
	})
}

// EventReminder24h reminds attendees the day before an event.
func (t *NotificationTriggers) EventReminder24h(ctx context.Context, eventID int64) (*BroadcastResult, error) {
	return t.eventReminder(ctx, eventID, false)
}

// EventReminder1h reminds attendees an hour before an event.
func (t *NotificationTriggers) EventReminder1h(ctx context.Context, eventID int64) (*BroadcastResult, error) {
	return t.eventReminder(ctx, eventID, true)
}

func (t *NotificationTriggers) eventReminder(ctx context.Context, eventID int64, soon bool) (*BroadcastResult, error) {
	e, err := t.loadEvent(ctx, eventID)
	if err != nil || e == nil {
		return nil, err
	}
	users, err := t.bookings.ConfirmedEventAttendees(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("event %d attendees: %w", eventID, err)
	}

	b := broadcast{
		typ:         model.NotificationEventReminder,
		title:       "📅 Event Tomorrow",
		message:     fmt.Sprintf("Don't forget: %s is tomorrow at %s%s.", e.Title, e.StartTime.In(t.loc).Format("15:04"), atVenue(e.VenueName())),
		priority:    model.PriorityNormal,
		actionURL:   fmt.Sprintf("/events/%d", e.ID),
		relatedID:   eventID,
		relatedType: "event",
		urgency:     push.UrgencyNormal,
	}
	if soon {
		b.title = "⏰ Event Starting Soon"
		b.message = fmt.Sprintf("%s starts in 1 hour%s.", e.Title, atVenue(e.VenueName()))
		b.priority = model.PriorityHigh
		b.urgency = push.UrgencyHigh
		b.require = true
	}
	return t.broadcast(ctx, users, b)
}

// ClassCancelled tells every confirmed attendee the class will not happen.
func (t *NotificationTriggers) ClassCancelled(ctx context.Context, classID int64, reason string) (*BroadcastResult, error) {
	c, err := t.loadClass(ctx, classID)
	if err != nil || c == nil {
		return nil, err
	}
	users, err := t.bookings.ConfirmedClassAttendees(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("class %d attendees: %w", classID, err)
	}

	msg := fmt.Sprintf("%s on %s has been cancelled.", c.Title, t.when(c.StartTime))
	if reason != "" {
		msg += " Reason: " + reason
	}
	return t.broadcast(ctx, users, broadcast{
		typ:         model.NotificationClassCancelled,
		title:       "❌ Class Cancelled",
		message:     msg,
		priority:    model.PriorityUrgent,
		actionURL:   "/bookings",
		relatedID:   classID,
		relatedType: "class",
		urgency:     push.UrgencyHigh,
		require:     true,
	})
}

// WaitlistSpotAvailable tells a waitlisted user a place opened up.
func (t *NotificationTriggers) WaitlistSpotAvailable(ctx context.Context, userID, classID int64) error {
	c, err := t.loadClass(ctx, classID)
	if err != nil || c == nil {
		return err
	}
	return t.single(ctx, NotificationRequest{
		UserID:            userID,
		Type:              model.NotificationWaitlistSpot,
		Title:             "🎯 Spot Available!",
		Message:           fmt.Sprintf("A spot opened up in %s on %s. Book now before it's gone!", c.Title, t.when(c.StartTime)),
		Priority:          model.PriorityUrgent,
		ActionURL:         fmt.Sprintf("/classes/%d", c.ID),
		RelatedEntityID:   &classID,
		RelatedEntityType: "class",
		Urgency:           push.UrgencyHigh,
	})
}

// InstructorMessage relays a message from an instructor to the class attendees.
func (t *NotificationTriggers) InstructorMessage(ctx context.Context, instructorUserID, classID int64, message string) (*BroadcastResult, error) {
	c, err := t.loadClass(ctx, classID)
	if err != nil || c == nil {
		return nil, err
	}

	name := ""
	if u, err := t.users.Get(ctx, instructorUserID); err == nil {
		name = u.DisplayName()
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("load instructor %d: %w", instructorUserID, err)
	}
	if name == "" && c.Instructor != nil {
		name = c.Instructor.Name
	}
	if name == "" {
		name = "your instructor"
	}

	users, err := t.bookings.ConfirmedClassAttendees(ctx, classID)
	if err != nil {
		return nil, fmt.Errorf("class %d attendees: %w", classID, err)
	}
	return t.broadcast(ctx, users, broadcast{
		typ:         model.NotificationInstructorMessage,
		title:       "💬 Message from " + name,
		message:     fmt.Sprintf("%s: %s", c.Title, message),
		priority:    model.PriorityNormal,
		actionURL:   fmt.Sprintf("/classes/%d", c.ID),
		relatedID:   classID,
		relatedType: "class",
	})
}

// SystemAnnouncement sends an operator message to the given users.
func (t *NotificationTriggers) SystemAnnouncement(ctx context.Context, userIDs []int64, title, message string, priority model.NotificationPriority) (*BroadcastResult, error) {
	if priority == "" {
		priority = model.PriorityNormal
	}
	urgency := push.UrgencyNormal
	if priority.IsElevated() {
		urgency = push.UrgencyHigh
	}
	return t.broadcast(ctx, userIDs, broadcast{
		typ:       model.NotificationSystemAnnouncement,
		title:     "📢 " + title,
		message:   message,
		priority:  priority,
		actionURL: "/notifications",
		urgency:   urgency,
		require:   priority == model.PriorityUrgent,
	})
}

// NewUserRegistered welcomes the user and tells every admin about them.
// Each email is attempted on its own; only a failure to store the admin
// notifications is returned.
func (t *NotificationTriggers) NewUserRegistered(ctx context.Context, userID int64) error {
	user, err := t.users.Get(ctx, userID)
	if errors.Is(err, repository.ErrUserNotFound) {
		logger.Warn("new user not found, skipping notifications", "user_id", userID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user %d: %w", userID, err)
	}

	total, err := t.users.Count(ctx)
	if err != nil {
		logger.Warn("failed to count users", "error", err)
	}

	if user.Email != "" {
		if err := t.sendEmail(ctx, email.TemplateWelcome, user.Email, email.WelcomeData{
			UserName: user.DisplayName(),
			AppURL:   t.link("/"),
		}); err != nil {
			logger.Warn("welcome email not sent", "user_id", userID, "error", err)
		}
	}

	admins, err := t.users.ListByRole(ctx, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	if len(admins) == 0 {
		logger.Info("no admins to notify about new user", "user_id", userID)
		return nil
	}

	rows := make([]*model.Notification, 0, len(admins))
	for _, a := range admins {
		rows = append(rows, &model.Notification{
			UserID:            a.ID,
			Type:              model.NotificationNewUserRegistered,
			Title:             "👤 New User Registered",
			Message:           fmt.Sprintf("%s (%s) just signed up. Total users: %d.", user.DisplayName(), user.Email, total),
			Priority:          model.PriorityNormal,
			ActionURL:         fmt.Sprintf("/admin/users/%d", user.ID),
			RelatedEntityID:   &user.ID,
			RelatedEntityType: "user",
			DeliveryMethod:    model.DeliveryInApp,
		})
	}

	var sent int
	errs := settle.Run(ctx,
		func(ctx context.Context) error {
			outcomes := settle.Map(ctx, admins, 0, func(ctx context.Context, a *model.User) (struct{}, error) {
				if a.Email == "" {
					return struct{}{}, nil
				}
				return struct{}{}, t.sendEmail(ctx, email.TemplateAdminNewUser, a.Email, email.AdminNewUserData{
					AdminName:  a.DisplayName(),
					UserName:   user.DisplayName(),
					UserEmail:  user.Email,
					TotalUsers: total,
					AdminURL:   t.link("/admin/users/%d", user.ID),
				})
			})
			for i, o := range outcomes {
				if o.Err != nil {
					logger.Warn("admin new user email not sent", "admin_id", admins[i].ID, "error", o.Err)
					continue
				}
				sent++
			}
			return nil
		},
		func(ctx context.Context) error {
			_, err := t.store.CreateBatch(ctx, rows)
			return err
		},
	)
	logger.Info("new user notifications sent", "user_id", userID, "admins", len(admins), "emails", sent)
	if errs[1] != nil {
		return fmt.Errorf("store admin notifications: %w", errs[1])
	}
	return nil
}

type broadcast struct {
	typ         model.NotificationType
	title       string
	message     string
	priority    model.NotificationPriority
	actionURL   string
	relatedID   int64
	relatedType string
	urgency     push.Urgency
	require     bool
}

// broadcast pushes one notification to many users and stores a row per
// user. Both run side by side. Rows are inserted undelivered and flipped
// afterwards for the users the push reached.
func (t *NotificationTriggers) broadcast(ctx context.Context, userIDs []int64, b broadcast) (*BroadcastResult, error) {
	if len(userIDs) == 0 {
		logger.Info("no recipients for notification", "type", b.typ, "related_id", b.relatedID)
		return &BroadcastResult{}, nil
	}

	now := t.now()
	var related *int64
	if b.relatedID != 0 {
		related = &b.relatedID
	}
	rows := make([]*model.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, &model.Notification{
			UserID:            id,
			Type:              b.typ,
			Title:             b.title,
			Message:           b.message,
			Priority:          b.priority,
			ActionURL:         b.actionURL,
			RelatedEntityID:   related,
			RelatedEntityType: b.relatedType,
			DeliveryMethod:    model.DeliveryPush,
		})
	}

	data := map[string]any{"type": b.typ, "priority": b.priority}
	if related != nil {
		data["relatedEntityId"] = b.relatedID
		data["relatedEntityType"] = b.relatedType
	}
	payload := push.Payload{
		Title:              b.title,
		Body:               b.message,
		Icon:               iconPath,
		Badge:              badgePath,
		URL:                b.actionURL,
		Tag:                fmt.Sprintf("%s-%d", b.typ, b.relatedID),
		RequireInteraction: b.require,
		Data:               data,
	}

	res := &BroadcastResult{Users: len(userIDs)}
	var stored []*model.Notification
	errs := settle.Run(ctx,
		func(ctx context.Context) error {
			res.Push = t.notifier.SendToUsers(ctx, userIDs, payload, push.Options{Urgency: b.urgency})
			return nil
		},
		func(ctx context.Context) error {
			var err error
			stored, err = t.store.CreateBatch(ctx, rows)
			res.Stored = len(stored)
			return err
		},
	)
	if errs[1] != nil {
		logger.Error("notification broadcast not stored", "type", b.typ, "users", res.Users,
			"push_success", res.Push.Success, "error", errs[1])
		return res, fmt.Errorf("store %s notifications: %w", b.typ, errs[1])
	}

	if ids := rowsFor(stored, res.Push.DeliveredTo); len(ids) > 0 {
		n, err := t.store.MarkDeliveredMany(ctx, ids, now)
		if err != nil {
			logger.Error("failed to mark broadcast notifications delivered", "type", b.typ, "error", err)
		}
		res.Delivered = int(n)
	}
	logger.Info("notification broadcast",
		"type", b.typ, "users", res.Users, "push_success", res.Push.Success,
		"push_failed", res.Push.Failed, "stored", res.Stored, "delivered", res.Delivered)
	return res, nil
}

// rowsFor picks the ids of the stored rows that belong to users.
func rowsFor(stored []*model.Notification, users []int64) []int64 {
	if len(users) == 0 {
		return nil
	}
	reached := make(map[int64]bool, len(users))
	for _, id := range users {
		reached[id] = true
	}
	var ids []int64
	for _, n := range stored {
		if reached[n.UserID] {
			ids = append(ids, n.ID)
		}
	}
	return ids
}

func (t *NotificationTriggers) sendEmail(ctx context.Context, template, to string, data any) error {
	msg, err := t.renderer.Render(template, to, data)
	if err != nil {
		return err
	}
	return t.mailer.Send(ctx, msg)
}

func atVenue(name string) string {
	if name == "" {
		return ""
	}
	return " at " + name
}
