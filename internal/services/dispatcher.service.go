package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/push"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/prom"
	"github.com/nimasrn/studio-gateway/pkg/settle"
)

var ErrNoActiveSubscriptions = errors.New("no active push subscriptions")

const (
	defaultPushTTL        = 86400
	defaultPushFanout     = 8
	defaultScheduledBatch = 200
	scheduledLockTTL      = 5 * time.Minute

	iconPath  = "/icons/icon-192x192.png"
	badgePath = "/icons/badge-72x72.png"
)

type SubscriptionStore interface {
	ListActiveByUser(ctx context.Context, userID int64) ([]*model.PushSubscription, error)
	Deactivate(ctx context.Context, ids []int64) (int64, error)
}

type PreferenceStore interface {
	Get(ctx context.Context, userID int64, t model.NotificationType) (*model.NotificationPreference, error)
}

type NotificationStore interface {
	Create(ctx context.Context, n *model.Notification) (*model.Notification, error)
	CreateBatch(ctx context.Context, ns []*model.Notification) ([]*model.Notification, error)
	GetPrimary(ctx context.Context, id int64) (*model.Notification, error)
	MarkDelivered(ctx context.Context, id int64, at time.Time) (bool, error)
	MarkSkipped(ctx context.Context, id int64, reason string, at time.Time) (bool, error)
	ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error)
}

// Locker hands out short-lived exclusive locks shared between processes.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// SendResult is the settled outcome of pushing to every endpoint of one user.
type SendResult struct {
	Success     int
	Failed      int
	Deactivated int
	Errors      []error
}

func (r SendResult) Delivered() bool { return r.Success > 0 }

// NoSubscriptions reports that the user had nothing to deliver to.
func (r SendResult) NoSubscriptions() bool {
	for _, err := range r.Errors {
		if errors.Is(err, ErrNoActiveSubscriptions) {
			return true
		}
	}
	return false
}

type BatchResult struct {
	Users   int
	Success int
	Failed  int
	Errors  []error
	// DeliveredTo lists the users with at least one successful endpoint.
	DeliveredTo []int64
}

// Skip reasons. SkipNoSubscriptions is only recorded on scheduled rows.
const (
	SkipPushDisabled    = "push_disabled"
	SkipQuietHours      = "quiet_hours"
	SkipNoSubscriptions = "no_subscriptions"
)

type DeliveryOutcome struct {
	Skipped    string
	Result     SendResult
	Attempted  bool
	Preference *model.NotificationPreference
}

func (o DeliveryOutcome) Delivered() bool { return o.Attempted && o.Result.Delivered() }

// NotificationRequest describes one notification for one user.
type NotificationRequest struct {
	UserID            int64
	Type              model.NotificationType
	Title             string
	Message           string
	Priority          model.NotificationPriority
	ActionURL         string
	RelatedEntityID   *int64
	RelatedEntityType string
	ScheduledFor      *time.Time
	Urgency           push.Urgency
	TTL               int
	// RequireInteraction overrides the priority based default.
	RequireInteraction *bool
}

type CreateResult struct {
	Notification *model.Notification
	Push         DeliveryOutcome
	Scheduled    bool
}

type ScheduledResult struct {
	Processed int
	Delivered int
	Skipped   int
	Locked    int
	Failed    int
	Errors    []error
}

type DispatcherOption func(*NotificationDispatcher)

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *NotificationDispatcher) { d.now = now }
}

// WithLocation sets the zone quiet hours are evaluated in.
func WithLocation(loc *time.Location) DispatcherOption {
	return func(d *NotificationDispatcher) {
		if loc != nil {
			d.loc = loc
		}
	}
}

func WithLocker(l Locker) DispatcherOption {
	return func(d *NotificationDispatcher) { d.locker = l }
}

func WithDefaultTTL(seconds int) DispatcherOption {
	return func(d *NotificationDispatcher) {
		if seconds > 0 {
			d.ttl = seconds
		}
	}
}

func WithFanout(n int) DispatcherOption {
	return func(d *NotificationDispatcher) {
		if n > 0 {
			d.fanout = n
		}
	}
}

func WithScheduledBatch(n int) DispatcherOption {
	return func(d *NotificationDispatcher) {
		if n > 0 {
			d.batch = n
		}
	}
}

// NotificationDispatcher delivers web push notifications and keeps the
// notification log and the subscription list in sync with the outcome.
type NotificationDispatcher struct {
	sender        push.Sender
	subscriptions SubscriptionStore
	preferences   PreferenceStore
	notifications NotificationStore
	locker        Locker

	now    func() time.Time
	loc    *time.Location
	ttl    int
	fanout int
	batch  int
}

func NewNotificationDispatcher(
	sender push.Sender,
	subscriptions SubscriptionStore,
	preferences PreferenceStore,
	notifications NotificationStore,
	opts ...DispatcherOption,
) *NotificationDispatcher {
	d := &NotificationDispatcher{
		sender:        sender,
		subscriptions: subscriptions,
		preferences:   preferences,
		notifications: notifications,
		now:           time.Now,
		loc:           time.UTC,
		ttl:           defaultPushTTL,
		fanout:        defaultPushFanout,
		batch:         defaultScheduledBatch,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SendToUser pushes payload to every active endpoint of the user. Endpoints
// are attempted independently; the ones the push service reports as gone
// are deactivated in one update afterwards.
func (d *NotificationDispatcher) SendToUser(ctx context.Context, userID int64, payload push.Payload, opts push.Options) SendResult {
	subs, err := d.subscriptions.ListActiveByUser(ctx, userID)
	if err != nil {
		logger.Error("failed to load push subscriptions", "user_id", userID, "error", err)
		return SendResult{Errors: []error{fmt.Errorf("load subscriptions for user %d: %w", userID, err)}}
	}
	if len(subs) == 0 {
		return SendResult{Errors: []error{fmt.Errorf("user %d: %w", userID, ErrNoActiveSubscriptions)}}
	}

	body, err := payload.Encode()
	if err != nil {
		return SendResult{Failed: len(subs), Errors: []error{fmt.Errorf("encode push payload: %w", err)}}
	}
	opts = d.withDefaults(opts)

	outcomes := settle.Map(ctx, subs, d.fanout, func(ctx context.Context, s *model.PushSubscription) (struct{}, error) {
		return struct{}{}, d.sender.Send(ctx, push.Subscription{
			ID:       s.ID,
			Endpoint: s.Endpoint,
			P256dh:   s.P256dh,
			Auth:     s.Auth,
		}, body, opts)
	})

	var res SendResult
	var gone []int64
	for i, o := range outcomes {
		if o.OK() {
			res.Success++
			continue
		}
		res.Failed++
		res.Errors = append(res.Errors, o.Err)
		if push.IsGone(o.Err) {
			gone = append(gone, subs[i].ID)
		}
	}

	if len(gone) > 0 {
		n, err := d.subscriptions.Deactivate(ctx, gone)
		if err != nil {
			logger.Error("failed to deactivate gone push subscriptions", "user_id", userID, "ids", gone, "error", err)
		} else {
			res.Deactivated = int(n)
			prom.AddSubscriptionsDeactivated(int(n))
			logger.Info("deactivated gone push subscriptions", "user_id", userID, "count", n)
		}
	}

	prom.AddPushDeliveries("sent", res.Success)
	prom.AddPushDeliveries("failed", res.Failed)
	if res.Failed > 0 {
		logger.Warn("push delivery partially failed", "user_id", userID, "success", res.Success, "failed", res.Failed)
	}
	return res
}

// SendToUsers fans SendToUser out over userIDs and sums the results.
func (d *NotificationDispatcher) SendToUsers(ctx context.Context, userIDs []int64, payload push.Payload, opts push.Options) BatchResult {
	outcomes := settle.Map(ctx, userIDs, d.fanout, func(ctx context.Context, id int64) (SendResult, error) {
		return d.SendToUser(ctx, id, payload, opts), nil
	})

	agg := BatchResult{Users: len(userIDs)}
	for i, o := range outcomes {
		if o.Err != nil {
			agg.Failed++
			agg.Errors = append(agg.Errors, o.Err)
			continue
		}
		if o.Value.Delivered() {
			agg.DeliveredTo = append(agg.DeliveredTo, userIDs[i])
		}
		agg.Success += o.Value.Success
		agg.Failed += o.Value.Failed
		agg.Errors = append(agg.Errors, o.Value.Errors...)
	}
	return agg
}

// SendNotificationWithPreferences pushes unless the user turned this type
// off or is inside their quiet hours. A missing preference means enabled.
func (d *NotificationDispatcher) SendNotificationWithPreferences(ctx context.Context, userID int64, t model.NotificationType, payload push.Payload, opts push.Options) bool {
	return d.deliver(ctx, userID, t, payload, opts).Delivered()
}

func (d *NotificationDispatcher) deliver(ctx context.Context, userID int64, t model.NotificationType, payload push.Payload, opts push.Options) DeliveryOutcome {
	pref, err := d.preferences.Get(ctx, userID, t)
	if err != nil {
		logger.Warn("failed to load notification preference, using defaults", "user_id", userID, "type", t, "error", err)
		pref = nil
	}

	out := DeliveryOutcome{Preference: pref}
	if pref != nil {
		if !pref.PushEnabled {
			out.Skipped = SkipPushDisabled
			logger.Debug("push disabled by preference", "user_id", userID, "type", t)
			return out
		}
		if pref.QuietHoursStart != nil && pref.QuietHoursEnd != nil &&
			InQuietHours(*pref.QuietHoursStart, *pref.QuietHoursEnd, d.now().In(d.loc)) {
			out.Skipped = SkipQuietHours
			logger.Debug("push suppressed by quiet hours", "user_id", userID, "type", t)
			return out
		}
	}

	out.Attempted = true
	out.Result = d.SendToUser(ctx, userID, payload, opts)
	return out
}

// CreateAndSend stores the notification and, when it is due, pushes it.
// The row is written before any delivery so a record exists either way.
func (d *NotificationDispatcher) CreateAndSend(ctx context.Context, req NotificationRequest) (*CreateResult, error) {
	if req.Priority == "" {
		req.Priority = model.PriorityNormal
	}
	n, err := d.notifications.Create(ctx, &model.Notification{
		UserID:            req.UserID,
		Type:              req.Type,
		Title:             req.Title,
		Message:           req.Message,
		Priority:          req.Priority,
		ActionURL:         req.ActionURL,
		RelatedEntityID:   req.RelatedEntityID,
		RelatedEntityType: req.RelatedEntityType,
		DeliveryMethod:    model.DeliveryPush,
		ScheduledFor:      req.ScheduledFor,
	})
	if err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	res := &CreateResult{Notification: n}
	now := d.now()
	if !n.IsDue(now) {
		res.Scheduled = true
		logger.Debug("notification scheduled", "id", n.ID, "user_id", n.UserID, "scheduled_for", n.ScheduledFor)
		return res, nil
	}

	payload := buildPayload(n)
	if req.RequireInteraction != nil {
		payload.RequireInteraction = *req.RequireInteraction
	}
	res.Push = d.deliver(ctx, n.UserID, n.Type, payload, push.Options{
		Urgency: req.Urgency,
		TTL:     req.TTL,
	})
	if res.Push.Delivered() {
		d.markDelivered(ctx, n, now)
	}
	return res, nil
}

// ProcessScheduled delivers every due, undelivered scheduled notification.
// Rows are worked independently; one failure never stops the batch.
func (d *NotificationDispatcher) ProcessScheduled(ctx context.Context) (ScheduledResult, error) {
	now := d.now()
	due, err := d.notifications.ListDueScheduled(ctx, now, d.batch)
	if err != nil {
		return ScheduledResult{}, fmt.Errorf("list due notifications: %w", err)
	}
	if len(due) == 0 {
		return ScheduledResult{}, nil
	}

	outcomes := settle.Map(ctx, due, d.fanout, func(ctx context.Context, n *model.Notification) (string, error) {
		return d.processScheduledOne(ctx, n)
	})

	res := ScheduledResult{Processed: len(due)}
	for i, o := range outcomes {
		if o.Err != nil {
			res.Failed++
			res.Errors = append(res.Errors, o.Err)
			prom.IncScheduled("failed")
			logger.Error("scheduled notification failed", "id", due[i].ID, "error", o.Err)
			continue
		}
		switch o.Value {
		case "delivered":
			res.Delivered++
		case "locked":
			res.Locked++
		default:
			res.Skipped++
		}
		prom.IncScheduled(o.Value)
	}
	logger.Info("processed scheduled notifications",
		"processed", res.Processed, "delivered", res.Delivered, "skipped", res.Skipped,
		"locked", res.Locked, "failed", res.Failed)
	return res, nil
}

func (d *NotificationDispatcher) processScheduledOne(ctx context.Context, n *model.Notification) (string, error) {
	if d.locker != nil {
		release, ok, err := d.locker.TryLock(ctx, "notification:"+strconv.FormatInt(n.ID, 10), scheduledLockTTL)
		if err != nil {
			return "", fmt.Errorf("lock notification %d: %w", n.ID, err)
		}
		if !ok {
			return "locked", nil
		}
		defer release()

		// another worker may have finished it between the listing and the lock
		fresh, err := d.notifications.GetPrimary(ctx, n.ID)
		if err != nil {
			return "", fmt.Errorf("reload notification %d: %w", n.ID, err)
		}
		if fresh.IsClosed() {
			return "locked", nil
		}
		n = fresh
	}

	out := d.deliver(ctx, n.UserID, n.Type, buildPayload(n), push.Options{Urgency: urgencyFor(n.Priority)})
	switch {
	case out.Delivered():
		d.markDelivered(ctx, n, d.now())
		return "delivered", nil
	case out.Skipped == SkipPushDisabled:
		// retrying every tick would never succeed
		d.markSkipped(ctx, n, SkipPushDisabled)
		return "skipped", nil
	case out.Skipped == SkipQuietHours:
		return "deferred", nil
	case out.Attempted && out.Result.NoSubscriptions():
		d.markSkipped(ctx, n, SkipNoSubscriptions)
		return "skipped", nil
	}
	return "", fmt.Errorf("notification %d: %w", n.ID, errors.Join(out.Result.Errors...))
}

func (d *NotificationDispatcher) markDelivered(ctx context.Context, n *model.Notification, at time.Time) {
	updated, err := d.notifications.MarkDelivered(ctx, n.ID, at)
	if err != nil {
		logger.Error("failed to mark notification delivered", "id", n.ID, "error", err)
		return
	}
	if updated {
		n.IsDelivered = true
		n.DeliveredAt = &at
	}
}

func (d *NotificationDispatcher) markSkipped(ctx context.Context, n *model.Notification, reason string) {
	at := d.now()
	updated, err := d.notifications.MarkSkipped(ctx, n.ID, reason, at)
	if err != nil {
		logger.Error("failed to mark notification skipped", "id", n.ID, "reason", reason, "error", err)
		return
	}
	if updated {
		n.SkippedAt = &at
		n.SkipReason = reason
	}
}

func urgencyFor(p model.NotificationPriority) push.Urgency {
	switch p {
	case model.PriorityHigh, model.PriorityUrgent:
		return push.UrgencyHigh
	case model.PriorityLow:
		return push.UrgencyLow
	}
	return push.UrgencyNormal
}

func (d *NotificationDispatcher) withDefaults(opts push.Options) push.Options {
	if opts.TTL <= 0 {
		opts.TTL = d.ttl
	}
	if opts.Urgency == "" {
		opts.Urgency = push.UrgencyNormal
	}
	return opts
}

// buildPayload renders a stored notification as a push payload.
func buildPayload(n *model.Notification) push.Payload {
	url := n.ActionURL
	if url == "" {
		url = "/notifications"
	}
	data := map[string]any{
		"notificationId": n.ID,
		"type":           n.Type,
		"priority":       n.Priority,
	}
	if n.RelatedEntityID != nil {
		data["relatedEntityId"] = *n.RelatedEntityID
		data["relatedEntityType"] = n.RelatedEntityType
	}
	return push.Payload{
		Title:              n.Title,
		Body:               n.Message,
		Icon:               iconPath,
		Badge:              badgePath,
		URL:                url,
		Tag:                fmt.Sprintf("%s-%d", n.Type, n.ID),
		RequireInteraction: n.Priority.IsElevated(),
		Data:               data,
	}
}
