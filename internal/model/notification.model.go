package model

import "time"

type NotificationType string

const (
	NotificationBookingConfirmed   NotificationType = "BOOKING_CONFIRMED"
	NotificationClassReminder      NotificationType = "CLASS_REMINDER"
	NotificationEventReminder      NotificationType = "EVENT_REMINDER"
	NotificationPaymentConfirmed   NotificationType = "PAYMENT_CONFIRMED"
	NotificationPaymentFailed      NotificationType = "PAYMENT_FAILED"
	NotificationClassCancelled     NotificationType = "CLASS_CANCELLED"
	NotificationWaitlistSpot       NotificationType = "WAITLIST_SPOT_AVAILABLE"
	NotificationInstructorMessage  NotificationType = "INSTRUCTOR_MESSAGE"
	NotificationSystemAnnouncement NotificationType = "SYSTEM_ANNOUNCEMENT"
	NotificationNewUserRegistered  NotificationType = "NEW_USER_REGISTERED"
)

type NotificationPriority string

const (
	PriorityLow    NotificationPriority = "LOW"
	PriorityNormal NotificationPriority = "NORMAL"
	PriorityHigh   NotificationPriority = "HIGH"
	PriorityUrgent NotificationPriority = "URGENT"
)

// IsElevated is true for HIGH and URGENT.
func (p NotificationPriority) IsElevated() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

type DeliveryMethod string

const (
	DeliveryPush  DeliveryMethod = "PUSH"
	DeliveryInApp DeliveryMethod = "IN_APP"
	DeliveryEmail DeliveryMethod = "EMAIL"
)

type Notification struct {
	ID                int64                `json:"id"`
	UserID            int64                `json:"user_id"`
	Type              NotificationType     `json:"type"`
	Title             string               `json:"title"`
	Message           string               `json:"message"`
	Priority          NotificationPriority `json:"priority"`
	ActionURL         string               `json:"action_url,omitempty"`
	RelatedEntityID   *int64               `json:"related_entity_id,omitempty"`
	RelatedEntityType string               `json:"related_entity_type,omitempty"`
	DeliveryMethod    DeliveryMethod       `json:"delivery_method"`
	IsDelivered       bool                 `json:"is_delivered"`
	DeliveredAt       *time.Time           `json:"delivered_at,omitempty"`
	SkippedAt         *time.Time           `json:"skipped_at,omitempty"`
	SkipReason        string               `json:"skip_reason,omitempty"`
	ScheduledFor      *time.Time           `json:"scheduled_for,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

// IsClosed reports whether the row needs no further delivery work.
func (n *Notification) IsClosed() bool {
	return n.IsDelivered || n.SkippedAt != nil
}

// IsDue reports whether the notification may be sent at now.
func (n *Notification) IsDue(now time.Time) bool {
	return n.ScheduledFor == nil || !n.ScheduledFor.After(now)
}

type PushSubscription struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Endpoint  string    `json:"endpoint"`
	P256dh    string    `json:"p256dh"`
	Auth      string    `json:"auth"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type NotificationPreference struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"user_id"`
	Type            NotificationType `json:"type"`
	PushEnabled     bool             `json:"push_enabled"`
	QuietHoursStart *string          `json:"quiet_hours_start,omitempty"`
	QuietHoursEnd   *string          `json:"quiet_hours_end,omitempty"`
}
