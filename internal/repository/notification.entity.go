package repository

import (
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
)

type NotificationEntity struct {
	ID                int64      `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	UserID            int64      `db:"user_id"             gorm:"column:user_id;not null;index"`
	Type              string     `db:"type"                gorm:"column:type;not null"`
	Title             string     `db:"title"               gorm:"column:title;not null"`
	Message           string     `db:"message"             gorm:"column:message;not null"`
	Priority          string     `db:"priority"            gorm:"column:priority;not null;default:NORMAL"`
	ActionURL         string     `db:"action_url"          gorm:"column:action_url"`
	RelatedEntityID   *int64     `db:"related_entity_id"   gorm:"column:related_entity_id"`
	RelatedEntityType string     `db:"related_entity_type" gorm:"column:related_entity_type"`
	DeliveryMethod    string     `db:"delivery_method"     gorm:"column:delivery_method;not null;default:PUSH"`
	IsDelivered       bool       `db:"is_delivered"        gorm:"column:is_delivered;not null;default:false;index:idx_notifications_due,priority:2"`
	DeliveredAt       *time.Time `db:"delivered_at"        gorm:"column:delivered_at"`
	SkippedAt         *time.Time `db:"skipped_at"          gorm:"column:skipped_at"`
	SkipReason        string     `db:"skip_reason"         gorm:"column:skip_reason"`
	ScheduledFor      *time.Time `db:"scheduled_for"       gorm:"column:scheduled_for;index:idx_notifications_due,priority:1"`
	CreatedAt         time.Time  `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
}

func (NotificationEntity) TableName() string {
	return "notifications"
}

func toNotificationEntity(m *model.Notification) *NotificationEntity {
	if m == nil {
		return nil
	}
	return &NotificationEntity{
		ID:                m.ID,
		UserID:            m.UserID,
		Type:              string(m.Type),
		Title:             m.Title,
		Message:           m.Message,
		Priority:          string(m.Priority),
		ActionURL:         m.ActionURL,
		RelatedEntityID:   m.RelatedEntityID,
		RelatedEntityType: m.RelatedEntityType,
		DeliveryMethod:    string(m.DeliveryMethod),
		IsDelivered:       m.IsDelivered,
		DeliveredAt:       m.DeliveredAt,
		SkippedAt:         m.SkippedAt,
		SkipReason:        m.SkipReason,
		ScheduledFor:      m.ScheduledFor,
		CreatedAt:         m.CreatedAt,
	}
}

func toNotificationModel(e *NotificationEntity) *model.Notification {
	if e == nil {
		return nil
	}
	return &model.Notification{
		ID:                e.ID,
		UserID:            e.UserID,
		Type:              model.NotificationType(e.Type),
		Title:             e.Title,
		Message:           e.Message,
		Priority:          model.NotificationPriority(e.Priority),
		ActionURL:         e.ActionURL,
		RelatedEntityID:   e.RelatedEntityID,
		RelatedEntityType: e.RelatedEntityType,
		DeliveryMethod:    model.DeliveryMethod(e.DeliveryMethod),
		IsDelivered:       e.IsDelivered,
		DeliveredAt:       e.DeliveredAt,
		SkippedAt:         e.SkippedAt,
		SkipReason:        e.SkipReason,
		ScheduledFor:      e.ScheduledFor,
		CreatedAt:         e.CreatedAt,
	}
}

func toNotificationModels(entities []*NotificationEntity) []*model.Notification {
	if entities == nil {
		return nil
	}
	models := make([]*model.Notification, len(entities))
	for i, e := range entities {
		models[i] = toNotificationModel(e)
	}
	return models
}

type PushSubscriptionEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	UserID    int64     `db:"user_id"    gorm:"column:user_id;not null;index"`
	Endpoint  string    `db:"endpoint"   gorm:"column:endpoint;not null;uniqueIndex"`
	P256dh    string    `db:"p256dh"     gorm:"column:p256dh;not null"`
	Auth      string    `db:"auth"       gorm:"column:auth;not null"`
	IsActive  bool      `db:"is_active"  gorm:"column:is_active;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (PushSubscriptionEntity) TableName() string {
	return "push_subscriptions"
}

func toPushSubscriptionModel(e *PushSubscriptionEntity) *model.PushSubscription {
	if e == nil {
		return nil
	}
	return &model.PushSubscription{
		ID:        e.ID,
		UserID:    e.UserID,
		Endpoint:  e.Endpoint,
		P256dh:    e.P256dh,
		Auth:      e.Auth,
		IsActive:  e.IsActive,
		CreatedAt: e.CreatedAt,
	}
}

type NotificationPreferenceEntity struct {
	ID              int64   `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	UserID          int64   `db:"user_id"           gorm:"column:user_id;not null;uniqueIndex:idx_preferences_user_type"`
	Type            string  `db:"type"              gorm:"column:type;not null;uniqueIndex:idx_preferences_user_type"`
	PushEnabled     bool    `db:"push_enabled"      gorm:"column:push_enabled;not null"`
	QuietHoursStart *string `db:"quiet_hours_start" gorm:"column:quiet_hours_start"`
	QuietHoursEnd   *string `db:"quiet_hours_end"   gorm:"column:quiet_hours_end"`
}

func (NotificationPreferenceEntity) TableName() string {
	return "notification_preferences"
}

func toPreferenceModel(e *NotificationPreferenceEntity) *model.NotificationPreference {
	if e == nil {
		return nil
	}
	return &model.NotificationPreference{
		ID:              e.ID,
		UserID:          e.UserID,
		Type:            model.NotificationType(e.Type),
		PushEnabled:     e.PushEnabled,
		QuietHoursStart: e.QuietHoursStart,
		QuietHoursEnd:   e.QuietHoursEnd,
	}
}
