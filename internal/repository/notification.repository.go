package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"gorm.io/gorm"
)

var ErrNotificationNotFound = errors.New("notification not found")

const notificationBatchSize = 100

type NotificationRepository struct {
	*pg.DB
}

func NewNotificationRepository(db *pg.DB) *NotificationRepository {
	return &NotificationRepository{
		db,
	}
}

func (r *NotificationRepository) Create(ctx context.Context, n *model.Notification) (*model.Notification, error) {
	entity := toNotificationEntity(n)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toNotificationModel(entity), nil
}

// CreateBatch inserts all rows in chunks and returns them with ids set.
func (r *NotificationRepository) CreateBatch(ctx context.Context, ns []*model.Notification) ([]*model.Notification, error) {
	if len(ns) == 0 {
		return nil, nil
	}
	entities := make([]*NotificationEntity, len(ns))
	for i, n := range ns {
		entities[i] = toNotificationEntity(n)
	}
	if err := r.Write(ctx).CreateInBatches(entities, notificationBatchSize).Error; err != nil {
		return nil, err
	}
	return toNotificationModels(entities), nil
}

func (r *NotificationRepository) Get(ctx context.Context, id int64) (*model.Notification, error) {
	return r.get(r.Read(ctx), id)
}

// GetPrimary reads the row from the primary, for checks a lagging replica
// could answer wrong.
func (r *NotificationRepository) GetPrimary(ctx context.Context, id int64) (*model.Notification, error) {
	return r.get(r.Write(ctx), id)
}

func (r *NotificationRepository) get(db *gorm.DB, id int64) (*model.Notification, error) {
	var entity NotificationEntity
	if err := db.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotificationNotFound
		}
		return nil, err
	}
	return toNotificationModel(&entity), nil
}

// MarkDelivered flips is_delivered once. It reports false when the row was
// already delivered or does not exist.
func (r *NotificationRepository) MarkDelivered(ctx context.Context, id int64, at time.Time) (bool, error) {
	result := r.Write(ctx).
		Model(&NotificationEntity{}).
		Where("id = ? AND is_delivered = ?", id, false).
		Updates(map[string]any{
			"is_delivered": true,
			"delivered_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// MarkDeliveredMany flips every listed row that is not delivered yet.
func (r *NotificationRepository) MarkDeliveredMany(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.Write(ctx).
		Model(&NotificationEntity{}).
		Where("id IN ? AND is_delivered = ?", ids, false).
		Updates(map[string]any{
			"is_delivered": true,
			"delivered_at": at,
		})
	return result.RowsAffected, result.Error
}

// MarkSkipped closes an undelivered row that will not be pushed. The row
// keeps is_delivered false and records why.
func (r *NotificationRepository) MarkSkipped(ctx context.Context, id int64, reason string, at time.Time) (bool, error) {
	result := r.Write(ctx).
		Model(&NotificationEntity{}).
		Where("id = ? AND is_delivered = ? AND skipped_at IS NULL", id, false).
		Updates(map[string]any{
			"skipped_at":  at,
			"skip_reason": reason,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// ListDueScheduled returns undelivered, unskipped notifications whose scheduled time has passed.
func (r *NotificationRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 200
	}
	var entities []*NotificationEntity
	err := r.Read(ctx).
		Where("scheduled_for IS NOT NULL AND scheduled_for <= ? AND is_delivered = ? AND skipped_at IS NULL", now, false).
		Order("scheduled_for").
		Order("id").
		Limit(limit).
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	return toNotificationModels(entities), nil
}

type PushSubscriptionRepository struct {
	*pg.DB
}

func NewPushSubscriptionRepository(db *pg.DB) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{
		db,
	}
}

func (r *PushSubscriptionRepository) Create(ctx context.Context, s *model.PushSubscription) (*model.PushSubscription, error) {
	entity := &PushSubscriptionEntity{
		UserID:   s.UserID,
		Endpoint: s.Endpoint,
		P256dh:   s.P256dh,
		Auth:     s.Auth,
		IsActive: s.IsActive,
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toPushSubscriptionModel(entity), nil
}

func (r *PushSubscriptionRepository) ListActiveByUser(ctx context.Context, userID int64) ([]*model.PushSubscription, error) {
	var entities []*PushSubscriptionEntity
	err := r.Read(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("id").
		Find(&entities).
		Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.PushSubscription, len(entities))
	for i, e := range entities {
		out[i] = toPushSubscriptionModel(e)
	}
	return out, nil
}

// Deactivate marks the given subscriptions inactive in one statement.
func (r *PushSubscriptionRepository) Deactivate(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	result := r.Write(ctx).
		Model(&PushSubscriptionEntity{}).
		Where("id IN ?", ids).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

type PreferenceRepository struct {
	*pg.DB
}

func NewPreferenceRepository(db *pg.DB) *PreferenceRepository {
	return &PreferenceRepository{
		db,
	}
}

// Get returns nil without error when the user has no row for the type.
func (r *PreferenceRepository) Get(ctx context.Context, userID int64, t model.NotificationType) (*model.NotificationPreference, error) {
	var entity NotificationPreferenceEntity
	err := r.Read(ctx).
		Where("user_id = ? AND type = ?", userID, string(t)).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toPreferenceModel(&entity), nil
}

func (r *PreferenceRepository) Save(ctx context.Context, p *model.NotificationPreference) (*model.NotificationPreference, error) {
	entity := &NotificationPreferenceEntity{
		ID:              p.ID,
		UserID:          p.UserID,
		Type:            string(p.Type),
		PushEnabled:     p.PushEnabled,
		QuietHoursStart: p.QuietHoursStart,
		QuietHoursEnd:   p.QuietHoursEnd,
	}
	if err := r.Write(ctx).Save(entity).Error; err != nil {
		return nil, err
	}
	return toPreferenceModel(entity), nil
}
