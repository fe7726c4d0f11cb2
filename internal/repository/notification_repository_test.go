package repository

import (
	"context"
	"testing"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRepository_ScheduledLifecycle(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewNotificationRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	due, err := repo.Create(ctx, &model.Notification{UserID: 1, Type: model.NotificationClassReminder, Title: "t", Message: "m", Priority: model.PriorityHigh, DeliveryMethod: model.DeliveryPush, ScheduledFor: &past})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.Notification{UserID: 1, Type: model.NotificationClassReminder, Title: "t", Message: "m", Priority: model.PriorityHigh, DeliveryMethod: model.DeliveryPush, ScheduledFor: &future})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.Notification{UserID: 1, Type: model.NotificationSystemAnnouncement, Title: "t", Message: "m", Priority: model.PriorityNormal, DeliveryMethod: model.DeliveryPush})
	require.NoError(t, err)

	list, err := repo.ListDueScheduled(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, due.ID, list[0].ID)

	ok, err := repo.MarkDelivered(ctx, due.ID, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkDelivered(ctx, due.ID, now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok, "second mark must not flip the row again")

	got, err := repo.Get(ctx, due.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDelivered)
	require.NotNil(t, got.DeliveredAt)
	assert.True(t, got.DeliveredAt.Equal(now))

	list, err = repo.ListDueScheduled(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotificationRepository_MarkSkipped(t *testing.T) {
	repo := NewNotificationRepository(setupTestDB(t).DB)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)

	n, err := repo.Create(ctx, &model.Notification{UserID: 1, Type: model.NotificationEventReminder, Title: "t", Message: "m", Priority: model.PriorityNormal, DeliveryMethod: model.DeliveryPush, ScheduledFor: &past})
	require.NoError(t, err)

	ok, err := repo.MarkSkipped(ctx, n.ID, "push_disabled", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkSkipped(ctx, n.ID, "no_subscriptions", now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDelivered)
	assert.Nil(t, got.DeliveredAt)
	require.NotNil(t, got.SkippedAt)
	assert.Equal(t, "push_disabled", got.SkipReason)
	assert.True(t, got.IsClosed())

	list, err := repo.ListDueScheduled(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, list, "skipped rows are not due again")
}

func TestNotificationRepository_MarkDeliveredMany(t *testing.T) {
	repo := NewNotificationRepository(setupTestDB(t).DB)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	rows := []*model.Notification{
		{UserID: 1, Type: model.NotificationClassCancelled, Title: "x", Message: "y", Priority: model.PriorityUrgent, DeliveryMethod: model.DeliveryPush},
		{UserID: 2, Type: model.NotificationClassCancelled, Title: "x", Message: "y", Priority: model.PriorityUrgent, DeliveryMethod: model.DeliveryPush},
		{UserID: 3, Type: model.NotificationClassCancelled, Title: "x", Message: "y", Priority: model.PriorityUrgent, DeliveryMethod: model.DeliveryPush},
	}
	created, err := repo.CreateBatch(ctx, rows)
	require.NoError(t, err)

	n, err := repo.MarkDeliveredMany(ctx, []int64{created[0].ID, created[2].ID}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = repo.MarkDeliveredMany(ctx, []int64{created[0].ID}, now)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := repo.Get(ctx, created[1].ID)
	require.NoError(t, err)
	assert.False(t, got.IsDelivered)

	n, err = repo.MarkDeliveredMany(ctx, nil, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNotificationRepository_GetPrimaryIgnoresReplica(t *testing.T) {
	db, replica := OpenReplicatedTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	n, err := repo.Create(ctx, &model.Notification{UserID: 1, Type: model.NotificationEventReminder, Title: "t", Message: "m", Priority: model.PriorityNormal, DeliveryMethod: model.DeliveryPush})
	require.NoError(t, err)
	_, err = NewNotificationRepository(replica).Create(ctx, &model.Notification{UserID: 1, Type: model.NotificationEventReminder, Title: "t", Message: "m", Priority: model.PriorityNormal, DeliveryMethod: model.DeliveryPush})
	require.NoError(t, err)

	ok, err := repo.MarkDelivered(ctx, n.ID, time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	stale, err := repo.Get(ctx, n.ID)
	require.NoError(t, err)
	assert.False(t, stale.IsDelivered, "replica has not seen the update")

	fresh, err := repo.GetPrimary(ctx, n.ID)
	require.NoError(t, err)
	assert.True(t, fresh.IsDelivered)

	_, err = repo.GetPrimary(ctx, 999)
	assert.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestNotificationRepository_CreateBatch(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	rows := make([]*model.Notification, 0, 150)
	for i := 0; i < 150; i++ {
		rows = append(rows, &model.Notification{UserID: int64(i + 1), Type: model.NotificationClassCancelled, Title: "x", Message: "y", Priority: model.PriorityUrgent, DeliveryMethod: model.DeliveryPush})
	}
	created, err := repo.CreateBatch(ctx, rows)
	require.NoError(t, err)
	require.Len(t, created, 150)
	for _, n := range created {
		assert.NotZero(t, n.ID)
	}

	empty, err := repo.CreateBatch(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestPushSubscriptionRepository(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPushSubscriptionRepository(db)
	ctx := context.Background()

	a, err := repo.Create(ctx, &model.PushSubscription{UserID: 5, Endpoint: "https://push/a", P256dh: "k", Auth: "a", IsActive: true})
	require.NoError(t, err)
	b, err := repo.Create(ctx, &model.PushSubscription{UserID: 5, Endpoint: "https://push/b", P256dh: "k", Auth: "a", IsActive: true})
	require.NoError(t, err)
	_, err = repo.Create(ctx, &model.PushSubscription{UserID: 5, Endpoint: "https://push/c", P256dh: "k", Auth: "a", IsActive: false})
	require.NoError(t, err)

	subs, err := repo.ListActiveByUser(ctx, 5)
	require.NoError(t, err)
	require.Len(t, subs, 2)

	n, err := repo.Deactivate(ctx, []int64{a.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	subs, err = repo.ListActiveByUser(ctx, 5)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, b.ID, subs[0].ID)

	n, err = repo.Deactivate(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPreferenceRepository_Get(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewPreferenceRepository(db)
	ctx := context.Background()

	p, err := repo.Get(ctx, 1, model.NotificationBookingConfirmed)
	require.NoError(t, err)
	assert.Nil(t, p)

	_, err = repo.Save(ctx, &model.NotificationPreference{UserID: 1, Type: model.NotificationBookingConfirmed, PushEnabled: false, QuietHoursStart: ptr("22:00"), QuietHoursEnd: ptr("08:00")})
	require.NoError(t, err)

	p, err = repo.Get(ctx, 1, model.NotificationBookingConfirmed)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.PushEnabled)
	assert.Equal(t, "22:00", *p.QuietHoursStart)

	p, err = repo.Get(ctx, 1, model.NotificationClassReminder)
	require.NoError(t, err)
	assert.Nil(t, p)
}
