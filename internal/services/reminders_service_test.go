package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockReminderTriggers struct {
	mock.Mock
}

func (m *MockReminderTriggers) ClassReminder(ctx context.Context, classID int64) (*BroadcastResult, error) {
	args := m.Called(ctx, classID)
	return &BroadcastResult{}, args.Error(0)
}

func (m *MockReminderTriggers) EventReminder24h(ctx context.Context, eventID int64) (*BroadcastResult, error) {
	args := m.Called(ctx, eventID)
	return &BroadcastResult{}, args.Error(0)
}

func (m *MockReminderTriggers) EventReminder1h(ctx context.Context, eventID int64) (*BroadcastResult, error) {
	args := m.Called(ctx, eventID)
	return &BroadcastResult{}, args.Error(0)
}

func TestReminderScheduler_ClassReminders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	soon := s.class(t, "Soon", fixedNow.Add(time.Hour+2*time.Minute))
	s.class(t, "Later", fixedNow.Add(3*time.Hour))
	s.class(t, "Now", fixedNow.Add(10*time.Minute))

	tr := &MockReminderTriggers{}
	tr.On("ClassReminder", mock.Anything, soon.ID).Return(nil).Once()

	r := NewReminderScheduler(s.catalog, tr, newMemLocker(), 5*time.Minute)
	r.now = func() time.Time { return fixedNow }

	sent, err := r.SendClassReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// an overlapping run does not remind again
	sent, err = r.SendClassReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	tr.AssertExpectations(t)
}

func TestReminderScheduler_FailedReminderIsRetried(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := s.class(t, "Soon", fixedNow.Add(time.Hour+time.Minute))

	tr := &MockReminderTriggers{}
	tr.On("ClassReminder", mock.Anything, c.ID).Return(errors.New("db down")).Once()
	tr.On("ClassReminder", mock.Anything, c.ID).Return(nil).Once()

	r := NewReminderScheduler(s.catalog, tr, newMemLocker(), 5*time.Minute)
	r.now = func() time.Time { return fixedNow }

	_, err := r.SendClassReminders(ctx)
	assert.Error(t, err)

	// the next tick, one window later, still covers the class
	r.now = func() time.Time { return fixedNow.Add(5 * time.Minute) }
	sent, err := r.SendClassReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// still in range for the following tick, but already reminded
	r.now = func() time.Time { return fixedNow.Add(6 * time.Minute) }
	sent, err = r.SendClassReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)
	tr.AssertExpectations(t)
}

func TestReminderScheduler_LateTickDoesNotSkipClasses(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	c := s.class(t, "Gap", fixedNow.Add(time.Hour+6*time.Minute))

	tr := &MockReminderTriggers{}
	tr.On("ClassReminder", mock.Anything, c.ID).Return(nil).Once()

	r := NewReminderScheduler(s.catalog, tr, newMemLocker(), 5*time.Minute)
	r.now = func() time.Time { return fixedNow }
	sent, err := r.SendClassReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, sent)

	// the tick at +5m was dropped
	r.now = func() time.Time { return fixedNow.Add(10 * time.Minute) }
	sent, err = r.SendClassReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	tr.AssertExpectations(t)
}

func TestReminderScheduler_EventReminders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	tomorrow := s.event(t, "Tomorrow", fixedNow.Add(24*time.Hour+time.Minute))
	soon := s.event(t, "Soon", fixedNow.Add(time.Hour+time.Minute))

	tr := &MockReminderTriggers{}
	tr.On("EventReminder24h", mock.Anything, tomorrow.ID).Return(nil).Once()
	tr.On("EventReminder1h", mock.Anything, soon.ID).Return(nil).Once()

	r := NewReminderScheduler(s.catalog, tr, nil, 5*time.Minute)
	r.now = func() time.Time { return fixedNow }

	sent, err := r.SendEventReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	tr.AssertExpectations(t)
}
