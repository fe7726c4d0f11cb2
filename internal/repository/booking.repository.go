package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"gorm.io/gorm"
)

var ErrBookingNotFound = errors.New("booking not found")

type BookingRepository struct {
	*pg.DB
}

func NewBookingRepository(db *pg.DB) *BookingRepository {
	return &BookingRepository{
		db,
	}
}

func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) (*model.Booking, error) {
	entity := toBookingEntity(b)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toBookingModel(entity), nil
}

// Get reads the booking row. Inside WithinTransaction the row is locked.
func (r *BookingRepository) Get(ctx context.Context, id int64) (*model.Booking, error) {
	var entity BookingEntity
	if err := r.Locked(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return toBookingModel(&entity), nil
}

// GetDetails loads the booking together with its user, class or event,
// venue and instructor or organizer.
func (r *BookingRepository) GetDetails(ctx context.Context, id int64) (*model.BookingDetails, error) {
	var entity BookingEntity
	err := r.Read(ctx).
		Preload("User").
		Preload("Class.Venue").
		Preload("Class.Instructor").
		Preload("Event.Venue").
		Preload("Event.Organizer").
		Where("id = ?", id).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return toBookingDetails(&entity), nil
}

// ApplyPayment writes the payment columns of a booking in one statement.
func (r *BookingRepository) ApplyPayment(ctx context.Context, id int64, u model.BookingPaymentUpdate) error {
	result := r.Write(ctx).
		Model(&BookingEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":         string(u.Status),
			"payment_status": string(u.PaymentStatus),
			"payment_method": u.PaymentMethod,
			"amount_paid":    u.AmountPaid,
			"updated_at":     time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookingNotFound
	}
	return nil
}

// ConfirmedClassAttendees returns the distinct users holding a confirmed booking for the class.
func (r *BookingRepository) ConfirmedClassAttendees(ctx context.Context, classID int64) ([]int64, error) {
	return r.confirmedAttendees(ctx, "class_id", classID)
}

// ConfirmedEventAttendees returns the distinct users holding a confirmed booking for the event.
func (r *BookingRepository) ConfirmedEventAttendees(ctx context.Context, eventID int64) ([]int64, error) {
	return r.confirmedAttendees(ctx, "event_id", eventID)
}

func (r *BookingRepository) confirmedAttendees(ctx context.Context, column string, id int64) ([]int64, error) {
	var ids []int64
	err := r.Read(ctx).
		Model(&BookingEntity{}).
		Where(column+" = ? AND status = ?", id, string(model.BookingConfirmed)).
		Distinct().
		Order("user_id").
		Pluck("user_id", &ids).
		Error
	return ids, err
}
