package repository

import (
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
)

type BookingEntity struct {
	ID               int64        `db:"id"                gorm:"primaryKey;autoIncrement;column:id"`
	UserID           int64        `db:"user_id"           gorm:"column:user_id;not null;index"`
	ClassID          *int64       `db:"class_id"          gorm:"column:class_id;index"`
	EventID          *int64       `db:"event_id"          gorm:"column:event_id;index"`
	Status           string       `db:"status"            gorm:"column:status;not null;default:PENDING"`
	PaymentStatus    string       `db:"payment_status"    gorm:"column:payment_status;not null;default:pending"`
	PaymentMethod    string       `db:"payment_method"    gorm:"column:payment_method"`
	TotalAmount      int64        `db:"total_amount"      gorm:"column:total_amount;not null"`
	AmountPaid       int64        `db:"amount_paid"       gorm:"column:amount_paid;not null;default:0"`
	Currency         string       `db:"currency"          gorm:"column:currency;not null;default:EUR"`
	ConfirmationCode string       `db:"confirmation_code" gorm:"column:confirmation_code"`
	CreatedAt        time.Time    `db:"created_at"        gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time    `db:"updated_at"        gorm:"column:updated_at;autoUpdateTime"`
	User             *UserEntity  `gorm:"foreignKey:UserID"`
	Class            *ClassEntity `gorm:"foreignKey:ClassID"`
	Event            *EventEntity `gorm:"foreignKey:EventID"`
}

func (BookingEntity) TableName() string {
	return "bookings"
}

func toBookingEntity(m *model.Booking) *BookingEntity {
	if m == nil {
		return nil
	}
	return &BookingEntity{
		ID:               m.ID,
		UserID:           m.UserID,
		ClassID:          m.ClassID,
		EventID:          m.EventID,
		Status:           string(m.Status),
		PaymentStatus:    string(m.PaymentStatus),
		PaymentMethod:    m.PaymentMethod,
		TotalAmount:      m.TotalAmount,
		AmountPaid:       m.AmountPaid,
		Currency:         m.Currency,
		ConfirmationCode: m.ConfirmationCode,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toBookingModel(e *BookingEntity) *model.Booking {
	if e == nil {
		return nil
	}
	return &model.Booking{
		ID:               e.ID,
		UserID:           e.UserID,
		ClassID:          e.ClassID,
		EventID:          e.EventID,
		Status:           model.BookingStatus(e.Status),
		PaymentStatus:    model.PaymentStatus(e.PaymentStatus),
		PaymentMethod:    e.PaymentMethod,
		TotalAmount:      e.TotalAmount,
		AmountPaid:       e.AmountPaid,
		Currency:         e.Currency,
		ConfirmationCode: e.ConfirmationCode,
		CreatedAt:        e.CreatedAt,
		UpdatedAt:        e.UpdatedAt,
	}
}

func toBookingDetails(e *BookingEntity) *model.BookingDetails {
	if e == nil {
		return nil
	}
	return &model.BookingDetails{
		Booking: *toBookingModel(e),
		User:    toUserModel(e.User),
		Class:   toClassModel(e.Class),
		Event:   toEventModel(e.Event),
	}
}
