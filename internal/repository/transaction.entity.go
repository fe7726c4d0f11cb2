package repository

import (
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
)

type TransactionEntity struct {
	ID                int64     `db:"id"                  gorm:"primaryKey;autoIncrement;column:id"`
	BookingID         int64     `db:"booking_id"          gorm:"column:booking_id;not null;index"`
	Provider          string    `db:"provider"            gorm:"column:provider;not null;uniqueIndex:idx_transactions_provider_payment"`
	ProviderPaymentID string    `db:"provider_payment_id" gorm:"column:provider_payment_id;not null;uniqueIndex:idx_transactions_provider_payment"`
	Amount            int64     `db:"amount"              gorm:"column:amount;not null"`
	Currency          string    `db:"currency"            gorm:"column:currency;not null;default:EUR"`
	Status            string    `db:"status"              gorm:"column:status;not null;default:CREATED"`
	CreatedAt         time.Time `db:"created_at"          gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `db:"updated_at"          gorm:"column:updated_at;autoUpdateTime"`
}

func (TransactionEntity) TableName() string {
	return "transactions"
}

func toTransactionEntity(m *model.Transaction) *TransactionEntity {
	if m == nil {
		return nil
	}
	return &TransactionEntity{
		ID:                m.ID,
		BookingID:         m.BookingID,
		Provider:          string(m.Provider),
		ProviderPaymentID: m.ProviderPaymentID,
		Amount:            m.Amount,
		Currency:          m.Currency,
		Status:            string(m.Status),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func toTransactionModel(e *TransactionEntity) *model.Transaction {
	if e == nil {
		return nil
	}
	return &model.Transaction{
		ID:                e.ID,
		BookingID:         e.BookingID,
		Provider:          model.PaymentProvider(e.Provider),
		ProviderPaymentID: e.ProviderPaymentID,
		Amount:            e.Amount,
		Currency:          e.Currency,
		Status:            model.TransactionStatus(e.Status),
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}
