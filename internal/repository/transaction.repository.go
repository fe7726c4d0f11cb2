package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/pkg/pg"
	"gorm.io/gorm"
)

var ErrTransactionNotFound = errors.New("transaction not found")

type TransactionRepository struct {
	*pg.DB
}

func NewTransactionRepository(db *pg.DB) *TransactionRepository {
	return &TransactionRepository{
		db,
	}
}

func (r *TransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	entity := toTransactionEntity(txn)

	if err := r.Write(ctx).WithContext(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toTransactionModel(entity), nil
}

// FindByProviderPayment looks a transaction up by its external transfer id.
// Inside WithinTransaction the row stays locked until commit.
func (r *TransactionRepository) FindByProviderPayment(ctx context.Context, provider model.PaymentProvider, paymentID string) (*model.Transaction, error) {
	var entity TransactionEntity
	err := r.Locked(ctx).
		Where("provider = ? AND provider_payment_id = ?", string(provider), paymentID).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	var entity TransactionEntity
	if err := r.Read(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return toTransactionModel(&entity), nil
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, status model.TransactionStatus) error {
	result := r.Write(ctx).
		Model(&TransactionEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":     string(status),
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
