package repository

import (
	"context"
	"testing"

	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransactionRepository_FindByProviderPayment(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.Transaction{
		BookingID:         7,
		Provider:          model.ProviderWise,
		ProviderPaymentID: "49211",
		Amount:            2500,
		Currency:          "EUR",
		Status:            model.TransactionCreated,
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	t.Run("found", func(t *testing.T) {
		txn, err := repo.FindByProviderPayment(ctx, model.ProviderWise, "49211")
		require.NoError(t, err)
		assert.Equal(t, created.ID, txn.ID)
		assert.Equal(t, int64(7), txn.BookingID)
		assert.Equal(t, model.TransactionCreated, txn.Status)
	})

	t.Run("other provider", func(t *testing.T) {
		_, err := repo.FindByProviderPayment(ctx, model.PaymentProvider("STRIPE"), "49211")
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})

	t.Run("unknown transfer", func(t *testing.T) {
		_, err := repo.FindByProviderPayment(ctx, model.ProviderWise, "nope")
		assert.ErrorIs(t, err, ErrTransactionNotFound)
	})

	t.Run("inside transaction", func(t *testing.T) {
		err := db.WithinTransaction(ctx, func(ctx context.Context) error {
			txn, err := repo.FindByProviderPayment(ctx, model.ProviderWise, "49211")
			if err != nil {
				return err
			}
			return repo.UpdateStatus(ctx, txn.ID, model.TransactionSucceeded)
		})
		require.NoError(t, err)

		txn, err := repo.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.TransactionSucceeded, txn.Status)
	})
}

func TestTransactionRepository_UniqueTransfer(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	txn := &model.Transaction{BookingID: 1, Provider: model.ProviderWise, ProviderPaymentID: "dup", Amount: 100, Status: model.TransactionCreated}
	_, err := repo.Create(ctx, txn)
	require.NoError(t, err)

	_, err = repo.Create(ctx, &model.Transaction{BookingID: 2, Provider: model.ProviderWise, ProviderPaymentID: "dup", Amount: 100, Status: model.TransactionCreated})
	assert.Error(t, err)
}

func TestTransactionRepository_UpdateStatusMissing(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)

	err := repo.UpdateStatus(context.Background(), 404, model.TransactionFailed)
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestTransactionRepository_RollbackOnError(t *testing.T) {
	db := setupTestDB(t).DB
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, &model.Transaction{BookingID: 3, Provider: model.ProviderWise, ProviderPaymentID: "rb", Amount: 100, Status: model.TransactionCreated})
	require.NoError(t, err)

	err = db.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := repo.UpdateStatus(ctx, created.ID, model.TransactionSucceeded); err != nil {
			return err
		}
		return ErrBookingNotFound
	})
	assert.ErrorIs(t, err, ErrBookingNotFound)

	txn, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, model.TransactionCreated, txn.Status)
}
