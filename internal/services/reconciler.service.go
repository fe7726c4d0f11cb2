package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nimasrn/studio-gateway/internal/model"
	"github.com/nimasrn/studio-gateway/internal/repository"
	"github.com/nimasrn/studio-gateway/internal/wise"
	"github.com/nimasrn/studio-gateway/pkg/logger"
	"github.com/nimasrn/studio-gateway/pkg/prom"
)

type TransactionStore interface {
	FindByProviderPayment(ctx context.Context, provider model.PaymentProvider, paymentID string) (*model.Transaction, error)
	UpdateStatus(ctx context.Context, id int64, status model.TransactionStatus) error
}

type BookingStore interface {
	Get(ctx context.Context, id int64) (*model.Booking, error)
	ApplyPayment(ctx context.Context, id int64, u model.BookingPaymentUpdate) error
}

type TxRunner interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// EffectSink receives the effects of a committed reconciliation.
type EffectSink interface {
	Dispatch(ctx context.Context, effects []model.Effect) error
}

// ReconcileResult describes what one provider status did to the database.
type ReconcileResult struct {
	TransferID     string
	State          wise.TransferState
	Outcome        model.PaymentOutcome
	Matched        bool
	Changed        bool
	Stale          bool
	PreviousStatus model.TransactionStatus
	Transaction    *model.Transaction
	Booking        *model.Booking
	Effects        []model.Effect
}

func (r *ReconcileResult) label() string {
	switch {
	case !r.Matched:
		return "unmatched"
	case r.Stale:
		return "stale"
	case r.Changed:
		return "changed"
	}
	return "unchanged"
}

// BookingReconciler moves a transaction and its booking to the state a
// Wise transfer status implies.
type BookingReconciler struct {
	db           TxRunner
	transactions TransactionStore
	bookings     BookingStore
	sink         EffectSink
	now          func() time.Time
}

func NewBookingReconciler(db TxRunner, transactions TransactionStore, bookings BookingStore, sink EffectSink) *BookingReconciler {
	return &BookingReconciler{
		db:           db,
		transactions: transactions,
		bookings:     bookings,
		sink:         sink,
		now:          time.Now,
	}
}

// Reconcile applies providerStatus to the transaction paying transferID and
// to its booking in one database transaction. The returned effects have not
// been executed. An unknown transfer is not an error: the result is simply
// not Matched.
func (s *BookingReconciler) Reconcile(ctx context.Context, transferID, providerStatus string) (*ReconcileResult, error) {
	state := wise.ParseState(providerStatus)
	if !state.Recognized() {
		logger.Warn("unrecognized wise transfer state, treating as processing", "transfer_id", transferID, "state", providerStatus)
	}
	res := &ReconcileResult{
		TransferID: transferID,
		State:      state,
		Outcome:    wise.Outcome(state),
	}

	err := s.db.WithinTransaction(ctx, func(ctx context.Context) error {
		res.Matched, res.Changed, res.Stale = false, false, false
		res.Effects = nil
		return s.apply(ctx, res)
	})
	if err != nil {
		prom.IncReconcile("error")
		return nil, err
	}
	prom.IncReconcile(res.label())
	return res, nil
}

func (s *BookingReconciler) apply(ctx context.Context, res *ReconcileResult) error {
	txn, err := s.transactions.FindByProviderPayment(ctx, model.ProviderWise, res.TransferID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		logger.Warn("no transaction for wise transfer", "transfer_id", res.TransferID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load transaction for transfer %s: %w", res.TransferID, err)
	}

	booking, err := s.bookings.Get(ctx, txn.BookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		logger.Warn("transaction has no booking", "transfer_id", res.TransferID, "transaction_id", txn.ID, "booking_id", txn.BookingID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load booking %d: %w", txn.BookingID, err)
	}

	res.Matched = true
	res.PreviousStatus = txn.Status
	res.Transaction = txn
	res.Booking = booking

	target := res.Outcome
	if !txn.Status.CanTransition(target.Transaction) {
		res.Stale = true
		logger.Warn("ignoring out of order wise status",
			"transfer_id", res.TransferID, "transaction_id", txn.ID,
			"current", txn.Status, "incoming", target.Transaction, "state", res.State)
		return nil
	}

	if txn.Status != target.Transaction {
		if err := s.transactions.UpdateStatus(ctx, txn.ID, target.Transaction); err != nil {
			return fmt.Errorf("update transaction %d: %w", txn.ID, err)
		}
		txn.Status = target.Transaction
		res.Changed = true
	}

	update := model.BookingPaymentUpdate{
		Status:        target.Booking,
		PaymentStatus: target.Payment,
		PaymentMethod: model.PaymentMethodWise,
	}
	if target.Transaction == model.TransactionSucceeded {
		update.AmountPaid = booking.TotalAmount
	}
	keptTerminal := booking.Status.IsTerminal() && booking.Status != target.Booking
	if keptTerminal {
		logger.Warn("booking already closed, keeping its status",
			"booking_id", booking.ID, "status", booking.Status, "incoming", target.Booking)
		update.Status = booking.Status
	}

	if !update.Matches(booking) {
		if err := s.bookings.ApplyPayment(ctx, booking.ID, update); err != nil {
			return fmt.Errorf("update booking %d: %w", booking.ID, err)
		}
		booking.Status = update.Status
		booking.PaymentStatus = update.PaymentStatus
		booking.PaymentMethod = update.PaymentMethod
		booking.AmountPaid = update.AmountPaid
	}

	if res.Changed {
		res.Effects = s.effects(res, keptTerminal)
	}
	return nil
}

func (s *BookingReconciler) effects(res *ReconcileResult, keptTerminal bool) []model.Effect {
	txn, booking := res.Transaction, res.Booking
	base := model.Effect{
		BookingID:         booking.ID,
		TransactionID:     txn.ID,
		UserID:            booking.UserID,
		TransactionStatus: txn.Status,
		BookingStatus:     booking.Status,
		PaymentStatus:     booking.PaymentStatus,
		ProviderStatus:    string(res.State),
		OccurredAt:        s.now().UTC(),
	}
	with := func(kind model.EffectKind) model.Effect {
		e := base
		e.ID = uuid.NewString()
		e.Kind = kind
		return e
	}

	var out []model.Effect
	if !keptTerminal {
		switch txn.Status {
		case model.TransactionSucceeded:
			out = append(out, with(model.EffectBookingConfirmed))
		case model.TransactionFailed:
			e := with(model.EffectPaymentFailed)
			e.Reason = failureReason(res.State)
			out = append(out, e)
		}
	}
	return append(out, with(model.EffectBookingStatusChanged))
}

func failureReason(s wise.TransferState) string {
	switch s {
	case wise.StateBouncedBack:
		return "The transfer was returned by the receiving bank."
	case wise.StateChargedBack:
		return "The payment was charged back."
	}
	return ""
}

// Process reconciles and then hands any effects to the sink. A sink
// failure is logged: the database is already committed at that point.
func (s *BookingReconciler) Process(ctx context.Context, transferID, providerStatus string) (*ReconcileResult, error) {
	res, err := s.Reconcile(ctx, transferID, providerStatus)
	if err != nil {
		return nil, err
	}
	if len(res.Effects) > 0 && s.sink != nil {
		if err := s.sink.Dispatch(ctx, res.Effects); err != nil {
			logger.Error("failed to dispatch reconcile effects", "transfer_id", transferID, "effects", len(res.Effects), "error", err)
		}
	}
	logger.Info("reconciled wise transfer",
		"transfer_id", transferID, "state", res.State, "matched", res.Matched,
		"changed", res.Changed, "stale", res.Stale, "effects", len(res.Effects))
	return res, nil
}

// ReconcileTransfer reports whether the transfer was matched and persisted.
func (s *BookingReconciler) ReconcileTransfer(ctx context.Context, transferID, providerStatus string) bool {
	res, err := s.Process(ctx, transferID, providerStatus)
	if err != nil {
		logger.Error("failed to reconcile wise transfer", "transfer_id", transferID, "state", providerStatus, "error", err)
		return false
	}
	return res.Matched && !res.Stale
}
