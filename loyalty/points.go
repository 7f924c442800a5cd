/*
points.go - Append-only per-user points ledger

PURPOSE:
  Every point a user holds is the sum of an ordered, immutable entry
  history. Earn, spend, adjust and expire append entries; nothing ever
  edits or removes one. The stored balance is derived and re-checked
  against the history sum at every mutation.

RULES:
  - earn: amount > 0, always succeeds
  - spend: amount > 0, fails InsufficientPoints when balance < amount;
    check and write are one unit
  - adjust: signed, used for reversals; a result below zero is refused
    with InvalidAdjustment, never clamped silently
  - expire: maintenance write for aged points; same refusal rule

  Concurrent operations on one account serialize around the balance
  check; the store enforces this (global lock or row lock).

SEE ALSO:
  - redemption.go: spends inside its own unit of work
  - sales.go: earns and reverses from sale events
*/
package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PointsLedger maintains user balances as append-only history.
type PointsLedger struct {
	store Store
	sink  NotificationSink
	log   *zap.Logger
}

func NewPointsLedger(store Store, sink NotificationSink, log *zap.Logger) *PointsLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &PointsLedger{store: store, sink: sink, log: log}
}

// Earn appends a positive entry. Source identifies the feeding
// subsystem ("sale", "achievement", "admin"), sourceID the record inside it.
func (l *PointsLedger) Earn(ctx context.Context, userID string, amount int, source, sourceID, description string) (*PointsAccount, error) {
	if err := validatePointsOp(userID, source); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var account *PointsAccount
	err := l.store.WithUnitOfWork(ctx, func(uow Store) error {
		a, err := l.loadChecked(ctx, uow, userID)
		if err != nil {
			return err
		}
		a, err = l.appendEntry(ctx, uow, a, amount, EntryEarned, source, sourceID, description)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.notifyPoints(ctx, EventPointsEarned, userID, amount, source, sourceID, account.Balance)
	return account, nil
}

// Spend appends a negative entry after the balance check, as one unit.
func (l *PointsLedger) Spend(ctx context.Context, userID string, amount int, source, sourceID, description string) (*PointsAccount, error) {
	if err := validatePointsOp(userID, source); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var account *PointsAccount
	err := l.store.WithUnitOfWork(ctx, func(uow Store) error {
		a, err := l.spendIn(ctx, uow, userID, amount, source, sourceID, description)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.notifyPoints(ctx, EventPointsSpent, userID, -amount, source, sourceID, account.Balance)
	return account, nil
}

// Adjust appends a signed correction entry. An adjustment that would
// drive the balance negative fails; the caller decides what to do.
func (l *PointsLedger) Adjust(ctx context.Context, userID string, delta int, source, sourceID, description string) (*PointsAccount, error) {
	if err := validatePointsOp(userID, source); err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, &ValidationError{Field: "delta", Reason: "must not be zero"}
	}

	var account *PointsAccount
	err := l.store.WithUnitOfWork(ctx, func(uow Store) error {
		a, err := l.loadChecked(ctx, uow, userID)
		if err != nil {
			return err
		}
		if a.Balance+delta < 0 {
			return &AdjustmentError{UserID: userID, Balance: a.Balance, Delta: delta}
		}
		a, err = l.appendEntry(ctx, uow, a, delta, EntryAdjusted, source, sourceID, description)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.notifyPoints(ctx, EventPointsAdjusted, userID, delta, source, sourceID, account.Balance)
	return account, nil
}

// Expire removes aged points with an expired-type entry. Like Adjust,
// it refuses to overdraw rather than clamping.
func (l *PointsLedger) Expire(ctx context.Context, userID string, amount int, source, sourceID, description string) (*PointsAccount, error) {
	if err := validatePointsOp(userID, source); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, &ValidationError{Field: "amount", Reason: "must be positive"}
	}

	var account *PointsAccount
	err := l.store.WithUnitOfWork(ctx, func(uow Store) error {
		a, err := l.loadChecked(ctx, uow, userID)
		if err != nil {
			return err
		}
		if a.Balance-amount < 0 {
			return &AdjustmentError{UserID: userID, Balance: a.Balance, Delta: -amount}
		}
		a, err = l.appendEntry(ctx, uow, a, -amount, EntryExpired, source, sourceID, description)
		if err != nil {
			return err
		}
		account = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.notifyPoints(ctx, EventPointsExpired, userID, -amount, source, sourceID, account.Balance)
	return account, nil
}

// Account returns the user's balance and history. Unknown users read as
// an empty account; accounts come into existence on first write.
func (l *PointsLedger) Account(ctx context.Context, userID string) (*PointsAccount, error) {
	if userID == "" {
		return nil, &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return l.store.Points().Account(ctx, userID)
}

// spendIn runs the balance check and the negative append inside an
// already-open unit of work. The redemption engine composes this with
// its own writes.
func (l *PointsLedger) spendIn(ctx context.Context, uow Store, userID string, amount int, source, sourceID, description string) (*PointsAccount, error) {
	a, err := l.loadChecked(ctx, uow, userID)
	if err != nil {
		return nil, err
	}
	if a.Balance < amount {
		return nil, &InsufficientPointsError{UserID: userID, Balance: a.Balance, Requested: amount}
	}
	return l.appendEntry(ctx, uow, a, -amount, EntrySpent, source, sourceID, description)
}

// loadChecked loads the account and verifies the derived-balance
// invariant before any mutation builds on it.
func (l *PointsLedger) loadChecked(ctx context.Context, uow Store, userID string) (*PointsAccount, error) {
	a, err := uow.Points().Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sum := a.HistorySum(); sum != a.Balance {
		return nil, fmt.Errorf("points account %s out of balance: stored %d, history sums to %d", userID, a.Balance, sum)
	}
	return a, nil
}

// appendEntry writes one entry plus the recomputed balance onto an
// account already loaded and checked in this unit of work.
func (l *PointsLedger) appendEntry(ctx context.Context, uow Store, a *PointsAccount, amount int, typ EntryType, source, sourceID, description string) (*PointsAccount, error) {
	entry := PointsEntry{
		ID:          uuid.NewString(),
		Amount:      amount,
		Type:        typ,
		Source:      source,
		SourceID:    sourceID,
		Description: description,
		CreatedAt:   time.Now(),
	}
	newBalance := a.Balance + amount
	if err := uow.Points().Append(ctx, a.UserID, entry, newBalance); err != nil {
		return nil, err
	}

	a.Balance = newBalance
	a.History = append(a.History, entry)
	return a, nil
}

func (l *PointsLedger) notifyPoints(ctx context.Context, typ EventType, userID string, delta int, source, sourceID string, balance int) {
	notifyBestEffort(ctx, l.sink, l.log, Event{
		Type: typ,
		At:   time.Now(),
		Payload: map[string]any{
			"user_id":   userID,
			"delta":     delta,
			"source":    source,
			"source_id": sourceID,
			"balance":   balance,
		},
	})
}

func validatePointsOp(userID, source string) error {
	if userID == "" {
		return &ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if source == "" {
		return &ValidationError{Field: "source", Reason: "must not be empty"}
	}
	return nil
}
