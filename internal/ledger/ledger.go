package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/observability"
)

// ErrDuplicateReward means a RIDE_REWARD transaction already exists for the
// ride. The append-only log's unique index makes the award idempotent even if
// two completions somehow race past the assignment guard.
var ErrDuplicateReward = errors.New("ride already rewarded")

// BalanceStore owns the mutable running balance per puller.
type BalanceStore interface {
	// AtomicIncrement adjusts the balance in a single conditional operation
	// with no lost updates under concurrency.
	AtomicIncrement(ctx context.Context, pullerID uint, delta int) error
	Balance(ctx context.Context, pullerID uint) (int, error)
	SetBalance(ctx context.Context, pullerID uint, balance int) error
	Balances(ctx context.Context) (map[uint]int, error)
}

// TransactionLog is the append-only reward history. It is the source of truth
// for reconciliation; balances are derived.
type TransactionLog interface {
	// Append writes one transaction. A second RIDE_REWARD row for the same
	// ride returns ErrDuplicateReward.
	Append(ctx context.Context, txn *models.RewardTransaction) error
	ByID(ctx context.Context, id uint) (*models.RewardTransaction, error)
	Update(ctx context.Context, txn *models.RewardTransaction) error
	RewardedTotals(ctx context.Context) (map[uint]int, error)
	RecentForPuller(ctx context.Context, pullerID uint, limit int) ([]models.RewardTransaction, error)
}

// Engine credits rewards exactly once per completed ride and records a
// durable history entry for every balance mutation.
type Engine struct {
	balances BalanceStore
	txlog    TransactionLog
	amount   int
	log      *slog.Logger
}

func NewEngine(balances BalanceStore, txlog TransactionLog, rewardPoints int, log *slog.Logger) *Engine {
	return &Engine{balances: balances, txlog: txlog, amount: rewardPoints, log: log}
}

// AwardCompletion credits the fixed completion reward to the puller. The log
// append happens first: its uniqueness guarantee is what makes a duplicate or
// concurrent second invocation a no-op, so the balance is never credited
// twice for one ride.
func (e *Engine) AwardCompletion(ctx context.Context, rideID string, pullerID uint) (*models.RewardTransaction, error) {
	txn := &models.RewardTransaction{
		PullerID:        pullerID,
		RideID:          &rideID,
		PointsAmount:    e.amount,
		Status:          models.RewardStatusRewarded,
		Type:            models.RewardTypeRideCompletion,
		TransactionDate: time.Now().UTC(),
	}
	if err := e.txlog.Append(ctx, txn); err != nil {
		if errors.Is(err, ErrDuplicateReward) {
			e.log.Info("completion reward already credited", "rideId", rideID, "pullerId", pullerID)
			return nil, ErrDuplicateReward
		}
		return nil, fmt.Errorf("append reward transaction: %w", err)
	}

	e.credit(ctx, pullerID, e.amount)
	observability.RewardsTotal.Inc()
	return txn, nil
}

// Adjust applies a manual operator correction to an existing history entry
// and credits the amount delta through the same balance path.
func (e *Engine) Adjust(ctx context.Context, historyID uint, newAmount int, newStatus string) (*models.RewardTransaction, error) {
	txn, err := e.txlog.ByID(ctx, historyID)
	if err != nil {
		return nil, err
	}

	delta := newAmount - txn.PointsAmount
	txn.PointsAmount = newAmount
	if newStatus != "" {
		txn.Status = newStatus
	}
	if err := e.txlog.Update(ctx, txn); err != nil {
		return nil, fmt.Errorf("update reward transaction: %w", err)
	}
	if delta != 0 {
		e.credit(ctx, txn.PullerID, delta)
	}
	return txn, nil
}

// credit moves the balance, preferring the atomic path. The fallback is
// lock-free but not race-free: two concurrent fallbacks for the same puller
// can lose an update. The transaction log stays authoritative, so the
// reconciler repairs any drift; here we only surface the degradation.
func (e *Engine) credit(ctx context.Context, pullerID uint, delta int) {
	if err := e.balances.AtomicIncrement(ctx, pullerID, delta); err == nil {
		return
	} else {
		observability.DegradedConsistency.Inc()
		e.log.Warn("DegradedConsistency: atomic increment unavailable, falling back to read-then-write",
			"pullerId", pullerID, "delta", delta, "error", err)
	}

	balance, err := e.balances.Balance(ctx, pullerID)
	if err != nil {
		e.log.Error("fallback balance read failed, drift until reconciliation", "pullerId", pullerID, "error", err)
		return
	}
	if err := e.balances.SetBalance(ctx, pullerID, balance+delta); err != nil {
		e.log.Error("fallback balance write failed, drift until reconciliation", "pullerId", pullerID, "error", err)
	}
}
