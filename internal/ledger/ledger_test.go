package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeras-mobility/aeras-backend/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// brokenIncrement simulates a backend that lost its atomic increment path,
// forcing the engine onto the read-then-write fallback.
type brokenIncrement struct {
	*MemoryLedger
	calls int
}

func (b *brokenIncrement) AtomicIncrement(ctx context.Context, pullerID uint, delta int) error {
	b.calls++
	return errors.New("increment routine missing")
}

func TestAwardCompletion_CreditsBalanceAndLogs(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	txn, err := engine.AwardCompletion(context.Background(), "ride-1", 10)
	require.NoError(t, err)
	assert.Equal(t, 30, txn.PointsAmount)
	assert.Equal(t, models.RewardStatusRewarded, txn.Status)
	assert.Equal(t, models.RewardTypeRideCompletion, txn.Type)
	require.NotNil(t, txn.RideID)
	assert.Equal(t, "ride-1", *txn.RideID)

	balance, err := ml.Balance(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 30, balance)
}

func TestAwardCompletion_DuplicateRideIsNoOp(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	_, err := engine.AwardCompletion(context.Background(), "ride-1", 10)
	require.NoError(t, err)

	txn, err := engine.AwardCompletion(context.Background(), "ride-1", 10)
	assert.ErrorIs(t, err, ErrDuplicateReward)
	assert.Nil(t, txn)

	balance, _ := ml.Balance(context.Background(), 10)
	assert.Equal(t, 30, balance, "duplicate award must not touch the balance")
	assert.Len(t, ml.Transactions(), 1)
}

func TestAwardCompletion_ConcurrentAwardsCreditOnce(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.AwardCompletion(context.Background(), "ride-1", 10)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateReward)
		}
	}
	assert.Equal(t, 1, wins)

	balance, _ := ml.Balance(context.Background(), 10)
	assert.Equal(t, 30, balance)
}

func TestAwardCompletion_FallbackStillCredits(t *testing.T) {
	ml := NewMemoryLedger()
	broken := &brokenIncrement{MemoryLedger: ml}
	engine := NewEngine(broken, ml, 30, testLogger())

	txn, err := engine.AwardCompletion(context.Background(), "ride-1", 10)
	require.NoError(t, err, "a broken atomic path degrades, it does not fail the award")
	assert.Equal(t, models.RewardStatusRewarded, txn.Status)
	assert.Equal(t, 1, broken.calls)

	balance, _ := ml.Balance(context.Background(), 10)
	assert.Equal(t, 30, balance, "read-then-write fallback applied the credit")
}

func TestAdjust_AppliesDeltaThroughBalance(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	txn, err := engine.AwardCompletion(context.Background(), "ride-1", 10)
	require.NoError(t, err)

	adjusted, err := engine.Adjust(context.Background(), txn.ID, 50, models.RewardStatusRewarded)
	require.NoError(t, err)
	assert.Equal(t, 50, adjusted.PointsAmount)

	balance, _ := ml.Balance(context.Background(), 10)
	assert.Equal(t, 50, balance, "balance moves by the amount delta, not the full amount")
}

func TestAdjust_UnknownHistoryEntry(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	_, err := engine.Adjust(context.Background(), 999, 50, "")
	assert.Error(t, err)
}

func TestReconciler_RepairsDriftFromLog(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	_, err := engine.AwardCompletion(context.Background(), "ride-1", 10)
	require.NoError(t, err)
	_, err = engine.AwardCompletion(context.Background(), "ride-2", 10)
	require.NoError(t, err)

	// Simulate drift left behind by a lost fallback update.
	require.NoError(t, ml.SetBalance(context.Background(), 10, 30))

	var archivedName string
	var archivedData []byte
	archive := func(name string, data []byte) (string, error) {
		archivedName = name
		archivedData = data
		return "local://" + name, nil
	}

	rec := NewReconciler(ml, ml, 0, archive, testLogger())
	report, err := rec.RunOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Corrections, 1)
	assert.Equal(t, uint(10), report.Corrections[0].PullerID)
	assert.Equal(t, 30, report.Corrections[0].OldBalance)
	assert.Equal(t, 60, report.Corrections[0].LogBalance)

	balance, _ := ml.Balance(context.Background(), 10)
	assert.Equal(t, 60, balance)

	assert.True(t, strings.HasPrefix(archivedName, "ledger-reconcile-"))
	assert.Contains(t, string(archivedData), `"corrections"`)
}

func TestReconciler_CleanLedgerNoCorrections(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	_, err := engine.AwardCompletion(context.Background(), "ride-1", 10)
	require.NoError(t, err)

	rec := NewReconciler(ml, ml, 0, nil, testLogger())
	report, err := rec.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Corrections)
}

func TestRecentForPuller_LimitsAndOrders(t *testing.T) {
	ml := NewMemoryLedger()
	engine := NewEngine(ml, ml, 30, testLogger())

	for _, ride := range []string{"r1", "r2", "r3"} {
		_, err := engine.AwardCompletion(context.Background(), ride, 10)
		require.NoError(t, err)
	}
	_, err := engine.AwardCompletion(context.Background(), "other", 11)
	require.NoError(t, err)

	recent, err := ml.RecentForPuller(context.Background(), 10, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
	for _, txn := range recent {
		assert.Equal(t, uint(10), txn.PullerID)
	}
}
