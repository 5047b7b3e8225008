package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

// MemoryLedger implements BalanceStore and TransactionLog in memory with the
// same uniqueness guarantees as the relational versions. Used by tests and
// database-free local runs.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[uint]int
	txns     []models.RewardTransaction
	nextID   uint
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[uint]int), nextID: 1}
}

func (m *MemoryLedger) AtomicIncrement(ctx context.Context, pullerID uint, delta int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[pullerID] += delta
	return nil
}

func (m *MemoryLedger) Balance(ctx context.Context, pullerID uint) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[pullerID], nil
}

func (m *MemoryLedger) SetBalance(ctx context.Context, pullerID uint, balance int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[pullerID] = balance
	return nil
}

func (m *MemoryLedger) Balances(ctx context.Context) (map[uint]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint]int, len(m.balances))
	for k, v := range m.balances {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryLedger) Append(ctx context.Context, txn *models.RewardTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn.Type == models.RewardTypeRideCompletion && txn.RideID != nil {
		for _, existing := range m.txns {
			if existing.Type == models.RewardTypeRideCompletion &&
				existing.RideID != nil && *existing.RideID == *txn.RideID {
				return ErrDuplicateReward
			}
		}
	}
	txn.ID = m.nextID
	m.nextID++
	m.txns = append(m.txns, *txn)
	return nil
}

func (m *MemoryLedger) ByID(ctx context.Context, id uint) (*models.RewardTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, txn := range m.txns {
		if txn.ID == id {
			t := txn
			return &t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *MemoryLedger) Update(ctx context.Context, txn *models.RewardTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.txns {
		if existing.ID == txn.ID {
			m.txns[i] = *txn
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *MemoryLedger) RewardedTotals(ctx context.Context) (map[uint]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uint]int)
	for _, txn := range m.txns {
		if txn.Status == models.RewardStatusRewarded {
			out[txn.PullerID] += txn.PointsAmount
		}
	}
	return out, nil
}

func (m *MemoryLedger) RecentForPuller(ctx context.Context, pullerID uint, limit int) ([]models.RewardTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.RewardTransaction
	for _, txn := range m.txns {
		if txn.PullerID == pullerID {
			out = append(out, txn)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransactionDate.After(out[j].TransactionDate)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Transactions returns a snapshot of the full log.
func (m *MemoryLedger) Transactions() []models.RewardTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.RewardTransaction, len(m.txns))
	copy(out, m.txns)
	return out
}
