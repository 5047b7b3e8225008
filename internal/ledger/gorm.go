package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

// GormBalances implements BalanceStore over the pullers table.
type GormBalances struct {
	db *gorm.DB
}

func NewGormBalances(db *gorm.DB) *GormBalances {
	return &GormBalances{db: db}
}

func (b *GormBalances) AtomicIncrement(ctx context.Context, pullerID uint, delta int) error {
	res := b.db.WithContext(ctx).
		Model(&models.Puller{}).
		Where("id = ?", pullerID).
		UpdateColumn("points_balance", gorm.Expr("points_balance + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (b *GormBalances) Balance(ctx context.Context, pullerID uint) (int, error) {
	var puller models.Puller
	err := b.db.WithContext(ctx).First(&puller, pullerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return puller.PointsBalance, nil
}

func (b *GormBalances) SetBalance(ctx context.Context, pullerID uint, balance int) error {
	res := b.db.WithContext(ctx).
		Model(&models.Puller{}).
		Where("id = ?", pullerID).
		UpdateColumn("points_balance", balance)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, res.Error)
	}
	return nil
}

func (b *GormBalances) Balances(ctx context.Context) (map[uint]int, error) {
	var pullers []models.Puller
	if err := b.db.WithContext(ctx).Select("id", "points_balance").Find(&pullers).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	out := make(map[uint]int, len(pullers))
	for _, p := range pullers {
		out[p.ID] = p.PointsBalance
	}
	return out, nil
}

// GormLog implements TransactionLog over the reward_transactions table. The
// unique index on (ride_id, type) is what turns a duplicate completion reward
// into ErrDuplicateReward.
type GormLog struct {
	db *gorm.DB
}

func NewGormLog(db *gorm.DB) *GormLog {
	return &GormLog{db: db}
}

func (l *GormLog) Append(ctx context.Context, txn *models.RewardTransaction) error {
	err := l.db.WithContext(ctx).Create(txn).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "duplicate key") {
		return ErrDuplicateReward
	}
	return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
}

func (l *GormLog) ByID(ctx context.Context, id uint) (*models.RewardTransaction, error) {
	var txn models.RewardTransaction
	err := l.db.WithContext(ctx).First(&txn, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return &txn, nil
}

func (l *GormLog) Update(ctx context.Context, txn *models.RewardTransaction) error {
	if err := l.db.WithContext(ctx).Save(txn).Error; err != nil {
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return nil
}

func (l *GormLog) RewardedTotals(ctx context.Context) (map[uint]int, error) {
	type row struct {
		PullerID uint
		Total    int
	}
	var rows []row
	err := l.db.WithContext(ctx).
		Model(&models.RewardTransaction{}).
		Select("puller_id", "SUM(points_amount) AS total").
		Where("status = ?", models.RewardStatusRewarded).
		Group("puller_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	out := make(map[uint]int, len(rows))
	for _, r := range rows {
		out[r.PullerID] = r.Total
	}
	return out, nil
}

func (l *GormLog) RecentForPuller(ctx context.Context, pullerID uint, limit int) ([]models.RewardTransaction, error) {
	var txns []models.RewardTransaction
	err := l.db.WithContext(ctx).
		Where("puller_id = ?", pullerID).
		Order("transaction_date DESC").
		Limit(limit).
		Find(&txns).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	}
	return txns, nil
}
