package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/observability"
)

// Patch carries the optional field updates applied alongside a status
// transition.
type Patch struct {
	Status      string
	PullerID    *uint
	CompletedAt *time.Time
}

// RideStore persists ride records and enforces the first-writer-wins
// assignment protocol.
type RideStore interface {
	Insert(ctx context.Context, ride *models.Ride) error
	Get(ctx context.Context, id string) (*models.Ride, error)

	// TryTransition applies patch to the ride only if its stored status is
	// still one of expected at commit time. Exactly one of N concurrent
	// callers succeeds; the rest get ErrConflict. It has no side effects
	// beyond the single-row write and the change-feed publish.
	TryTransition(ctx context.Context, id string, expected []string, patch Patch) (*models.Ride, error)
}

// GormStore backs RideStore with Postgres through gorm. Each transition runs
// in a transaction holding a FOR UPDATE lock on the ride row: the status
// recheck, the write, and the captured pre-transition row all see the same
// committed state.
type GormStore struct {
	db   *gorm.DB
	feed ChangeFeed
	log  *slog.Logger
}

func NewGormStore(db *gorm.DB, feed ChangeFeed, log *slog.Logger) *GormStore {
	return &GormStore{db: db, feed: feed, log: log}
}

func (s *GormStore) Insert(ctx context.Context, ride *models.Ride) error {
	if err := s.db.WithContext(ctx).Create(ride).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.emit(ctx, ChangeEvent{Kind: EventInsert, New: *ride})
	return nil
}

func (s *GormStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	var ride models.Ride
	err := s.db.WithContext(ctx).First(&ride, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &ride, nil
}

func (s *GormStore) TryTransition(ctx context.Context, id string, expected []string, patch Patch) (*models.Ride, error) {
	var before, after models.Ride

	// Read and write commit as one transaction with the row locked, so the
	// (old, new) pair on the change feed is the pair the database actually
	// went through, not a snapshot from before a concurrent writer landed.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&before, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}

		matched := false
		for _, status := range expected {
			if before.Status == status {
				matched = true
				break
			}
		}
		if !matched {
			return ErrConflict
		}

		updates := map[string]interface{}{"status": patch.Status}
		if patch.PullerID != nil {
			updates["puller_id"] = *patch.PullerID
		}
		if patch.CompletedAt != nil {
			updates["completed_at"] = *patch.CompletedAt
		}
		res := tx.Model(&models.Ride{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, res.Error)
		}

		after = before
		after.Status = patch.Status
		after.UpdatedAt = time.Now().UTC()
		if patch.PullerID != nil {
			after.PullerID = patch.PullerID
		}
		if patch.CompletedAt != nil {
			after.CompletedAt = patch.CompletedAt
		}
		return nil
	})
	if errors.Is(err, ErrConflict) {
		observability.TransitionConflicts.Inc()
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}

	observability.TransitionsTotal.WithLabelValues(before.Status, after.Status).Inc()
	s.emit(ctx, ChangeEvent{Kind: EventUpdate, Old: before, New: after})
	return &after, nil
}

// emit publishes a committed mutation to the change feed. The write already
// committed, so a feed failure is logged and swallowed.
func (s *GormStore) emit(ctx context.Context, ev ChangeEvent) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, ev); err != nil {
		s.log.Warn("change feed publish failed", "rideId", ev.New.ID, "error", err)
	}
}
