package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aeras-mobility/aeras-backend/internal/models"
)

// MemoryRideStore is a mutex-guarded in-process RideStore with the same
// conditional-update semantics as the Postgres store. It backs unit tests and
// local development without a database.
type MemoryRideStore struct {
	mu    sync.Mutex
	rides map[string]models.Ride
	feed  ChangeFeed
}

func NewMemoryRideStore(feed ChangeFeed) *MemoryRideStore {
	return &MemoryRideStore{rides: make(map[string]models.Ride), feed: feed}
}

func (m *MemoryRideStore) Insert(ctx context.Context, ride *models.Ride) error {
	m.mu.Lock()
	if ride.ID == "" {
		ride.ID = uuid.NewString()
	}
	if ride.CreatedAt.IsZero() {
		ride.CreatedAt = time.Now().UTC()
	}
	ride.UpdatedAt = ride.CreatedAt
	m.rides[ride.ID] = *ride
	m.mu.Unlock()

	if m.feed != nil {
		_ = m.feed.Publish(ctx, ChangeEvent{Kind: EventInsert, New: *ride})
	}
	return nil
}

func (m *MemoryRideStore) Get(ctx context.Context, id string) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ride, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &ride, nil
}

func (m *MemoryRideStore) TryTransition(ctx context.Context, id string, expected []string, patch Patch) (*models.Ride, error) {
	m.mu.Lock()
	before, ok := m.rides[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}

	matched := false
	for _, s := range expected {
		if before.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		m.mu.Unlock()
		return nil, ErrConflict
	}

	after := before
	after.Status = patch.Status
	after.UpdatedAt = time.Now().UTC()
	if patch.PullerID != nil {
		after.PullerID = patch.PullerID
	}
	if patch.CompletedAt != nil {
		after.CompletedAt = patch.CompletedAt
	}
	m.rides[id] = after
	m.mu.Unlock()

	if m.feed != nil {
		_ = m.feed.Publish(ctx, ChangeEvent{Kind: EventUpdate, Old: before, New: after})
	}
	return &after, nil
}

// All returns a snapshot of every ride, newest first ordering is left to the
// caller.
func (m *MemoryRideStore) All() []models.Ride {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Ride, 0, len(m.rides))
	for _, r := range m.rides {
		out = append(out, r)
	}
	return out
}
