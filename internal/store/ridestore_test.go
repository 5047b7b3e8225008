package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeras-mobility/aeras-backend/internal/models"
)

func newRequestedRide(t *testing.T, s *MemoryRideStore, passengerID uint) *models.Ride {
	t.Helper()
	ride := &models.Ride{
		PassengerID:           &passengerID,
		PickupLocationID:      "loc-a",
		DestinationLocationID: "loc-b",
		Status:                models.RideStatusRequested,
	}
	require.NoError(t, s.Insert(context.Background(), ride))
	require.NotEmpty(t, ride.ID)
	return ride
}

func TestTryTransition_GuardMatchesExpectedStatus(t *testing.T) {
	s := NewMemoryRideStore(nil)
	ride := newRequestedRide(t, s, 1)
	pullerID := uint(10)

	after, err := s.TryTransition(context.Background(), ride.ID,
		[]string{models.RideStatusRequested},
		Patch{Status: models.RideStatusAccepted, PullerID: &pullerID})
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusAccepted, after.Status)
	require.NotNil(t, after.PullerID)
	assert.Equal(t, pullerID, *after.PullerID)
}

func TestTryTransition_StalePreconditionConflicts(t *testing.T) {
	s := NewMemoryRideStore(nil)
	ride := newRequestedRide(t, s, 1)
	pullerID := uint(10)

	_, err := s.TryTransition(context.Background(), ride.ID,
		[]string{models.RideStatusRequested},
		Patch{Status: models.RideStatusAccepted, PullerID: &pullerID})
	require.NoError(t, err)

	_, err = s.TryTransition(context.Background(), ride.ID,
		[]string{models.RideStatusRequested},
		Patch{Status: models.RideStatusCanceled})
	assert.ErrorIs(t, err, ErrConflict)

	got, err := s.Get(context.Background(), ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusAccepted, got.Status, "losing writer must not clobber the row")
}

func TestTryTransition_UnknownRide(t *testing.T) {
	s := NewMemoryRideStore(nil)
	_, err := s.TryTransition(context.Background(), "missing",
		[]string{models.RideStatusRequested},
		Patch{Status: models.RideStatusCanceled})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTryTransition_ConcurrentClaimsSingleWinner(t *testing.T) {
	s := NewMemoryRideStore(nil)
	ride := newRequestedRide(t, s, 1)

	const racers = 16
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pid := uint(100 + i)
			_, errs[i] = s.TryTransition(context.Background(), ride.ID,
				[]string{models.RideStatusRequested},
				Patch{Status: models.RideStatusAccepted, PullerID: &pid})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
}

func TestTryTransition_EmitsUpdateEvent(t *testing.T) {
	feed := NewMemoryFeed()
	s := NewMemoryRideStore(feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)

	ride := newRequestedRide(t, s, 1)
	pullerID := uint(10)
	_, err = s.TryTransition(context.Background(), ride.ID,
		[]string{models.RideStatusRequested},
		Patch{Status: models.RideStatusAccepted, PullerID: &pullerID})
	require.NoError(t, err)

	var insert, update ChangeEvent
	select {
	case insert = <-events:
	case <-time.After(time.Second):
		t.Fatal("no insert event")
	}
	select {
	case update = <-events:
	case <-time.After(time.Second):
		t.Fatal("no update event")
	}

	assert.Equal(t, EventInsert, insert.Kind)
	assert.Equal(t, EventUpdate, update.Kind)
	assert.Equal(t, models.RideStatusRequested, update.Old.Status)
	assert.Equal(t, models.RideStatusAccepted, update.New.Status)
}

func TestTryTransition_EventOldStatusIsCommittedPreTransitionRow(t *testing.T) {
	feed := NewMemoryFeed()
	s := NewMemoryRideStore(feed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := feed.Subscribe(ctx)
	require.NoError(t, err)

	ride := newRequestedRide(t, s, 1)
	pullerID := uint(10)

	// An accept lands first; the completion's multi-status precondition then
	// matches ACCEPTED. The completion event must carry ACCEPTED as its old
	// status, never the REQUESTED state from before the accept.
	_, err = s.TryTransition(context.Background(), ride.ID,
		[]string{models.RideStatusRequested},
		Patch{Status: models.RideStatusAccepted, PullerID: &pullerID})
	require.NoError(t, err)

	now := time.Now().UTC()
	_, err = s.TryTransition(context.Background(), ride.ID,
		[]string{models.RideStatusActive, models.RideStatusAccepted},
		Patch{Status: models.RideStatusCompleted, CompletedAt: &now})
	require.NoError(t, err)

	var pairs [][2]string
	for len(pairs) < 2 {
		select {
		case ev := <-events:
			if ev.Kind == EventUpdate {
				pairs = append(pairs, [2]string{ev.Old.Status, ev.New.Status})
			}
		case <-time.After(time.Second):
			t.Fatal("missing update events")
		}
	}

	assert.Equal(t, [2]string{models.RideStatusRequested, models.RideStatusAccepted}, pairs[0])
	assert.Equal(t, [2]string{models.RideStatusAccepted, models.RideStatusCompleted}, pairs[1])
}

func TestInsert_KeepsTerminalRows(t *testing.T) {
	s := NewMemoryRideStore(nil)
	ride := newRequestedRide(t, s, 1)

	_, err := s.TryTransition(context.Background(), ride.ID,
		[]string{models.RideStatusRequested},
		Patch{Status: models.RideStatusCanceled})
	require.NoError(t, err)

	got, err := s.Get(context.Background(), ride.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RideStatusCanceled, got.Status)
	assert.Len(t, s.All(), 1)
}
