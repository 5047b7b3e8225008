package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aeras-mobility/aeras-backend/internal/expiry"
	"github.com/aeras-mobility/aeras-backend/internal/ledger"
	"github.com/aeras-mobility/aeras-backend/internal/models"
	"github.com/aeras-mobility/aeras-backend/internal/observability"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

// Rewards is the slice of the ledger engine the coordinator needs.
type Rewards interface {
	AwardCompletion(ctx context.Context, rideID string, pullerID uint) (*models.RewardTransaction, error)
}

// Options carries the coordinator's tunables.
type Options struct {
	RequestTimeout time.Duration
	AcceptTimeout  time.Duration
	StorageTimeout time.Duration
	RetryAttempts  int
	RetryBackoff   time.Duration
}

// Coordinator drives the ride state machine. Every mutation goes through the
// ride store's conditional transition, so concurrent callers racing for the
// same ride resolve to exactly one winner; side effects (reward crediting,
// timer management) run only after a committed transition.
type Coordinator struct {
	rides    store.RideStore
	accounts store.AccountDirectory
	rewards  Rewards
	monitor  *expiry.Monitor
	opts     Options
	log      *slog.Logger
}

func New(rides store.RideStore, accounts store.AccountDirectory, rewards Rewards, opts Options, log *slog.Logger) *Coordinator {
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 1
	}
	c := &Coordinator{
		rides:    rides,
		accounts: accounts,
		rewards:  rewards,
		opts:     opts,
		log:      log,
	}
	c.monitor = expiry.NewMonitor(opts.RequestTimeout, opts.AcceptTimeout, c.expire, log)
	return c
}

// Monitor exposes the expiry monitor, mainly for shutdown and tests.
func (c *Coordinator) Monitor() *expiry.Monitor {
	return c.monitor
}

// Shutdown releases all armed expiry timers.
func (c *Coordinator) Shutdown() {
	c.monitor.StopAll()
}

// CreateRide validates the passenger and inserts a new REQUESTED ride, arming
// its expiry timer.
func (c *Coordinator) CreateRide(ctx context.Context, passengerID uint, pickupID, destinationID string) (*models.Ride, error) {
	passenger, err := c.accounts.PassengerByID(ctx, passengerID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownPassenger
	}
	if err != nil {
		return nil, err
	}
	if passenger.IsBanned {
		return nil, ErrUnauthorizedActor
	}

	ride := &models.Ride{
		PassengerID:           &passengerID,
		PickupLocationID:      pickupID,
		DestinationLocationID: destinationID,
		Status:                models.RideStatusRequested,
	}
	if err := c.insert(ctx, ride); err != nil {
		return nil, err
	}
	c.monitor.Schedule(ride.ID, ride.CreatedAt)
	c.log.Info("ride requested", "rideId", ride.ID, "passengerId", passengerID)
	return ride, nil
}

// SimulateRide inserts an anonymous REQUESTED ride with no owning passenger.
// Used by the request simulator; such rides still expire but are never pushed
// to a device channel.
func (c *Coordinator) SimulateRide(ctx context.Context, pickupID, destinationID string) (*models.Ride, error) {
	ride := &models.Ride{
		PickupLocationID:      pickupID,
		DestinationLocationID: destinationID,
		Status:                models.RideStatusRequested,
	}
	if err := c.insert(ctx, ride); err != nil {
		return nil, err
	}
	c.monitor.Schedule(ride.ID, ride.CreatedAt)
	c.log.Info("simulated ride requested", "rideId", ride.ID)
	return ride, nil
}

// AcceptRide claims a REQUESTED ride for a puller. Among N concurrent
// accepts, exactly one succeeds; the rest observe store.ErrConflict and must
// re-fetch rather than retry.
func (c *Coordinator) AcceptRide(ctx context.Context, rideID string, pullerID uint) (*models.Ride, error) {
	puller, err := c.accounts.PullerByID(ctx, pullerID)
	if err != nil {
		return nil, err
	}
	if puller.IsBanned {
		return nil, ErrUnauthorizedActor
	}

	ride, err := c.transition(ctx, rideID,
		[]string{models.RideStatusRequested},
		store.Patch{Status: models.RideStatusAccepted, PullerID: &pullerID})
	if err != nil {
		return nil, err
	}
	// The request timer is superseded: a claimed ride that never starts has
	// its own deadline.
	c.monitor.OnAccepted(rideID)
	c.log.Info("ride accepted", "rideId", rideID, "pullerId", pullerID)
	return ride, nil
}

// StartRide moves an ACCEPTED ride to ACTIVE. Only the assigned puller may
// start it.
func (c *Coordinator) StartRide(ctx context.Context, rideID string, pullerID uint) (*models.Ride, error) {
	current, err := c.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if current.PullerID == nil || *current.PullerID != pullerID {
		return nil, ErrUnauthorizedActor
	}

	ride, err := c.transition(ctx, rideID,
		[]string{models.RideStatusAccepted},
		store.Patch{Status: models.RideStatusActive})
	if err != nil {
		return nil, err
	}
	c.monitor.Clear(rideID)
	c.log.Info("ride started", "rideId", rideID, "pullerId", pullerID)
	return ride, nil
}

// CompleteRide finalizes an ACTIVE or ACCEPTED ride and credits the
// completion reward. The guard fires the COMPLETED transition at most once
// per ride, which is what makes the award invocation exactly-once.
func (c *Coordinator) CompleteRide(ctx context.Context, rideID string, pullerID uint) (*models.Ride, *models.RewardTransaction, error) {
	current, err := c.rides.Get(ctx, rideID)
	if err != nil {
		return nil, nil, err
	}
	if current.PullerID == nil {
		return nil, nil, ErrNoPullerAssigned
	}
	if *current.PullerID != pullerID {
		return nil, nil, ErrUnauthorizedActor
	}
	if current.Status != models.RideStatusActive && current.Status != models.RideStatusAccepted {
		return nil, nil, ErrInvalidState
	}

	now := time.Now().UTC()
	ride, err := c.transition(ctx, rideID,
		[]string{models.RideStatusActive, models.RideStatusAccepted},
		store.Patch{Status: models.RideStatusCompleted, CompletedAt: &now})
	if err != nil {
		return nil, nil, err
	}
	c.monitor.Clear(rideID)

	// The transition is committed; the credit must not die with the caller's
	// request context (clients disconnect as soon as they see success). The
	// award runs on its own deadline, like the expiry callback does.
	var txn *models.RewardTransaction
	awardErr := c.withRetry(context.Background(), func(opCtx context.Context) error {
		var err error
		txn, err = c.rewards.AwardCompletion(opCtx, rideID, pullerID)
		return err
	})
	if awardErr != nil && !errors.Is(awardErr, ledger.ErrDuplicateReward) {
		// Only unrepairable here if the log append itself failed; anything
		// that left a log row is fixed by reconciliation.
		c.log.Error("completion reward failed", "rideId", rideID, "pullerId", pullerID, "error", awardErr)
	}
	c.log.Info("ride completed", "rideId", rideID, "pullerId", pullerID)
	return ride, txn, nil
}

// Actor identifies the caller of a cancellation.
type Actor struct {
	ID   uint
	Role string
}

// CancelRide cancels a non-terminal ride on behalf of its passenger, its
// assigned puller, or an operator.
func (c *Coordinator) CancelRide(ctx context.Context, rideID string, actor Actor) (*models.Ride, error) {
	current, err := c.rides.Get(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(current.Status) {
		return nil, ErrInvalidState
	}
	if !c.mayCancel(current, actor) {
		return nil, ErrUnauthorizedActor
	}

	ride, err := c.transition(ctx, rideID,
		[]string{models.RideStatusRequested, models.RideStatusAccepted, models.RideStatusActive},
		store.Patch{Status: models.RideStatusCanceled})
	if err != nil {
		return nil, err
	}
	c.monitor.Clear(rideID)
	c.log.Info("ride canceled", "rideId", rideID, "byRole", actor.Role)
	return ride, nil
}

func (c *Coordinator) mayCancel(ride *models.Ride, actor Actor) bool {
	switch actor.Role {
	case models.RoleAdmin:
		return true
	case models.RolePassenger:
		return ride.PassengerID != nil && *ride.PassengerID == actor.ID
	case models.RolePuller:
		return ride.PullerID != nil && *ride.PullerID == actor.ID
	}
	return false
}

// expire is the timer callback. The cancellation races human action through
// the assignment guard: a ride claimed or started in the meantime makes the
// conditional update a conflict, which is the expected inert outcome.
func (c *Coordinator) expire(rideID string, stage expiry.Stage) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.StorageTimeout)
	defer cancel()

	expected := []string{models.RideStatusRequested}
	if stage == expiry.StageAccepted {
		expected = []string{models.RideStatusAccepted}
	}
	_, err := c.transition(ctx, rideID, expected, store.Patch{Status: models.RideStatusCanceled})
	switch {
	case err == nil:
		observability.ExpiryCancellations.Inc()
		c.log.Info("ride expired", "rideId", rideID, "stage", stage.String())
	case errors.Is(err, store.ErrConflict):
		c.log.Debug("expiry fire lost to a live transition", "rideId", rideID)
	default:
		c.log.Error("expiry cancellation failed", "rideId", rideID, "error", err)
	}
}

// insert writes a new ride with bounded retries on transient faults.
func (c *Coordinator) insert(ctx context.Context, ride *models.Ride) error {
	return c.withRetry(ctx, func(opCtx context.Context) error {
		return c.rides.Insert(opCtx, ride)
	})
}

// transition runs one guarded transition with bounded retries on transient
// faults. Conflicts are returned immediately: retrying a stale precondition
// would be a bug, the state has legitimately moved on.
func (c *Coordinator) transition(ctx context.Context, rideID string, expected []string, patch store.Patch) (*models.Ride, error) {
	var ride *models.Ride
	err := c.withRetry(ctx, func(opCtx context.Context) error {
		var err error
		ride, err = c.rides.TryTransition(opCtx, rideID, expected, patch)
		return err
	})
	return ride, err
}

func (c *Coordinator) withRetry(ctx context.Context, op func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < c.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			backoff := c.opts.RetryBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		opCtx, cancel := context.WithTimeout(ctx, c.opts.StorageTimeout)
		err = op(opCtx)
		cancel()
		if !errors.Is(err, store.ErrUnavailable) {
			return err
		}
		c.log.Warn("storage unavailable, retrying", "attempt", attempt+1, "error", err)
	}
	return err
}
