package coordinator

import "errors"

var (
	// ErrInvalidState means the requested transition is not legal from the
	// ride's current status. Terminal for the request; never retried.
	ErrInvalidState = errors.New("transition not legal from current ride state")

	// ErrUnauthorizedActor means the caller is not the assigned puller, is
	// not the owning passenger, or is banned/suspended.
	ErrUnauthorizedActor = errors.New("caller not authorized for this ride")

	// ErrUnknownPassenger means ride creation named a passenger identifier
	// that does not resolve to a known account.
	ErrUnknownPassenger = errors.New("passenger identifier not recognized")

	// ErrNoPullerAssigned means completion was requested for a ride that has
	// no assigned puller.
	ErrNoPullerAssigned = errors.New("no puller assigned to ride")
)
