package expiry

import (
	"log/slog"
	"sync"
	"time"
)

// Stage identifies which lifecycle deadline a timer enforces.
type Stage int

const (
	// StageRequested cancels rides no puller claimed in time.
	StageRequested Stage = iota
	// StageAccepted cancels rides a puller claimed but never started.
	StageAccepted
)

func (s Stage) String() string {
	if s == StageAccepted {
		return "accepted"
	}
	return "requested"
}

// FireFunc is invoked when a deadline elapses. The cancellation it performs
// goes through the assignment guard, so a stale or duplicate fire is inert:
// the first firer wins, later ones observe a conflict and no-op.
type FireFunc func(rideID string, stage Stage)

// Monitor owns one timer per live ride. Timer ownership lives in this server
// process rather than in any caller's session, so expiry does not depend on a
// particular client staying connected. All timers are released on terminal
// observation or shutdown.
type Monitor struct {
	mu             sync.Mutex
	timers         map[string]*time.Timer
	requestTimeout time.Duration
	acceptTimeout  time.Duration
	fire           FireFunc
	log            *slog.Logger
	stopped        bool
}

func NewMonitor(requestTimeout, acceptTimeout time.Duration, fire FireFunc, log *slog.Logger) *Monitor {
	return &Monitor{
		timers:         make(map[string]*time.Timer),
		requestTimeout: requestTimeout,
		acceptTimeout:  acceptTimeout,
		fire:           fire,
		log:            log,
	}
}

// Schedule arms the unclaimed-request deadline for a ride. The deadline is
// anchored to the ride's creation time so a monitor restarted mid-window
// still fires on schedule; an already-elapsed deadline fires immediately.
func (m *Monitor) Schedule(rideID string, createdAt time.Time) {
	remaining := m.requestTimeout - time.Since(createdAt)
	m.arm(rideID, StageRequested, remaining)
}

// OnAccepted replaces the request timer with the accepted-stage timer: a ride
// claimed but never started is cancelled after the accept deadline.
func (m *Monitor) OnAccepted(rideID string) {
	m.arm(rideID, StageAccepted, m.acceptTimeout)
}

// Clear drops any timer for the ride. Called on start, completion, or cancel.
func (m *Monitor) Clear(rideID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[rideID]; ok {
		t.Stop()
		delete(m.timers, rideID)
	}
}

// StopAll releases every timer. Further Schedule calls are ignored.
func (m *Monitor) StopAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	for id, t := range m.timers {
		t.Stop()
		delete(m.timers, id)
	}
}

// Pending returns the number of armed timers.
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Monitor) arm(rideID string, stage Stage, after time.Duration) {
	if after < 0 {
		after = 0
	}
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if prev, ok := m.timers[rideID]; ok {
		prev.Stop()
	}
	// The callback fires only while it still owns the map slot. A timer
	// replaced or cleared after its deadline elapsed but before the callback
	// ran is stale and must neither fire nor unmap its successor.
	var t *time.Timer
	t = time.AfterFunc(after, func() {
		m.mu.Lock()
		if cur, ok := m.timers[rideID]; !ok || cur != t {
			m.mu.Unlock()
			return
		}
		delete(m.timers, rideID)
		m.mu.Unlock()
		m.log.Debug("expiry deadline elapsed", "rideId", rideID, "stage", stage.String())
		m.fire(rideID, stage)
	})
	m.timers[rideID] = t
	m.mu.Unlock()
}
