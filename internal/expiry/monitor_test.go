package expiry

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fireRecorder struct {
	mu    sync.Mutex
	fires []Stage
	byID  map[string]int
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{byID: make(map[string]int)}
}

func (r *fireRecorder) fire(rideID string, stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fires = append(r.fires, stage)
	r.byID[rideID]++
}

func (r *fireRecorder) count(rideID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.byID[rideID]
}

func (r *fireRecorder) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, len(r.fires))
	copy(out, r.fires)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSchedule_FiresOnceAfterTimeout(t *testing.T) {
	rec := newFireRecorder()
	m := NewMonitor(20*time.Millisecond, time.Minute, rec.fire, testLogger())
	defer m.StopAll()

	m.Schedule("r1", time.Now())
	assert.Equal(t, 1, m.Pending())

	require.Eventually(t, func() bool { return rec.count("r1") == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, rec.count("r1"), "a deadline fires exactly once")
	assert.Equal(t, []Stage{StageRequested}, rec.stages())
	assert.Zero(t, m.Pending())
}

func TestSchedule_ElapsedDeadlineFiresImmediately(t *testing.T) {
	rec := newFireRecorder()
	m := NewMonitor(20*time.Millisecond, time.Minute, rec.fire, testLogger())
	defer m.StopAll()

	// Anchored to creation time, not to Schedule: a restart mid-window must
	// still enforce the original deadline.
	m.Schedule("r1", time.Now().Add(-time.Second))
	require.Eventually(t, func() bool { return rec.count("r1") == 1 }, time.Second, 5*time.Millisecond)
}

func TestOnAccepted_ReplacesRequestTimer(t *testing.T) {
	rec := newFireRecorder()
	m := NewMonitor(30*time.Millisecond, 60*time.Millisecond, rec.fire, testLogger())
	defer m.StopAll()

	m.Schedule("r1", time.Now())
	m.OnAccepted("r1")
	assert.Equal(t, 1, m.Pending(), "accept replaces rather than stacks")

	require.Eventually(t, func() bool { return rec.count("r1") == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Stage{StageAccepted}, rec.stages(), "only the accepted-stage deadline fires")
}

func TestClear_DisarmsTimer(t *testing.T) {
	rec := newFireRecorder()
	m := NewMonitor(20*time.Millisecond, time.Minute, rec.fire, testLogger())
	defer m.StopAll()

	m.Schedule("r1", time.Now())
	m.Clear("r1")
	assert.Zero(t, m.Pending())

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count("r1"))
}

func TestStopAll_ReleasesEverythingAndRejectsNewTimers(t *testing.T) {
	rec := newFireRecorder()
	m := NewMonitor(20*time.Millisecond, time.Minute, rec.fire, testLogger())

	m.Schedule("r1", time.Now())
	m.Schedule("r2", time.Now())
	m.StopAll()
	assert.Zero(t, m.Pending())

	m.Schedule("r3", time.Now())
	assert.Zero(t, m.Pending(), "a stopped monitor arms nothing")

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, rec.stages())
}

func TestStaleCallback_DoesNotUnmapReplacementTimer(t *testing.T) {
	rec := newFireRecorder()
	m := NewMonitor(15*time.Millisecond, time.Hour, rec.fire, testLogger())
	defer m.StopAll()

	m.Schedule("r1", time.Now())

	// Swap in a replacement before the elapsed callback gets the lock, as
	// when an accept lands in the window between the deadline elapsing and
	// the callback running. The requested-stage callback no longer owns the
	// slot, so it must be suppressed and must leave the replacement armed.
	replacement := time.AfterFunc(time.Hour, func() {})
	defer replacement.Stop()
	m.mu.Lock()
	m.timers["r1"] = replacement
	m.mu.Unlock()

	time.Sleep(60 * time.Millisecond)
	assert.Zero(t, rec.count("r1"), "stale requested-stage fire must be suppressed")
	assert.Equal(t, 1, m.Pending(), "replacement timer stays mapped")

	m.Clear("r1")
	assert.Zero(t, m.Pending())
}

func TestMonitor_ManyRidesIndependentDeadlines(t *testing.T) {
	rec := newFireRecorder()
	m := NewMonitor(25*time.Millisecond, time.Minute, rec.fire, testLogger())
	defer m.StopAll()

	m.Schedule("r1", time.Now())
	m.Schedule("r2", time.Now())
	m.Schedule("r3", time.Now())
	m.Clear("r2")

	require.Eventually(t, func() bool {
		return rec.count("r1") == 1 && rec.count("r3") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Zero(t, rec.count("r2"))
}
