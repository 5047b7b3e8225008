package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/aeras-mobility/aeras-backend/internal/config"
	"github.com/aeras-mobility/aeras-backend/internal/observability"
	"github.com/aeras-mobility/aeras-backend/internal/store"
)

// StatusMessage is the payload pushed to a passenger device channel. The
// puller field carries "N/A" when no puller is attached to the ride.
type StatusMessage struct {
	Status    string `json:"status"`
	PullerID  string `json:"puller_id"`
	Timestamp string `json:"timestamp"`
}

// Bridge turns committed ride status changes into device pushes. It is
// read-only over rides: publish failures are logged and counted, never
// propagated back to whatever caused the transition. The ride row is the
// durable source of truth, the push is best effort.
type Bridge struct {
	feed   store.ChangeFeed
	broker Broker
	allow  map[config.TransitionPair]struct{}
	log    *slog.Logger

	// Push, when set, sends an additional best-effort push through a direct
	// device channel (FCM) for passengers with a registered token.
	Push func(ctx context.Context, passengerID uint, rideID, status string)
}

func NewBridge(feed store.ChangeFeed, broker Broker, allowed []config.TransitionPair, log *slog.Logger) *Bridge {
	allow := make(map[config.TransitionPair]struct{}, len(allowed))
	for _, pair := range allowed {
		allow[pair] = struct{}{}
	}
	return &Bridge{feed: feed, broker: broker, allow: allow, log: log}
}

// Run consumes the change feed until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	events, err := b.feed.Subscribe(ctx)
	if err != nil {
		return err
	}
	b.log.Info("notification bridge attached to ride change feed")
	for ev := range events {
		b.Handle(ctx, ev)
	}
	return ctx.Err()
}

// Handle processes one change event. Exported so tests can drive the bridge
// without a live feed.
func (b *Bridge) Handle(ctx context.Context, ev store.ChangeEvent) {
	if ev.Kind != store.EventUpdate {
		return
	}
	if ev.New.PassengerID == nil {
		// Simulated rides have no device to notify.
		return
	}
	pair := config.TransitionPair{From: ev.Old.Status, To: ev.New.Status}
	if _, ok := b.allow[pair]; !ok {
		return
	}

	msg := StatusMessage{
		Status:    ev.New.Status,
		PullerID:  "N/A",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if ev.New.PullerID != nil {
		msg.PullerID = strconv.FormatUint(uint64(*ev.New.PullerID), 10)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("marshal status message", "rideId", ev.New.ID, "error", err)
		return
	}

	topic := DeviceTopic(*ev.New.PassengerID)
	if err := b.broker.Publish(ctx, topic, payload); err != nil {
		observability.BridgePublishFailures.Inc()
		b.log.Warn("device publish failed", "topic", topic, "rideId", ev.New.ID, "error", err)
	} else {
		observability.BridgePublished.WithLabelValues(msg.Status).Inc()
		b.log.Debug("published status to device topic", "topic", topic, "status", msg.Status)
	}

	if b.Push != nil {
		b.Push(ctx, *ev.New.PassengerID, ev.New.ID, ev.New.Status)
	}
}
