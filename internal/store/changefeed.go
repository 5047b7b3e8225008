package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/aeras-mobility/aeras-backend/internal/models"
)

// RideChangesChannel is the pub/sub channel carrying committed ride mutations.
const RideChangesChannel = "rides:changes"

// EventKind distinguishes row insertions from updates on the feed.
type EventKind string

const (
	EventInsert EventKind = "INSERT"
	EventUpdate EventKind = "UPDATE"
)

// ChangeEvent is one committed mutation of a ride row. Old is the zero value
// for INSERT events.
type ChangeEvent struct {
	Kind EventKind   `json:"kind"`
	Old  models.Ride `json:"old"`
	New  models.Ride `json:"new"`
}

// ChangeFeed is a live, per-ride-ordered sequence of committed ride mutations.
// The store publishes after every committed write; any number of consumers
// may subscribe.
type ChangeFeed interface {
	Publish(ctx context.Context, ev ChangeEvent) error
	Subscribe(ctx context.Context) (<-chan ChangeEvent, error)
}

// RedisFeed implements ChangeFeed over a Redis pub/sub channel. Delivery is
// fire-and-forget per Redis semantics; the ride row remains the durable
// source of truth.
type RedisFeed struct {
	client  *redis.Client
	channel string
	log     *slog.Logger
}

func NewRedisFeed(client *redis.Client, log *slog.Logger) *RedisFeed {
	return &RedisFeed{client: client, channel: RideChangesChannel, log: log}
}

func (f *RedisFeed) Publish(ctx context.Context, ev ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	return f.client.Publish(ctx, f.channel, data).Err()
}

// Subscribe returns a channel of decoded change events. The subscription is
// closed when ctx is cancelled; undecodable payloads are logged and dropped.
func (f *RedisFeed) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	sub := f.client.Subscribe(ctx, f.channel)
	if _, err := sub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", f.channel, err)
	}

	out := make(chan ChangeEvent, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					f.log.Warn("dropping malformed change event", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// MemoryFeed is an in-process ChangeFeed used by tests and single-binary
// deployments without Redis.
type MemoryFeed struct {
	mu   sync.Mutex
	subs []chan ChangeEvent
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{}
}

func (f *MemoryFeed) Publish(ctx context.Context, ev ChangeEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sub := range f.subs {
		select {
		case sub <- ev:
		default:
			// Slow subscriber; drop rather than block the writer.
		}
	}
	return nil
}

func (f *MemoryFeed) Subscribe(ctx context.Context) (<-chan ChangeEvent, error) {
	ch := make(chan ChangeEvent, 64)
	f.mu.Lock()
	f.subs = append(f.subs, ch)
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		f.mu.Lock()
		for i, sub := range f.subs {
			if sub == ch {
				f.subs = append(f.subs[:i], f.subs[i+1:]...)
				break
			}
		}
		f.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}
