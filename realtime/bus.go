// Package realtime fans domain events out to read-side listeners over redis pub/sub.
// Publishing never waits for subscribers.
package realtime

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "lablink:events"

type Event struct {
	ID          int64     `json:"id"`
	Type        string    `json:"type"`
	AggregateID string    `json:"aggregateId"`
	RequestID   string    `json:"requestId,omitempty"`
	ItemID      string    `json:"itemId,omitempty"`
	Department  string    `json:"departmentId,omitempty"`
	Status      string    `json:"status,omitempty"`
	At          time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type RedisBus struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	msg, err := jsoniter.ConfigFastest.MarshalToString(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, msg).Err()
}

// Subscribe streams events until ctx is done. Undecodable messages are skipped.
func (b *RedisBus) Subscribe(ctx context.Context) (<-chan Event, error) {
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan Event, 16)
	go func() {
		defer close(out)
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				ev, err := Decode(m.Payload)
				if err != nil {
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

func Decode(payload string) (Event, error) {
	var ev Event
	err := jsoniter.ConfigFastest.UnmarshalFromString(payload, &ev)
	return ev, err
}

// Nop drops every event; used when no redis is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
