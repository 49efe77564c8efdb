package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
	"github.com/vietddude/tabretry/internal/core/domain"
)

// EventSubscriber receives navigation events published as JSON on a Redis channel.
type EventSubscriber struct {
	client  *Client
	channel string
	submit  func(ctx context.Context, ev domain.Event) error
	log     *slog.Logger
}

// NewEventSubscriber creates a subscriber forwarding navigation events to submit.
func NewEventSubscriber(
	client *Client,
	channel string,
	submit func(ctx context.Context, ev domain.Event) error,
) *EventSubscriber {
	return &EventSubscriber{
		client:  client,
		channel: channel,
		submit:  submit,
		log:     slog.Default().With("component", "redis-events", "channel", channel),
	}
}

// Publish sends a navigation event to the channel.
func (s *EventSubscriber) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return s.client.rdb.Publish(ctx, s.channel, data).Err()
}

// Run consumes the channel until ctx is cancelled.
func (s *EventSubscriber) Run(ctx context.Context) error {
	sub := s.client.rdb.Subscribe(ctx, s.channel)
	defer func() {
		_ = sub.Close()
	}()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	s.log.Info("Subscribed to navigation events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleMessage(ctx, msg.Payload)
		}
	}
}

// message is the wire form of a published event. TabID is a pointer so a payload
// without tab_id is dropped instead of addressing tab 0.
type message struct {
	ID    string           `json:"id"`
	Type  domain.EventType `json:"type"`
	TabID *domain.TabID    `json:"tab_id"`
}

func (s *EventSubscriber) handleMessage(ctx context.Context, payload string) {
	var msg message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.log.Warn("Dropping malformed event", "error", err)
		return
	}
	if msg.Type != domain.EventNavigationError && msg.Type != domain.EventNavigationCommitted {
		s.log.Warn("Dropping event with unsupported type", "type", msg.Type)
		return
	}
	if msg.TabID == nil || *msg.TabID < 0 {
		s.log.Warn("Dropping event without a valid tab_id", "type", msg.Type)
		return
	}

	ev := domain.Event{ID: msg.ID, Type: msg.Type, TabID: *msg.TabID}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if err := s.submit(ctx, ev); err != nil {
		s.log.Error("Failed to submit event", "event_id", ev.ID, "tab", ev.TabID, "error", err)
	}
}
