package redis

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"room-event-service/internal/domain"
)

// EventPublisher implements the dispatch hook by publishing every appended
// event to a per-room Redis channel, so other instances can fan it out to
// their own websocket clients.
type EventPublisher struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewEventPublisher(client *redis.Client, log zerolog.Logger) *EventPublisher {
	return &EventPublisher{client: client, log: log}
}

// Channel names the pub/sub channel of a room.
func Channel(roomID uuid.UUID) string {
	return "room:" + roomID.String() + ":events"
}

func (p *EventPublisher) OnEventAppended(ctx context.Context, evt domain.Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Warn().Err(err).Int64("seq", evt.Seq).Msg("encode event for publish")
		return
	}
	// best-effort: the log is the source of truth, clients can re-read it
	if err := p.client.Publish(context.WithoutCancel(ctx), Channel(evt.RoomID), data).Err(); err != nil {
		p.log.Warn().Err(err).
			Stringer("room_id", evt.RoomID).
			Int64("seq", evt.Seq).
			Msg("publish event")
	}
}

// Stream delivers roomID's published events until ctx is done.
func (p *EventPublisher) Stream(ctx context.Context, roomID uuid.UUID) (<-chan domain.Event, error) {
	sub := p.client.Subscribe(ctx, Channel(roomID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, err
	}
	out := make(chan domain.Event, 16)
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
				var evt domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					p.log.Warn().Err(err).Msg("decode published event")
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
