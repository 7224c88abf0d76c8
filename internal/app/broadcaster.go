package app

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"room-event-service/internal/domain"
)

// Broadcaster delivers appended events to in-process subscribers of a room.
type Broadcaster struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[chan domain.Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{rooms: make(map[uuid.UUID]map[chan domain.Event]struct{})}
}

// Subscribe returns a channel receiving roomID's events.
// The caller must invoke the returned cancel function to avoid leaks.
func (b *Broadcaster) Subscribe(roomID uuid.UUID) (<-chan domain.Event, func()) {
	ch := make(chan domain.Event, 16)

	b.mu.Lock()
	subs, ok := b.rooms[roomID]
	if !ok {
		subs = make(map[chan domain.Event]struct{})
		b.rooms[roomID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.rooms[roomID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(b.rooms, roomID)
		}
	}
	return ch, cancel
}

// Stream is Subscribe bound to ctx: the channel closes once ctx is done.
func (b *Broadcaster) Stream(ctx context.Context, roomID uuid.UUID) (<-chan domain.Event, error) {
	ch, cancel := b.Subscribe(roomID)
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, nil
}

// Subscribers returns the number of live subscriptions for roomID.
func (b *Broadcaster) Subscribers(roomID uuid.UUID) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[roomID])
}

func (b *Broadcaster) OnEventAppended(_ context.Context, evt domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.rooms[evt.RoomID] {
		select {
		case ch <- evt:
		default:
			// Slow subscriber: drop its oldest pending event.
			select {
			case <-ch:
			default:
			}
			ch <- evt
		}
	}
}
