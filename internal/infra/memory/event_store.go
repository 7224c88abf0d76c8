package memory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
)

// EventStore is an in-memory implementation of app.EventStore.
// Appends to one room are serialized by that room's lock; rooms do not
// contend with each other.
type EventStore struct {
	clock func() time.Time

	mu    sync.RWMutex
	rooms map[uuid.UUID]*roomLog
}

type roomLog struct {
	mu     sync.RWMutex
	events []domain.Event
}

func NewEventStore() *EventStore {
	return NewEventStoreWithClock(time.Now)
}

// NewEventStoreWithClock allows deterministic timestamps in tests.
func NewEventStoreWithClock(now func() time.Time) *EventStore {
	return &EventStore{clock: now, rooms: make(map[uuid.UUID]*roomLog)}
}

func (s *EventStore) room(roomID uuid.UUID, create bool) *roomLog {
	s.mu.RLock()
	log, ok := s.rooms[roomID]
	s.mu.RUnlock()
	if ok || !create {
		return log
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok := s.rooms[roomID]; ok {
		return log
	}
	log = &roomLog{}
	s.rooms[roomID] = log
	return log
}

func (s *EventStore) Append(ctx context.Context, evt domain.Event) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, err
	}
	if evt.RoomID == uuid.Nil {
		return domain.Event{}, domain.Validation("event room id is required")
	}

	log := s.room(evt.RoomID, true)
	log.mu.Lock()
	defer log.mu.Unlock()

	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	evt.CreatedAt = evt.CreatedAt.UTC()
	if n := len(log.events); n > 0 {
		if last := log.events[n-1].CreatedAt; evt.CreatedAt.Before(last) {
			evt.CreatedAt = last
		}
	}
	evt.ID = uuid.New()
	evt.Seq = int64(len(log.events)) + 1
	evt.Payload = bytes.Clone(evt.Payload)

	log.events = append(log.events, evt)
	return evt, nil
}

func (s *EventStore) QueryRange(ctx context.Context, roomID uuid.UUID, from, to time.Time, kinds ...domain.EventKind) ([]domain.Event, error) {
	return s.query(ctx, roomID, eventlog.And(eventlog.OfKind(kinds...), eventlog.Between(from, to)))
}

func (s *EventStore) GetLatest(ctx context.Context, roomID uuid.UUID, kind domain.EventKind, from, to time.Time) (domain.Event, bool, error) {
	events, err := s.QueryRange(ctx, roomID, from, to, kind)
	if err != nil || len(events) == 0 {
		return domain.Event{}, false, err
	}
	return events[len(events)-1], true, nil
}

// Query returns the events of roomID matching pred in log order.
func (s *EventStore) Query(ctx context.Context, roomID uuid.UUID, pred eventlog.Predicate) ([]domain.Event, error) {
	return s.query(ctx, roomID, pred)
}

func (s *EventStore) query(ctx context.Context, roomID uuid.UUID, pred eventlog.Predicate) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := s.room(roomID, false)
	if log == nil {
		return []domain.Event{}, nil
	}
	log.mu.RLock()
	defer log.mu.RUnlock()

	out := make([]domain.Event, 0)
	for _, evt := range log.events {
		if pred(evt) {
			evt.Payload = bytes.Clone(evt.Payload)
			out = append(out, evt)
		}
	}
	return out, nil
}
