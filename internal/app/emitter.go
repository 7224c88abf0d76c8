package app

import (
	"context"
	"time"

	"github.com/google/uuid"

	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
	"room-event-service/internal/projection"
)

// EventStore is the append/query surface of a room's event log.
type EventStore interface {
	projection.EventReader
	// Append persists evt and returns it with ID, Seq and CreatedAt set.
	Append(ctx context.Context, evt domain.Event) (domain.Event, error)
}

// Dispatcher is notified after every successful append, e.g. to push the
// event to connected clients.
type Dispatcher interface {
	OnEventAppended(ctx context.Context, evt domain.Event)
}

// Dispatchers fans an event out to several dispatchers.
type Dispatchers []Dispatcher

func (d Dispatchers) OnEventAppended(ctx context.Context, evt domain.Event) {
	for _, dispatcher := range d {
		dispatcher.OnEventAppended(ctx, evt)
	}
}

// Emitter encodes payloads, appends them and dispatches the stored events.
type Emitter struct {
	store    EventStore
	registry *eventlog.Registry
	dispatch Dispatcher
	clock    func() time.Time
}

func NewEmitter(store EventStore, registry *eventlog.Registry, dispatch Dispatcher) *Emitter {
	return &Emitter{store: store, registry: registry, dispatch: dispatch, clock: time.Now}
}

// NewEmitterWithClock is test-only for deterministic timestamps.
func NewEmitterWithClock(store EventStore, registry *eventlog.Registry, dispatch Dispatcher, now func() time.Time) *Emitter {
	e := NewEmitter(store, registry, dispatch)
	e.clock = now
	return e
}

// Emit appends payload to roomID's log.
func (e *Emitter) Emit(ctx context.Context, roomID, actorID uuid.UUID, payload domain.Payload) (domain.Event, error) {
	evt, err := e.registry.NewEvent(roomID, actorID, payload, e.clock())
	if err != nil {
		return domain.Event{}, err
	}
	stored, err := e.store.Append(ctx, evt)
	if err != nil {
		return domain.Event{}, domain.StoreError("append "+string(evt.Kind), err)
	}
	if e.dispatch != nil {
		e.dispatch.OnEventAppended(ctx, stored)
	}
	return stored, nil
}
