package eventlog

import (
	"time"

	"github.com/google/uuid"

	"room-event-service/internal/domain"
)

// Predicate selects events from a log.
type Predicate func(domain.Event) bool

// All matches every event.
func All() Predicate {
	return func(domain.Event) bool { return true }
}

// InRoom matches events of one room.
func InRoom(roomID uuid.UUID) Predicate {
	return func(e domain.Event) bool { return e.RoomID == roomID }
}

// OfKind matches any of kinds. With no kinds it matches every event.
func OfKind(kinds ...domain.EventKind) Predicate {
	if len(kinds) == 0 {
		return All()
	}
	return func(e domain.Event) bool {
		for _, k := range kinds {
			if e.Kind == k {
				return true
			}
		}
		return false
	}
}

// Between matches CreatedAt in [from, to]. A zero bound is unbounded.
func Between(from, to time.Time) Predicate {
	return func(e domain.Event) bool {
		if !from.IsZero() && e.CreatedAt.Before(from) {
			return false
		}
		if !to.IsZero() && e.CreatedAt.After(to) {
			return false
		}
		return true
	}
}

// BeforeSeq matches events inserted before seq.
func BeforeSeq(seq int64) Predicate {
	return func(e domain.Event) bool { return e.Seq < seq }
}

// And matches events accepted by every pred. With no preds it matches all.
func And(preds ...Predicate) Predicate {
	return func(e domain.Event) bool {
		for _, p := range preds {
			if !p(e) {
				return false
			}
		}
		return true
	}
}

// Or matches events accepted by at least one pred.
func Or(preds ...Predicate) Predicate {
	return func(e domain.Event) bool {
		for _, p := range preds {
			if p(e) {
				return true
			}
		}
		return false
	}
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(e domain.Event) bool { return !p(e) }
}

// Filter returns the events matching p, keeping their order.
func Filter(events []domain.Event, p Predicate) []domain.Event {
	out := make([]domain.Event, 0, len(events))
	for _, e := range events {
		if p(e) {
			out = append(out, e)
		}
	}
	return out
}
