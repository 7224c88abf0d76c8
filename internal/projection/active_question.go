// Package projection derives room facts by replaying the event log.
// Projections are pure functions over ordered events; the projector types
// only load the events and hand them over.
package projection

import (
	"context"
	"iter"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
)

// EventReader is the read side of a room event store.
type EventReader interface {
	QueryRange(ctx context.Context, roomID uuid.UUID, from, to time.Time, kinds ...domain.EventKind) ([]domain.Event, error)
	GetLatest(ctx context.Context, roomID uuid.UUID, kind domain.EventKind, from, to time.Time) (domain.Event, bool, error)
}

// Decoder decodes stored payloads.
type Decoder interface {
	DecodeEvent(domain.Event) (domain.Payload, error)
}

// SkipFunc is told about events that could not be decoded.
type SkipFunc func(domain.Event, error)

// Horizon bounds a projection: only events created at or before At and, when
// BeforeSeq is set, inserted before BeforeSeq are replayed. Windows still open
// at the horizon end at At.
type Horizon struct {
	At        time.Time
	BeforeSeq int64
}

// Ordered returns a copy of events sorted by CreatedAt then Seq.
func Ordered(events []domain.Event) []domain.Event {
	out := make([]domain.Event, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// ActiveWindows replays events and yields every activation window of
// questionID, most recent first. Nothing is computed until the sequence is
// ranged over, and each range replays from scratch.
func ActiveWindows(events []domain.Event, questionID uuid.UUID, horizon time.Time, dec Decoder, skip SkipFunc) iter.Seq[domain.ActiveQuestionWindow] {
	return func(yield func(domain.ActiveQuestionWindow) bool) {
		windows := pairWindows(Ordered(events), questionID, horizon, dec, skip)
		for i := len(windows) - 1; i >= 0; i-- {
			if !yield(windows[i]) {
				return
			}
		}
	}
}

func pairWindows(events []domain.Event, questionID uuid.UUID, horizon time.Time, dec Decoder, skip SkipFunc) []domain.ActiveQuestionWindow {
	var (
		windows []domain.ActiveQuestionWindow
		open    bool
		start   time.Time
	)
	for _, evt := range events {
		payload, err := dec.DecodeEvent(evt)
		if err != nil {
			if skip != nil {
				skip(evt, err)
			}
			continue
		}

		var active bool
		switch p := payload.(type) {
		case domain.RoomQuestionAddPayload:
			if p.QuestionID != questionID {
				continue
			}
			active = p.State == domain.StateActive
		case domain.RoomQuestionChangePayload:
			if p.QuestionID != questionID {
				continue
			}
			active = p.NewState == domain.StateActive
		default:
			continue
		}

		switch {
		case active && !open:
			open, start = true, evt.CreatedAt
		case !active && open:
			open = false
			windows = append(windows, domain.ActiveQuestionWindow{
				QuestionID:      questionID,
				StartActiveDate: start,
				EndActiveDate:   evt.CreatedAt,
			})
		}
	}
	if open {
		end := horizon
		if end.Before(start) {
			end = start
		}
		windows = append(windows, domain.ActiveQuestionWindow{
			QuestionID:      questionID,
			StartActiveDate: start,
			EndActiveDate:   end,
			Open:            true,
		})
	}
	return windows
}

// ActiveQuestionProjector loads a room's question events and projects
// activation windows from them.
type ActiveQuestionProjector struct {
	events   EventReader
	registry *eventlog.Registry
	log      zerolog.Logger
	clock    func() time.Time
}

func NewActiveQuestionProjector(events EventReader, registry *eventlog.Registry, log zerolog.Logger) *ActiveQuestionProjector {
	return &ActiveQuestionProjector{events: events, registry: registry, log: log, clock: time.Now}
}

// Windows returns the activation windows of questionID in roomID up to the
// horizon, most recent first. A zero horizon time means now.
func (p *ActiveQuestionProjector) Windows(ctx context.Context, roomID, questionID uuid.UUID, horizon Horizon) (iter.Seq[domain.ActiveQuestionWindow], error) {
	at := horizon.At
	if at.IsZero() {
		at = p.clock()
	}
	events, err := p.events.QueryRange(ctx, roomID, time.Time{}, at, domain.KindRoomQuestionAdd, domain.KindRoomQuestionChange)
	if err != nil {
		return nil, err
	}
	if horizon.BeforeSeq > 0 {
		events = eventlog.Filter(events, eventlog.BeforeSeq(horizon.BeforeSeq))
	}
	return ActiveWindows(events, questionID, at, p.registry, skipLogger(p.log)), nil
}

// LastWindow returns the most recent activation window of questionID.
func (p *ActiveQuestionProjector) LastWindow(ctx context.Context, roomID, questionID uuid.UUID, horizon Horizon) (domain.ActiveQuestionWindow, bool, error) {
	windows, err := p.Windows(ctx, roomID, questionID, horizon)
	if err != nil {
		return domain.ActiveQuestionWindow{}, false, err
	}
	for w := range windows {
		return w, true, nil
	}
	return domain.ActiveQuestionWindow{}, false, nil
}

func skipLogger(log zerolog.Logger) SkipFunc {
	return func(evt domain.Event, err error) {
		log.Warn().
			Err(err).
			Stringer("room_id", evt.RoomID).
			Int64("seq", evt.Seq).
			Str("kind", string(evt.Kind)).
			Msg("skipping undecodable event")
	}
}
