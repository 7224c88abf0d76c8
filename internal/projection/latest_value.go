package projection

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
)

// LatestValueProjector returns the most recent event of a kind inside an
// inclusive [from, to] window.
type LatestValueProjector struct {
	events   EventReader
	registry *eventlog.Registry
	log      zerolog.Logger
}

func NewLatestValueProjector(events EventReader, registry *eventlog.Registry, log zerolog.Logger) *LatestValueProjector {
	return &LatestValueProjector{events: events, registry: registry, log: log}
}

// Latest is a pass-through to the store's GetLatest.
func (p *LatestValueProjector) Latest(ctx context.Context, roomID uuid.UUID, kind domain.EventKind, from, to time.Time) (domain.Event, bool, error) {
	return p.events.GetLatest(ctx, roomID, kind, from, to)
}

// LatestCodeEditorContent returns the latest code editor content written
// inside the window.
func (p *LatestValueProjector) LatestCodeEditorContent(ctx context.Context, roomID uuid.UUID, from, to time.Time) (domain.CodeEditorChangePayload, bool, error) {
	return latestPayload[domain.CodeEditorChangePayload](ctx, p, roomID, domain.KindCodeEditorChange, from, to)
}

// LatestCodeEditorEnabled returns the latest enablement change inside the window.
func (p *LatestValueProjector) LatestCodeEditorEnabled(ctx context.Context, roomID uuid.UUID, from, to time.Time) (domain.CodeEditorEnabledChangePayload, bool, error) {
	return latestPayload[domain.CodeEditorEnabledChangePayload](ctx, p, roomID, domain.KindCodeEditorEnabledChange, from, to)
}

// latestPayload decodes the latest event of kind. When that event is corrupt
// it is skipped and the window is scanned backwards for the newest readable one.
func latestPayload[P domain.Payload](ctx context.Context, p *LatestValueProjector, roomID uuid.UUID, kind domain.EventKind, from, to time.Time) (P, bool, error) {
	var zero P
	evt, ok, err := p.Latest(ctx, roomID, kind, from, to)
	if err != nil || !ok {
		return zero, false, err
	}
	payload, err := eventlog.DecodeAs[P](p.registry, evt)
	if err == nil {
		return payload, true, nil
	}
	if !isDecodeError(err) {
		return zero, false, err
	}
	skipLogger(p.log)(evt, err)

	events, err := p.events.QueryRange(ctx, roomID, from, evt.CreatedAt, kind)
	if err != nil {
		return zero, false, err
	}
	events = Ordered(events)
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Seq >= evt.Seq {
			continue
		}
		payload, err := eventlog.DecodeAs[P](p.registry, events[i])
		if err != nil {
			skipLogger(p.log)(events[i], err)
			continue
		}
		return payload, true, nil
	}
	return zero, false, nil
}

func isDecodeError(err error) bool {
	return errors.Is(err, domain.ErrMalformedPayload) || errors.Is(err, domain.ErrUnknownEventKind)
}
