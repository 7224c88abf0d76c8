// Package eventlog holds the closed set of room event kinds, the payload
// codec and the predicate builders used to filter a room's log.
package eventlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"room-event-service/internal/domain"
)

type decodeFunc func(raw []byte) (domain.Payload, error)

// Registry maps every recognized event kind to its payload decoder.
type Registry struct {
	decoders map[domain.EventKind]decodeFunc
}

func decoderFor[P domain.Payload]() decodeFunc {
	return func(raw []byte) (domain.Payload, error) {
		var p P
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return nil, err
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewRegistry returns the registry of kinds produced and consumed by rooms.
func NewRegistry() *Registry {
	return &Registry{decoders: map[domain.EventKind]decodeFunc{
		domain.KindRoomQuestionAdd:         decoderFor[domain.RoomQuestionAddPayload](),
		domain.KindRoomQuestionChange:      decoderFor[domain.RoomQuestionChangePayload](),
		domain.KindCodeEditorChange:        decoderFor[domain.CodeEditorChangePayload](),
		domain.KindCodeEditorEnabledChange: decoderFor[domain.CodeEditorEnabledChangePayload](),
	}}
}

// Kinds lists the registered kinds in a stable order.
func (r *Registry) Kinds() []domain.EventKind {
	kinds := make([]domain.EventKind, 0, len(r.decoders))
	for k := range r.decoders {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Known reports whether kind is registered.
func (r *Registry) Known(kind domain.EventKind) bool {
	_, ok := r.decoders[kind]
	return ok
}

// Decode turns a stored payload into its typed value.
func (r *Registry) Decode(kind domain.EventKind, raw []byte) (domain.Payload, error) {
	decode, ok := r.decoders[kind]
	if !ok {
		return nil, &domain.Error{Kind: domain.KindUnknownEventKind, Msg: fmt.Sprintf("unknown event kind %q", kind)}
	}
	p, err := decode(raw)
	if err != nil {
		return nil, &domain.Error{Kind: domain.KindMalformedPayload, Msg: fmt.Sprintf("decode %s payload", kind), Err: err}
	}
	return p, nil
}

// DecodeEvent decodes evt's payload.
func (r *Registry) DecodeEvent(evt domain.Event) (domain.Payload, error) {
	return r.Decode(evt.Kind, evt.Payload)
}

// NewEvent builds an unsaved event for roomID carrying payload. The store
// assigns ID and Seq; CreatedAt is filled by the store when zero.
func (r *Registry) NewEvent(roomID, createdByID uuid.UUID, payload domain.Payload, createdAt time.Time) (domain.Event, error) {
	if !r.Known(payload.EventKind()) {
		return domain.Event{}, &domain.Error{Kind: domain.KindUnknownEventKind, Msg: fmt.Sprintf("unknown event kind %q", payload.EventKind())}
	}
	if err := payload.Validate(); err != nil {
		return domain.Event{}, err
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal %s payload: %w", payload.EventKind(), err)
	}
	return domain.Event{
		RoomID:      roomID,
		Kind:        payload.EventKind(),
		Payload:     raw,
		CreatedByID: createdByID,
		CreatedAt:   createdAt,
	}, nil
}

// DecodeAs decodes evt and asserts the payload type.
func DecodeAs[P domain.Payload](r *Registry, evt domain.Event) (P, error) {
	var zero P
	payload, err := r.DecodeEvent(evt)
	if err != nil {
		return zero, err
	}
	p, ok := payload.(P)
	if !ok {
		return zero, &domain.Error{Kind: domain.KindMalformedPayload, Msg: fmt.Sprintf("event %s is not a %T", evt.Kind, zero)}
	}
	return p, nil
}
