package projection

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
)

// RoomStateOf replays a room's log into its current state: the active
// question, the editor content and whether the editor is enabled.
func RoomStateOf(roomID uuid.UUID, events []domain.Event, dec Decoder, skip SkipFunc) domain.RoomState {
	state := domain.RoomState{RoomID: roomID}
	questions := make(map[uuid.UUID]domain.RoomQuestionState)
	var active *uuid.UUID

	for _, evt := range Ordered(events) {
		state.LastSeq = evt.Seq
		payload, err := dec.DecodeEvent(evt)
		if err != nil {
			if skip != nil {
				skip(evt, err)
			}
			continue
		}
		switch p := payload.(type) {
		case domain.RoomQuestionAddPayload:
			questions[p.QuestionID] = p.State
			if p.State == domain.StateActive {
				id := p.QuestionID
				active = &id
			}
		case domain.RoomQuestionChangePayload:
			questions[p.QuestionID] = p.NewState
			switch {
			case p.NewState == domain.StateActive:
				id := p.QuestionID
				active = &id
			case active != nil && *active == p.QuestionID:
				active = nil
			}
		case domain.CodeEditorChangePayload:
			state.CodeEditor.Content = p.Content
		case domain.CodeEditorEnabledChangePayload:
			state.CodeEditor.Enabled = p.Enabled
		}
	}
	if active != nil && questions[*active] == domain.StateActive {
		state.ActiveQuestionID = active
	}
	return state
}

// RoomStateProjector projects the current state of a room.
type RoomStateProjector struct {
	events   EventReader
	registry *eventlog.Registry
	log      zerolog.Logger
}

func NewRoomStateProjector(events EventReader, registry *eventlog.Registry, log zerolog.Logger) *RoomStateProjector {
	return &RoomStateProjector{events: events, registry: registry, log: log}
}

// Current replays the whole log of roomID.
func (p *RoomStateProjector) Current(ctx context.Context, roomID uuid.UUID) (domain.RoomState, error) {
	events, err := p.events.QueryRange(ctx, roomID, time.Time{}, time.Time{},
		domain.KindRoomQuestionAdd,
		domain.KindRoomQuestionChange,
		domain.KindCodeEditorChange,
		domain.KindCodeEditorEnabledChange,
	)
	if err != nil {
		return domain.RoomState{}, err
	}
	return RoomStateOf(roomID, events, p.registry, skipLogger(p.log)), nil
}
