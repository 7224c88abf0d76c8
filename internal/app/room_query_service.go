package app

import (
	"context"

	"github.com/google/uuid"

	"room-event-service/internal/domain"
	"room-event-service/internal/projection"
)

// RoomQueryService answers read-only questions about a room from its log.
type RoomQueryService struct {
	state   *projection.RoomStateProjector
	windows *projection.ActiveQuestionProjector
}

func NewRoomQueryService(state *projection.RoomStateProjector, windows *projection.ActiveQuestionProjector) *RoomQueryService {
	return &RoomQueryService{state: state, windows: windows}
}

// State returns the current room state.
func (s *RoomQueryService) State(ctx context.Context, roomID uuid.UUID) (domain.RoomState, error) {
	return s.state.Current(ctx, roomID)
}

// ActiveWindows lists every activation window of questionID, most recent first.
func (s *RoomQueryService) ActiveWindows(ctx context.Context, roomID, questionID uuid.UUID) ([]domain.ActiveQuestionWindow, error) {
	seq, err := s.windows.Windows(ctx, roomID, questionID, projection.Horizon{})
	if err != nil {
		return nil, err
	}
	out := []domain.ActiveQuestionWindow{}
	for w := range seq {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
