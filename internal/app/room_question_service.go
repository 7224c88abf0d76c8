package app

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/domain"
)

// RoomQuestionRepository stores the current room question rows.
type RoomQuestionRepository interface {
	Get(ctx context.Context, roomID, questionID uuid.UUID) (domain.RoomQuestion, error)
	Add(ctx context.Context, rq domain.RoomQuestion) error
	SetState(ctx context.Context, roomID, questionID uuid.UUID, state domain.RoomQuestionState) error
	// Remove detaches questionID from roomID.
	Remove(ctx context.Context, roomID, questionID uuid.UUID) error
}

// TransitionResult describes what a transition emitted.
type TransitionResult struct {
	RoomQuestion domain.RoomQuestion
	// Event is the state change event; nil for a no-op transition.
	Event *domain.Event
	// CodeEditor is set when the question became active.
	CodeEditor *domain.CodeEditorState
	// Warnings collects side-effect failures that did not undo the transition.
	Warnings []error
}

// Changed reports whether the transition emitted a state change.
func (r TransitionResult) Changed() bool { return r.Event != nil }

// RoomQuestionService is the room question state machine.
type RoomQuestionService struct {
	repo    RoomQuestionRepository
	emitter *Emitter
	editor  *CodeEditorDeriver
	log     zerolog.Logger

	mu    sync.Mutex
	rooms map[uuid.UUID]*sync.Mutex
}

func NewRoomQuestionService(repo RoomQuestionRepository, emitter *Emitter, editor *CodeEditorDeriver, log zerolog.Logger) *RoomQuestionService {
	return &RoomQuestionService{
		repo:    repo,
		emitter: emitter,
		editor:  editor,
		log:     log,
		rooms:   make(map[uuid.UUID]*sync.Mutex),
	}
}

// roomLock serializes read-modify-write of question rows within a room.
func (s *RoomQuestionService) roomLock(roomID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.rooms[roomID]
	if !ok {
		l = &sync.Mutex{}
		s.rooms[roomID] = l
	}
	return l
}

// Attach adds questionID to roomID in the Open state.
func (s *RoomQuestionService) Attach(ctx context.Context, roomID, questionID, actorID uuid.UUID, order int) (domain.RoomQuestion, domain.Event, error) {
	if roomID == uuid.Nil || questionID == uuid.Nil {
		return domain.RoomQuestion{}, domain.Event{}, domain.Validation("room id and question id are required")
	}
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	rq := domain.RoomQuestion{RoomID: roomID, QuestionID: questionID, State: domain.StateOpen, Order: order}
	if err := s.repo.Add(ctx, rq); err != nil {
		return domain.RoomQuestion{}, domain.Event{}, err
	}
	evt, err := s.emitter.Emit(ctx, roomID, actorID, domain.RoomQuestionAddPayload{
		QuestionID: questionID,
		State:      rq.State,
	})
	if err != nil {
		// Without its add event the row would block every retry.
		if rerr := s.repo.Remove(context.WithoutCancel(ctx), roomID, questionID); rerr != nil {
			s.log.Error().Err(rerr).
				Stringer("room_id", roomID).
				Stringer("question_id", questionID).
				Msg("failed to detach room question")
		}
		return domain.RoomQuestion{}, domain.Event{}, err
	}
	return rq, evt, nil
}

// Transition moves a room question to newState. Moving to the current state
// is a no-op and emits nothing. The state change event is authoritative: once
// appended, failures of the code editor side effects only show up as warnings.
func (s *RoomQuestionService) Transition(ctx context.Context, roomID, questionID uuid.UUID, newState domain.RoomQuestionState, actorID uuid.UUID) (TransitionResult, error) {
	if !newState.Valid() {
		return TransitionResult{}, domain.Validation("invalid room question state %q", newState)
	}
	lock := s.roomLock(roomID)
	lock.Lock()
	defer lock.Unlock()

	rq, err := s.repo.Get(ctx, roomID, questionID)
	if err != nil {
		return TransitionResult{}, err
	}
	previous := rq.State
	if previous == newState {
		return TransitionResult{RoomQuestion: rq}, nil
	}

	if err := s.repo.SetState(ctx, roomID, questionID, newState); err != nil {
		return TransitionResult{}, domain.StoreError("update room question state", err)
	}
	evt, err := s.emitter.Emit(ctx, roomID, actorID, domain.RoomQuestionChangePayload{
		QuestionID: questionID,
		OldState:   previous,
		NewState:   newState,
	})
	if err != nil {
		if rerr := s.repo.SetState(context.WithoutCancel(ctx), roomID, questionID, previous); rerr != nil {
			s.log.Error().Err(rerr).
				Stringer("room_id", roomID).
				Stringer("question_id", questionID).
				Msg("failed to restore room question state")
		}
		return TransitionResult{}, err
	}
	rq.State = newState

	s.log.Debug().
		Stringer("room_id", roomID).
		Stringer("question_id", questionID).
		Str("old_state", string(previous)).
		Str("new_state", string(newState)).
		Int64("seq", evt.Seq).
		Msg("room question state changed")

	result := TransitionResult{RoomQuestion: rq, Event: &evt}
	if newState == domain.StateActive && s.editor != nil {
		state, warnings := s.editor.OnActivated(ctx, rq, previous, evt, actorID)
		result.CodeEditor = &state
		result.Warnings = warnings
	}
	return result, nil
}
