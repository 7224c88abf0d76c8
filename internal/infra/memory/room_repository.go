package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"room-event-service/internal/domain"
)

// RoomRepository is an in-memory implementation of the room question
// repository and the analytics repository.
type RoomRepository struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*roomRecord
}

type roomRecord struct {
	room         domain.Room
	questions    map[uuid.UUID]*domain.RoomQuestion
	values       map[uuid.UUID]string
	participants []domain.Participant
	evaluations  map[evaluationKey]domain.Evaluation
}

type evaluationKey struct {
	user     uuid.UUID
	question uuid.UUID
}

func NewRoomRepository() *RoomRepository {
	return &RoomRepository{rooms: make(map[uuid.UUID]*roomRecord)}
}

// AddRoom registers a room, replacing any previous one with the same ID.
func (r *RoomRepository) AddRoom(room domain.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rooms[room.ID] = &roomRecord{
		room:        room,
		questions:   make(map[uuid.UUID]*domain.RoomQuestion),
		values:      make(map[uuid.UUID]string),
		evaluations: make(map[evaluationKey]domain.Evaluation),
	}
}

// SetQuestionValue records the question text shown in analytics.
func (r *RoomRepository) SetQuestionValue(roomID, questionID uuid.UUID, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	rec.values[questionID] = value
	return nil
}

// AddParticipant registers a participant and their review.
func (r *RoomRepository) AddParticipant(roomID uuid.UUID, p domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	for i := range rec.participants {
		if rec.participants[i].UserID == p.UserID {
			rec.participants[i] = p
			return nil
		}
	}
	rec.participants = append(rec.participants, p)
	return nil
}

// PutEvaluation upserts a participant's evaluation of a room question.
func (r *RoomRepository) PutEvaluation(roomID uuid.UUID, e domain.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, ok := rec.questions[e.QuestionID]; !ok {
		return domain.ErrRoomQuestionNotFound
	}
	rec.evaluations[evaluationKey{user: e.UserID, question: e.QuestionID}] = e
	return nil
}

func (r *RoomRepository) Get(_ context.Context, roomID, questionID uuid.UUID) (domain.RoomQuestion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return domain.RoomQuestion{}, domain.ErrRoomNotFound
	}
	rq, ok := rec.questions[questionID]
	if !ok {
		return domain.RoomQuestion{}, domain.ErrRoomQuestionNotFound
	}
	return *rq, nil
}

func (r *RoomRepository) Add(_ context.Context, rq domain.RoomQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rooms[rq.RoomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, exists := rec.questions[rq.QuestionID]; exists {
		return domain.Validation("question %s already attached to room %s", rq.QuestionID, rq.RoomID)
	}
	rq.Question = nil
	rec.questions[rq.QuestionID] = &rq
	return nil
}

func (r *RoomRepository) SetState(_ context.Context, roomID, questionID uuid.UUID, state domain.RoomQuestionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	rq, ok := rec.questions[questionID]
	if !ok {
		return domain.ErrRoomQuestionNotFound
	}
	rq.State = state
	return nil
}

func (r *RoomRepository) Remove(_ context.Context, roomID, questionID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return domain.ErrRoomNotFound
	}
	if _, ok := rec.questions[questionID]; !ok {
		return domain.ErrRoomQuestionNotFound
	}
	delete(rec.questions, questionID)
	delete(rec.values, questionID)
	for k := range rec.evaluations {
		if k.question == questionID {
			delete(rec.evaluations, k)
		}
	}
	return nil
}

func (r *RoomRepository) GetRoom(_ context.Context, roomID uuid.UUID) (domain.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return domain.Room{}, domain.ErrRoomNotFound
	}
	return rec.room, nil
}

func (r *RoomRepository) ListRoomQuestions(_ context.Context, roomID uuid.UUID) ([]domain.AnalyticsQuestionRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	rows := make([]domain.AnalyticsQuestionRow, 0, len(rec.questions))
	for _, rq := range rec.questions {
		rows = append(rows, domain.AnalyticsQuestionRow{
			QuestionID: rq.QuestionID,
			State:      rq.State,
			Value:      rec.values[rq.QuestionID],
			Order:      rq.Order,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Order != rows[j].Order {
			return rows[i].Order < rows[j].Order
		}
		return rows[i].QuestionID.String() < rows[j].QuestionID.String()
	})
	return rows, nil
}

func (r *RoomRepository) ListParticipants(_ context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	out := make([]domain.Participant, len(rec.participants))
	copy(out, rec.participants)
	return out, nil
}

func (r *RoomRepository) ListEvaluations(_ context.Context, roomID uuid.UUID) ([]domain.Evaluation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.rooms[roomID]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	out := make([]domain.Evaluation, 0, len(rec.evaluations))
	for _, e := range rec.evaluations {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID.String() < out[j].UserID.String()
		}
		return out[i].QuestionID.String() < out[j].QuestionID.String()
	})
	return out, nil
}
