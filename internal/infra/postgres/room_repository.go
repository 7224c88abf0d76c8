package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"room-event-service/internal/domain"
)

type roomRow struct {
	bun.BaseModel `bun:"table:rooms"`

	ID   uuid.UUID `bun:"id,pk,type:uuid"`
	Name string    `bun:"name"`
	Type string    `bun:"type"`
}

type roomQuestionRow struct {
	bun.BaseModel `bun:"table:room_questions"`

	RoomID     uuid.UUID `bun:"room_id,pk,type:uuid"`
	QuestionID uuid.UUID `bun:"question_id,pk,type:uuid"`
	State      string    `bun:"state"`
	Order      int       `bun:"order"`
}

// RoomRepository reads and writes room rows with bun. It serves both the
// room question state machine and the analytics aggregator.
type RoomRepository struct {
	db *bun.DB
}

func NewRoomRepository(db *bun.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// Get loads a room question together with its catalog question and editor.
func (r *RoomRepository) Get(ctx context.Context, roomID, questionID uuid.UUID) (domain.RoomQuestion, error) {
	var row struct {
		RoomID        uuid.UUID `bun:"room_id"`
		QuestionID    uuid.UUID `bun:"question_id"`
		State         string    `bun:"state"`
		Order         int       `bun:"order"`
		Value         string    `bun:"value"`
		HasCodeEditor bool      `bun:"has_code_editor"`
		Content       string    `bun:"content"`
		Lang          string    `bun:"lang"`
	}
	err := r.db.NewRaw(`
SELECT rq.room_id, rq.question_id, rq.state, rq."order", q.value,
       e.id IS NOT NULL AS has_code_editor,
       COALESCE(e.content, '') AS content,
       COALESCE(e.lang, '') AS lang
FROM room_questions rq
JOIN questions q ON q.id = rq.question_id
LEFT JOIN question_code_editors e ON e.id = q.code_editor_id
WHERE rq.room_id = ? AND rq.question_id = ?`, roomID, questionID).Scan(ctx, &row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.RoomQuestion{}, domain.ErrRoomQuestionNotFound
		}
		return domain.RoomQuestion{}, domain.StoreError("load room question", err)
	}

	question := &domain.Question{ID: row.QuestionID, Value: row.Value}
	if row.HasCodeEditor {
		question.CodeEditor = &domain.CodeEditor{Content: row.Content, Lang: row.Lang}
	}
	return domain.RoomQuestion{
		RoomID:     row.RoomID,
		QuestionID: row.QuestionID,
		State:      domain.RoomQuestionState(row.State),
		Order:      row.Order,
		Question:   question,
	}, nil
}

func (r *RoomRepository) Add(ctx context.Context, rq domain.RoomQuestion) error {
	row := roomQuestionRow{
		RoomID:     rq.RoomID,
		QuestionID: rq.QuestionID,
		State:      string(rq.State),
		Order:      rq.Order,
	}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) {
			switch pgErr.Field('C') {
			case "23505":
				return domain.Validation("question %s already attached to room %s", rq.QuestionID, rq.RoomID)
			case "23503":
				return domain.NotFound("room %s or question %s not found", rq.RoomID, rq.QuestionID)
			}
		}
		return domain.StoreError("insert room question", err)
	}
	return nil
}

func (r *RoomRepository) SetState(ctx context.Context, roomID, questionID uuid.UUID, state domain.RoomQuestionState) error {
	res, err := r.db.NewUpdate().
		Model((*roomQuestionRow)(nil)).
		Set("state = ?", string(state)).
		Where("room_id = ?", roomID).
		Where("question_id = ?", questionID).
		Exec(ctx)
	if err != nil {
		return domain.StoreError("update room question", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRoomQuestionNotFound
	}
	return nil
}

func (r *RoomRepository) Remove(ctx context.Context, roomID, questionID uuid.UUID) error {
	res, err := r.db.NewDelete().
		Model((*roomQuestionRow)(nil)).
		Where("room_id = ?", roomID).
		Where("question_id = ?", questionID).
		Exec(ctx)
	if err != nil {
		return domain.StoreError("delete room question", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrRoomQuestionNotFound
	}
	return nil
}

func (r *RoomRepository) GetRoom(ctx context.Context, roomID uuid.UUID) (domain.Room, error) {
	var row roomRow
	if err := r.db.NewSelect().Model(&row).Where("id = ?", roomID).Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Room{}, domain.ErrRoomNotFound
		}
		return domain.Room{}, domain.StoreError("load room", err)
	}
	return domain.Room{ID: row.ID, Name: row.Name, Type: domain.RoomType(row.Type)}, nil
}

func (r *RoomRepository) ListRoomQuestions(ctx context.Context, roomID uuid.UUID) ([]domain.AnalyticsQuestionRow, error) {
	var rows []struct {
		QuestionID uuid.UUID `bun:"question_id"`
		State      string    `bun:"state"`
		Value      string    `bun:"value"`
		Order      int       `bun:"order"`
	}
	if err := r.db.NewRaw(`
SELECT rq.question_id, rq.state, q.value, rq."order"
FROM room_questions rq
JOIN questions q ON q.id = rq.question_id
WHERE rq.room_id = ?
ORDER BY rq."order", rq.question_id`, roomID).Scan(ctx, &rows); err != nil {
		return nil, domain.StoreError("list room questions", err)
	}
	out := make([]domain.AnalyticsQuestionRow, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.AnalyticsQuestionRow{
			QuestionID: row.QuestionID,
			State:      domain.RoomQuestionState(row.State),
			Value:      row.Value,
			Order:      row.Order,
		})
	}
	return out, nil
}

func (r *RoomRepository) ListParticipants(ctx context.Context, roomID uuid.UUID) ([]domain.Participant, error) {
	var rows []struct {
		UserID      uuid.UUID `bun:"user_id"`
		Nickname    string    `bun:"nickname"`
		Avatar      string    `bun:"avatar"`
		Type        string    `bun:"type"`
		ReviewState string    `bun:"review_state"`
		Review      string    `bun:"review"`
	}
	if err := r.db.NewRaw(`
SELECT p.user_id, u.nickname, u.avatar, p.type,
       COALESCE(rv.state, '') AS review_state,
       COALESCE(rv.review, '') AS review
FROM room_participants p
JOIN users u ON u.id = p.user_id
LEFT JOIN room_reviews rv ON rv.room_id = p.room_id AND rv.user_id = p.user_id
WHERE p.room_id = ?
ORDER BY u.nickname, p.user_id`, roomID).Scan(ctx, &rows); err != nil {
		return nil, domain.StoreError("list participants", err)
	}
	out := make([]domain.Participant, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Participant{
			UserID:      row.UserID,
			Nickname:    row.Nickname,
			Avatar:      row.Avatar,
			Type:        domain.ParticipantType(row.Type),
			ReviewState: domain.ReviewState(row.ReviewState),
			Review:      row.Review,
		})
	}
	return out, nil
}

func (r *RoomRepository) ListEvaluations(ctx context.Context, roomID uuid.UUID) ([]domain.Evaluation, error) {
	var rows []struct {
		UserID     uuid.UUID     `bun:"user_id"`
		QuestionID uuid.UUID     `bun:"question_id"`
		Mark       sql.NullInt64 `bun:"mark"`
		Review     string        `bun:"review"`
		State      string        `bun:"state"`
	}
	if err := r.db.NewRaw(`
SELECT user_id, question_id, mark, review, state
FROM room_question_evaluations
WHERE room_id = ?`, roomID).Scan(ctx, &rows); err != nil {
		return nil, domain.StoreError("list evaluations", err)
	}
	out := make([]domain.Evaluation, 0, len(rows))
	for _, row := range rows {
		e := domain.Evaluation{
			UserID:     row.UserID,
			QuestionID: row.QuestionID,
			Review:     row.Review,
			State:      domain.EvaluationState(row.State),
		}
		if row.Mark.Valid {
			mark := int(row.Mark.Int64)
			e.Mark = &mark
		}
		out = append(out, e)
	}
	return out, nil
}

// CreateRoom inserts a room row. Used by seeding and tests.
func (r *RoomRepository) CreateRoom(ctx context.Context, room domain.Room) error {
	row := roomRow{ID: room.ID, Name: room.Name, Type: string(room.Type)}
	if _, err := r.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		return fmt.Errorf("insert room: %w", err)
	}
	return nil
}
