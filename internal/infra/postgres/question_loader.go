package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"room-event-service/internal/domain"
)

// QuestionLoader loads catalog questions and their code editors from Postgres.
type QuestionLoader struct {
	pool *pgxpool.Pool
}

func NewQuestionLoader(pool *pgxpool.Pool) *QuestionLoader {
	return &QuestionLoader{pool: pool}
}

func (l *QuestionLoader) LoadQuestion(ctx context.Context, questionID uuid.UUID) (domain.Question, error) {
	var (
		value   string
		content *string
		lang    *string
	)
	err := l.pool.QueryRow(ctx, `
SELECT q.value, e.content, e.lang
FROM questions q
LEFT JOIN question_code_editors e ON e.id = q.code_editor_id
WHERE q.id = $1`, questionID.String()).Scan(&value, &content, &lang)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Question{}, domain.ErrQuestionNotFound
		}
		return domain.Question{}, fmt.Errorf("load question: %w", err)
	}

	question := domain.Question{ID: questionID, Value: value}
	if content != nil {
		question.CodeEditor = &domain.CodeEditor{Content: *content}
		if lang != nil {
			question.CodeEditor.Lang = *lang
		}
	}
	return question, nil
}
