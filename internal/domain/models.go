package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RoomQuestionState is the lifecycle state of a question inside a room.
type RoomQuestionState string

const (
	StateOpen   RoomQuestionState = "Open"
	StateActive RoomQuestionState = "Active"
	StateClosed RoomQuestionState = "Closed"
)

func (s RoomQuestionState) Valid() bool {
	switch s {
	case StateOpen, StateActive, StateClosed:
		return true
	}
	return false
}

// ParseRoomQuestionState validates a state coming from a client.
func ParseRoomQuestionState(raw string) (RoomQuestionState, error) {
	s := RoomQuestionState(raw)
	if !s.Valid() {
		return "", fmt.Errorf("%w %q", ErrInvalidState, raw)
	}
	return s, nil
}

// RoomType distinguishes regular interview rooms from automated ones.
type RoomType string

const (
	RoomTypeStandard RoomType = "Standard"
	RoomTypeAI       RoomType = "AI"
)

// Room is the minimal room metadata used by the core.
type Room struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Type RoomType  `json:"type"`
}

// CodeEditor is the code editor definition authored on a question.
type CodeEditor struct {
	Content string `json:"content"`
	Lang    string `json:"lang"`
}

// Question is an entry of the question catalog.
type Question struct {
	ID         uuid.UUID   `json:"id"`
	Value      string      `json:"value"`
	CodeEditor *CodeEditor `json:"codeEditor,omitempty"`
}

// RoomQuestion is one question attached to one room.
type RoomQuestion struct {
	RoomID     uuid.UUID
	QuestionID uuid.UUID
	State      RoomQuestionState
	Order      int
	// Question holds catalog metadata when the caller already loaded it; nil
	// means the catalog has to be consulted.
	Question *Question
}

// ActiveQuestionWindow is a half-open interval [StartActiveDate, EndActiveDate)
// during which a question was the room's active question.
type ActiveQuestionWindow struct {
	QuestionID      uuid.UUID `json:"questionId"`
	StartActiveDate time.Time `json:"startActiveDate"`
	EndActiveDate   time.Time `json:"endActiveDate"`
	// Open is set when no deactivation followed; EndActiveDate is then the
	// projection horizon.
	Open bool `json:"open"`
}

// CodeEditorState is the derived state of the shared code editor.
type CodeEditorState struct {
	Enabled bool   `json:"enabled"`
	Content string `json:"content"`
}

// RoomState is the current truth of a room, derived from its log.
type RoomState struct {
	RoomID           uuid.UUID       `json:"roomId"`
	ActiveQuestionID *uuid.UUID      `json:"activeQuestionId,omitempty"`
	CodeEditor       CodeEditorState `json:"codeEditor"`
	LastSeq          int64           `json:"lastSeq"`
}

// ParticipantType is the role of a participant in a room.
type ParticipantType string

const (
	ParticipantViewer   ParticipantType = "Viewer"
	ParticipantExpert   ParticipantType = "Expert"
	ParticipantExaminee ParticipantType = "Examinee"
)

// ReviewState is the state of a participant's overall room review.
type ReviewState string

const (
	ReviewOpen   ReviewState = "Open"
	ReviewClosed ReviewState = "Closed"
)

// EvaluationState is the state of a per-question evaluation.
type EvaluationState string

const (
	EvaluationDraft     EvaluationState = "Draft"
	EvaluationSubmitted EvaluationState = "Submitted"
)

// Participant is a room participant together with their review, if any.
type Participant struct {
	UserID      uuid.UUID
	Nickname    string
	Avatar      string
	Type        ParticipantType
	ReviewState ReviewState
	Review      string
}

// Evaluation is a participant's mark for one room question.
type Evaluation struct {
	UserID     uuid.UUID
	QuestionID uuid.UUID
	Mark       *int
	Review     string
	State      EvaluationState
}

// AnalyticsQuestionRow is a room question as loaded for analytics.
type AnalyticsQuestionRow struct {
	QuestionID uuid.UUID
	State      RoomQuestionState
	Value      string
	Order      int
}

// Analytics is the scored summary of a room.
type Analytics struct {
	Questions   []AnalyticsQuestion `json:"questions"`
	AverageMark *float64            `json:"averageMark"`
	UserReview  []AnalyticsUserMark `json:"userReview"`
	Completed   bool                `json:"completed"`
}

type AnalyticsQuestion struct {
	ID          uuid.UUID       `json:"id"`
	Status      string          `json:"status"`
	Value       string          `json:"value"`
	Users       []AnalyticsUser `json:"users"`
	AverageMark *float64        `json:"averageMark"`
}

type AnalyticsUser struct {
	ID         uuid.UUID                    `json:"id"`
	Evaluation *AnalyticsQuestionEvaluation `json:"evaluation"`
}

type AnalyticsQuestionEvaluation struct {
	Review string `json:"review"`
	Mark   *int   `json:"mark"`
}

type AnalyticsUserMark struct {
	UserID          uuid.UUID       `json:"userId"`
	AverageMark     *float64        `json:"averageMark"`
	Comment         *string         `json:"comment"`
	Nickname        string          `json:"nickname"`
	Avatar          string          `json:"avatar"`
	ParticipantType ParticipantType `json:"participantType"`
}
