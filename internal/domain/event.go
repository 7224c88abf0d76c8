package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the type of a room event.
type EventKind string

const (
	// KindRoomQuestionAdd records a question being attached to a room.
	KindRoomQuestionAdd EventKind = "RoomQuestionAdd"
	// KindRoomQuestionChange records a room question state transition.
	KindRoomQuestionChange EventKind = "RoomQuestionChange"
	// KindCodeEditorChange records new shared code editor content.
	KindCodeEditorChange EventKind = "CodeEditorChange"
	// KindCodeEditorEnabledChange records the code editor being enabled or disabled.
	KindCodeEditorEnabledChange EventKind = "CodeEditorEnabledChange"
)

// ChangeSource tells automatic side-effect writes apart from direct user edits.
type ChangeSource string

const (
	// SourceUser marks a write typed or toggled by a participant.
	SourceUser ChangeSource = "User"
	// SourceSystem marks a write derived by the service, such as a seeded editor.
	SourceSystem ChangeSource = "System"
)

// Valid reports whether s is one of the known sources.
func (s ChangeSource) Valid() bool {
	return s == SourceUser || s == SourceSystem
}

// Event is an immutable fact in a room's log.
type Event struct {
	ID     uuid.UUID `json:"id"`
	RoomID uuid.UUID `json:"roomId"`
	// Seq is the per-room insertion order, assigned by the store on append.
	// It breaks ties between events sharing a CreatedAt.
	Seq         int64           `json:"seq"`
	Kind        EventKind       `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	CreatedByID uuid.UUID       `json:"createdById"`
	CreatedAt   time.Time       `json:"createdAt"`
}

// Before reports whether e sorts before other in log order.
func (e Event) Before(other Event) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.Seq < other.Seq
}

// Payload is implemented by every typed event payload.
type Payload interface {
	EventKind() EventKind
	Validate() error
}

// RoomQuestionAddPayload is the payload of KindRoomQuestionAdd.
type RoomQuestionAddPayload struct {
	QuestionID uuid.UUID         `json:"questionId"`
	State      RoomQuestionState `json:"state"`
}

func (RoomQuestionAddPayload) EventKind() EventKind { return KindRoomQuestionAdd }

func (p RoomQuestionAddPayload) Validate() error {
	if p.QuestionID == uuid.Nil {
		return Validation("questionId is required")
	}
	if !p.State.Valid() {
		return Validation("unknown state %q", p.State)
	}
	return nil
}

// RoomQuestionChangePayload is the payload of KindRoomQuestionChange.
type RoomQuestionChangePayload struct {
	QuestionID uuid.UUID         `json:"questionId"`
	OldState   RoomQuestionState `json:"oldState"`
	NewState   RoomQuestionState `json:"newState"`
}

func (RoomQuestionChangePayload) EventKind() EventKind { return KindRoomQuestionChange }

func (p RoomQuestionChangePayload) Validate() error {
	if p.QuestionID == uuid.Nil {
		return Validation("questionId is required")
	}
	if !p.OldState.Valid() || !p.NewState.Valid() {
		return Validation("unknown state transition %q -> %q", p.OldState, p.NewState)
	}
	return nil
}

// CodeEditorChangePayload is the payload of KindCodeEditorChange.
type CodeEditorChangePayload struct {
	Content string       `json:"content"`
	Source  ChangeSource `json:"source"`
}

func (CodeEditorChangePayload) EventKind() EventKind { return KindCodeEditorChange }

func (p CodeEditorChangePayload) Validate() error {
	if !p.Source.Valid() {
		return Validation("unknown source %q", p.Source)
	}
	return nil
}

// CodeEditorEnabledChangePayload is the payload of KindCodeEditorEnabledChange.
type CodeEditorEnabledChangePayload struct {
	Enabled bool         `json:"enabled"`
	Source  ChangeSource `json:"source"`
}

func (CodeEditorEnabledChangePayload) EventKind() EventKind { return KindCodeEditorEnabledChange }

func (p CodeEditorEnabledChangePayload) Validate() error {
	if !p.Source.Valid() {
		return Validation("unknown source %q", p.Source)
	}
	return nil
}
