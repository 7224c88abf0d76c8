package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
	"room-event-service/internal/infra/memory"
)

var (
	registry = eventlog.NewRegistry()
	t0       = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

// roomLog builds a room's event log with explicit timestamps.
type roomLog struct {
	t      *testing.T
	roomID uuid.UUID
	store  *memory.EventStore
	events []domain.Event
}

func newRoomLog(t *testing.T) *roomLog {
	return &roomLog{t: t, roomID: uuid.New(), store: memory.NewEventStore()}
}

func (l *roomLog) add(sec int, p domain.Payload) domain.Event {
	l.t.Helper()
	evt, err := registry.NewEvent(l.roomID, uuid.Nil, p, at(sec))
	require.NoError(l.t, err)
	return l.append(evt)
}

func (l *roomLog) raw(sec int, kind domain.EventKind, payload string) domain.Event {
	l.t.Helper()
	return l.append(domain.Event{RoomID: l.roomID, Kind: kind, Payload: []byte(payload), CreatedAt: at(sec)})
}

func (l *roomLog) append(evt domain.Event) domain.Event {
	l.t.Helper()
	stored, err := l.store.Append(context.Background(), evt)
	require.NoError(l.t, err)
	l.events = append(l.events, stored)
	return stored
}

func change(q uuid.UUID, from, to domain.RoomQuestionState) domain.RoomQuestionChangePayload {
	return domain.RoomQuestionChangePayload{QuestionID: q, OldState: from, NewState: to}
}

func content(s string) domain.CodeEditorChangePayload {
	return domain.CodeEditorChangePayload{Content: s, Source: domain.SourceUser}
}
