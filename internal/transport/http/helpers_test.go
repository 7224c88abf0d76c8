package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"room-event-service/internal/app"
	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
	"room-event-service/internal/infra/memory"
	"room-event-service/internal/projection"
)

type testRoom struct {
	server   *httptest.Server
	roomID   uuid.UUID
	question domain.Question
	store    *memory.EventStore
}

func newTestRoom(t *testing.T) *testRoom {
	t.Helper()
	question := domain.Question{
		ID:         uuid.New(),
		Value:      "FizzBuzz",
		CodeEditor: &domain.CodeEditor{Content: "package main", Lang: "go"},
	}
	room := domain.Room{ID: uuid.New(), Name: "ws room", Type: domain.RoomTypeStandard}

	log := zerolog.Nop()
	store := memory.NewEventStore()
	rooms := memory.NewRoomRepository()
	rooms.AddRoom(room)
	catalog := memory.NewQuestionCatalog(memory.NewStaticQuestionLoader(question), time.Minute)
	broadcaster := app.NewBroadcaster()

	registry := eventlog.NewRegistry()
	windows := projection.NewActiveQuestionProjector(store, registry, log)
	latest := projection.NewLatestValueProjector(store, registry, log)
	emitter := app.NewEmitter(store, registry, broadcaster)
	questions := app.NewRoomQuestionService(rooms, emitter, app.NewCodeEditorDeriver(catalog, windows, latest, emitter, log), log)
	queries := app.NewRoomQueryService(projection.NewRoomStateProjector(store, registry, log), windows)

	_, _, err := questions.Attach(context.Background(), room.ID, question.ID, uuid.New(), 0)
	require.NoError(t, err)
	require.NoError(t, rooms.SetQuestionValue(room.ID, question.ID, question.Value))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", NewWSHandler(questions, app.NewCodeEditorService(emitter), queries, broadcaster, log).ServeWS)
	NewRoomsHandler(app.NewAnalyticsService(rooms), queries, log).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &testRoom{server: server, roomID: room.ID, question: question, store: store}
}
