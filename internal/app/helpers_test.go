package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/app"
	"room-event-service/internal/domain"
	"room-event-service/internal/eventlog"
	"room-event-service/internal/infra/memory"
	"room-event-service/internal/projection"
)

var t0 = time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

func at(sec int) time.Time { return t0.Add(time.Duration(sec) * time.Second) }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(sec int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at(sec)
}

// flakyStore fails appends or range reads on demand.
type flakyStore struct {
	*memory.EventStore
	fail      bool
	failReads bool
}

func (s *flakyStore) Append(ctx context.Context, evt domain.Event) (domain.Event, error) {
	if s.fail {
		return domain.Event{}, errors.New("disk full")
	}
	return s.EventStore.Append(ctx, evt)
}

func (s *flakyStore) QueryRange(ctx context.Context, roomID uuid.UUID, from, to time.Time, kinds ...domain.EventKind) ([]domain.Event, error) {
	if s.failReads {
		return nil, domain.StoreError("query events", errors.New("replica down"))
	}
	return s.EventStore.QueryRange(ctx, roomID, from, to, kinds...)
}

func (s *flakyStore) GetLatest(ctx context.Context, roomID uuid.UUID, kind domain.EventKind, from, to time.Time) (domain.Event, bool, error) {
	if s.failReads {
		return domain.Event{}, false, domain.StoreError("query events", errors.New("replica down"))
	}
	return s.EventStore.GetLatest(ctx, roomID, kind, from, to)
}

// loadedRepo hands out room questions with their question metadata attached.
type loadedRepo struct {
	*memory.RoomRepository
	questions map[uuid.UUID]domain.Question
}

func (r *loadedRepo) Get(ctx context.Context, roomID, questionID uuid.UUID) (domain.RoomQuestion, error) {
	rq, err := r.RoomRepository.Get(ctx, roomID, questionID)
	if err != nil {
		return rq, err
	}
	if q, ok := r.questions[questionID]; ok {
		rq.Question = &q
	}
	return rq, nil
}

// countingCatalog answers the opposite of the loaded metadata and counts calls.
type countingCatalog struct {
	mu    sync.Mutex
	calls int
}

func (c *countingCatalog) HasCodeEditor(context.Context, uuid.UUID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return true, nil
}

func (c *countingCatalog) GetSeedContent(context.Context, uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return "catalog content", true, nil
}

func (c *countingCatalog) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type failingCatalog struct{}

func (failingCatalog) HasCodeEditor(context.Context, uuid.UUID) (bool, error) {
	return false, errors.New("catalog unavailable")
}

func (failingCatalog) GetSeedContent(context.Context, uuid.UUID) (string, bool, error) {
	return "", false, errors.New("catalog unavailable")
}

type harness struct {
	roomID    uuid.UUID
	actorID   uuid.UUID
	clock     *fakeClock
	store     *flakyStore
	rooms     *memory.RoomRepository
	broadcast *app.Broadcaster
	service   *app.RoomQuestionService
	editor    *app.CodeEditorService
	queries   *app.RoomQueryService
}

var (
	editorQuestion = domain.Question{
		ID:         uuid.MustParse("00000000-0000-4000-8000-000000000001"),
		Value:      "Reverse a linked list",
		CodeEditor: &domain.CodeEditor{Content: "func reverse() {}", Lang: "go"},
	}
	plainQuestion = domain.Question{
		ID:    uuid.MustParse("00000000-0000-4000-8000-000000000002"),
		Value: "What is a goroutine?",
	}
)

func newHarness(t *testing.T, catalog app.QuestionCatalog) *harness {
	t.Helper()
	return newHarnessWithRepo(t, catalog, nil)
}

// newHarnessWithRepo lets repo wrap the harness room repository.
func newHarnessWithRepo(t *testing.T, catalog app.QuestionCatalog, repo func(*memory.RoomRepository) app.RoomQuestionRepository) *harness {
	t.Helper()
	h := &harness{
		roomID:    uuid.New(),
		actorID:   uuid.New(),
		clock:     &fakeClock{now: t0},
		store:     &flakyStore{EventStore: memory.NewEventStore()},
		rooms:     memory.NewRoomRepository(),
		broadcast: app.NewBroadcaster(),
	}
	if catalog == nil {
		catalog = memory.NewQuestionCatalog(memory.NewStaticQuestionLoader(editorQuestion, plainQuestion), time.Minute)
	}
	h.rooms.AddRoom(domain.Room{ID: h.roomID, Name: "room", Type: domain.RoomTypeStandard})

	registry := eventlog.NewRegistry()
	log := zerolog.Nop()
	windows := projection.NewActiveQuestionProjector(h.store, registry, log)
	latest := projection.NewLatestValueProjector(h.store, registry, log)
	emitter := app.NewEmitterWithClock(h.store, registry, h.broadcast, h.clock.Now)
	deriver := app.NewCodeEditorDeriver(catalog, windows, latest, emitter, log)
	var rooms app.RoomQuestionRepository = h.rooms
	if repo != nil {
		rooms = repo(h.rooms)
	}
	h.service = app.NewRoomQuestionService(rooms, emitter, deriver, log)
	h.editor = app.NewCodeEditorService(emitter)
	h.queries = app.NewRoomQueryService(projection.NewRoomStateProjector(h.store, registry, log), windows)
	return h
}

func (h *harness) attach(t *testing.T, q domain.Question) {
	t.Helper()
	if _, _, err := h.service.Attach(context.Background(), h.roomID, q.ID, h.actorID, 0); err != nil {
		t.Fatalf("attach: %v", err)
	}
}

func (h *harness) transition(t *testing.T, sec int, q domain.Question, state domain.RoomQuestionState) app.TransitionResult {
	t.Helper()
	h.clock.Set(sec)
	res, err := h.service.Transition(context.Background(), h.roomID, q.ID, state, h.actorID)
	if err != nil {
		t.Fatalf("transition to %s: %v", state, err)
	}
	return res
}

func (h *harness) events(t *testing.T) []domain.Event {
	t.Helper()
	events, err := h.store.Query(context.Background(), h.roomID, eventlog.All())
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	return events
}
