package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"room-event-service/internal/app"
	"room-event-service/internal/domain"
	"room-event-service/internal/infra/memory"
)

func TestTransitionToSameStateIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	h.attach(t, plainQuestion)
	before := len(h.events(t))

	res := h.transition(t, 5, plainQuestion, domain.StateOpen)
	if res.Changed() {
		t.Fatalf("expected no-op, got event %+v", res.Event)
	}
	if got := len(h.events(t)); got != before {
		t.Fatalf("expected %d events, got %d", before, got)
	}
}

func TestActivationEmitsStateEnablementAndContentInOrder(t *testing.T) {
	h := newHarness(t, nil)
	h.attach(t, editorQuestion)

	res := h.transition(t, 10, editorQuestion, domain.StateActive)
	if !res.Changed() || len(res.Warnings) != 0 {
		t.Fatalf("expected clean transition, got %+v", res)
	}
	if res.CodeEditor == nil || !res.CodeEditor.Enabled || res.CodeEditor.Content != "func reverse() {}" {
		t.Fatalf("unexpected code editor state %+v", res.CodeEditor)
	}

	events := h.events(t)
	kinds := make([]domain.EventKind, 0, len(events))
	for _, e := range events {
		kinds = append(kinds, e.Kind)
	}
	want := []domain.EventKind{
		domain.KindRoomQuestionAdd,
		domain.KindRoomQuestionChange,
		domain.KindCodeEditorEnabledChange,
		domain.KindCodeEditorChange,
	}
	if len(kinds) != len(want) {
		t.Fatalf("expected kinds %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected kinds %v, got %v", want, kinds)
		}
		if i > 0 && !events[i-1].Before(events[i]) {
			t.Fatalf("event %d not ordered after %d", i, i-1)
		}
	}

	var seeded domain.CodeEditorChangePayload
	if err := json.Unmarshal(events[3].Payload, &seeded); err != nil {
		t.Fatalf("decode seed: %v", err)
	}
	if seeded.Source != domain.SourceSystem {
		t.Fatalf("expected system source, got %s", seeded.Source)
	}
}

func TestReactivationSeedsContentFromPreviousWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.attach(t, editorQuestion)

	h.transition(t, 10, editorQuestion, domain.StateActive)
	h.clock.Set(15)
	if _, err := h.editor.ChangeContent(ctx, h.roomID, h.actorID, "x"); err != nil {
		t.Fatalf("change content: %v", err)
	}
	h.transition(t, 20, editorQuestion, domain.StateClosed)

	res := h.transition(t, 30, editorQuestion, domain.StateActive)
	if res.CodeEditor == nil || res.CodeEditor.Content != "x" {
		t.Fatalf("expected seed content x, got %+v", res.CodeEditor)
	}

	state, err := h.queries.State(ctx, h.roomID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.CodeEditor.Content != "x" || state.ActiveQuestionID == nil || *state.ActiveQuestionID != editorQuestion.ID {
		t.Fatalf("unexpected room state %+v", state)
	}

	windows, err := h.queries.ActiveWindows(ctx, h.roomID, editorQuestion.ID)
	if err != nil {
		t.Fatalf("windows: %v", err)
	}
	if len(windows) != 2 || !windows[0].Open || windows[1].StartActiveDate != at(10) || windows[1].EndActiveDate != at(20) {
		t.Fatalf("unexpected windows %+v", windows)
	}
}

func TestEditsOutsidePreviousWindowAreIgnored(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.attach(t, editorQuestion)

	h.transition(t, 10, editorQuestion, domain.StateActive)
	h.transition(t, 20, editorQuestion, domain.StateClosed)
	h.clock.Set(25)
	if _, err := h.editor.ChangeContent(ctx, h.roomID, h.actorID, "typed while closed"); err != nil {
		t.Fatalf("change content: %v", err)
	}

	res := h.transition(t, 30, editorQuestion, domain.StateActive)
	if res.CodeEditor.Content != "func reverse() {}" {
		t.Fatalf("expected content from first activation, got %q", res.CodeEditor.Content)
	}
}

func TestQuestionWithoutEditorSeedsEmptyContent(t *testing.T) {
	h := newHarness(t, nil)
	h.attach(t, plainQuestion)

	res := h.transition(t, 10, plainQuestion, domain.StateActive)
	if res.CodeEditor == nil || res.CodeEditor.Enabled || res.CodeEditor.Content != "" {
		t.Fatalf("expected disabled empty editor, got %+v", res.CodeEditor)
	}
}

func TestCatalogFailureIsAWarning(t *testing.T) {
	h := newHarness(t, failingCatalog{})
	h.attach(t, editorQuestion)

	res := h.transition(t, 10, editorQuestion, domain.StateActive)
	if !res.Changed() {
		t.Fatalf("expected transition to be recorded")
	}
	if len(res.Warnings) != 2 {
		t.Fatalf("expected two warnings, got %v", res.Warnings)
	}
	for _, w := range res.Warnings {
		if !errors.Is(w, domain.ErrDerivationWarning) {
			t.Fatalf("expected derivation warning, got %v", w)
		}
	}

	events := h.events(t)
	if last := events[len(events)-1]; last.Kind != domain.KindRoomQuestionChange {
		t.Fatalf("expected state change to be the last event, got %s", last.Kind)
	}
	rq, err := h.rooms.Get(context.Background(), h.roomID, editorQuestion.ID)
	if err != nil || rq.State != domain.StateActive {
		t.Fatalf("expected active row, got %+v err=%v", rq, err)
	}
}

func TestStoreFailureIsFatalAndRestoresState(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.attach(t, editorQuestion)
	h.store.fail = true

	_, err := h.service.Transition(ctx, h.roomID, editorQuestion.ID, domain.StateActive, h.actorID)
	if !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	rq, err := h.rooms.Get(ctx, h.roomID, editorQuestion.ID)
	if err != nil || rq.State != domain.StateOpen {
		t.Fatalf("expected state restored to Open, got %+v err=%v", rq, err)
	}
}

func TestTransitionValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.attach(t, plainQuestion)

	if _, err := h.service.Transition(ctx, h.roomID, plainQuestion.ID, "Paused", h.actorID); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.service.Transition(ctx, h.roomID, uuid.New(), domain.StateActive, h.actorID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := h.service.Attach(ctx, h.roomID, plainQuestion.ID, h.actorID, 1); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected duplicate attach to fail validation, got %v", err)
	}
}

func TestAppendedEventsReachSubscribers(t *testing.T) {
	h := newHarness(t, nil)
	ch, cancel := h.broadcast.Subscribe(h.roomID)
	defer cancel()

	h.attach(t, plainQuestion)
	evt := <-ch
	if evt.Kind != domain.KindRoomQuestionAdd || evt.Seq != 1 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestAttachRetryAfterStoreFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.store.fail = true

	if _, _, err := h.service.Attach(ctx, h.roomID, plainQuestion.ID, h.actorID, 0); !errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected store error, got %v", err)
	}
	if _, err := h.rooms.Get(ctx, h.roomID, plainQuestion.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected row to be detached, got %v", err)
	}

	h.store.fail = false
	rq, evt, err := h.service.Attach(ctx, h.roomID, plainQuestion.ID, h.actorID, 0)
	if err != nil {
		t.Fatalf("retry attach: %v", err)
	}
	if rq.State != domain.StateOpen || evt.Kind != domain.KindRoomQuestionAdd {
		t.Fatalf("unexpected attach result %+v %+v", rq, evt)
	}

	adds := 0
	for _, e := range h.events(t) {
		if e.Kind == domain.KindRoomQuestionAdd {
			adds++
		}
	}
	if adds != 1 {
		t.Fatalf("expected one add event, got %d", adds)
	}
}

func TestFailedHistoryReadStillSeedsWithWarning(t *testing.T) {
	h := newHarness(t, nil)
	h.attach(t, editorQuestion)
	h.store.failReads = true

	res := h.transition(t, 10, editorQuestion, domain.StateActive)
	if len(res.Warnings) != 1 {
		t.Fatalf("expected one warning, got %v", res.Warnings)
	}
	if !errors.Is(res.Warnings[0], domain.ErrDerivationWarning) || !errors.Is(res.Warnings[0], domain.ErrStore) {
		t.Fatalf("expected derivation warning over a store error, got %v", res.Warnings[0])
	}
	if res.CodeEditor == nil || !res.CodeEditor.Enabled || res.CodeEditor.Content != "func reverse() {}" {
		t.Fatalf("expected fallback seed, got %+v", res.CodeEditor)
	}
}

func loadQuestions(qs ...domain.Question) func(*memory.RoomRepository) app.RoomQuestionRepository {
	return func(rooms *memory.RoomRepository) app.RoomQuestionRepository {
		repo := &loadedRepo{RoomRepository: rooms, questions: make(map[uuid.UUID]domain.Question)}
		for _, q := range qs {
			repo.questions[q.ID] = q
		}
		return repo
	}
}

func TestLoadedQuestionMetadataWinsOverCatalog(t *testing.T) {
	loaded := editorQuestion
	loaded.CodeEditor = &domain.CodeEditor{Content: "func loaded() {}", Lang: "go"}
	catalog := &countingCatalog{}
	h := newHarnessWithRepo(t, catalog, loadQuestions(loaded))
	h.attach(t, loaded)

	res := h.transition(t, 10, loaded, domain.StateActive)
	if len(res.Warnings) != 0 {
		t.Fatalf("unexpected warnings %v", res.Warnings)
	}
	if res.CodeEditor == nil || !res.CodeEditor.Enabled || res.CodeEditor.Content != "func loaded() {}" {
		t.Fatalf("expected loaded editor content, got %+v", res.CodeEditor)
	}
	if calls := catalog.Calls(); calls != 0 {
		t.Fatalf("expected no catalog reads, got %d", calls)
	}
}

func TestLoadedQuestionWithoutEditorIgnoresCatalog(t *testing.T) {
	catalog := &countingCatalog{}
	h := newHarnessWithRepo(t, catalog, loadQuestions(plainQuestion))
	h.attach(t, plainQuestion)

	res := h.transition(t, 10, plainQuestion, domain.StateActive)
	if res.CodeEditor == nil || res.CodeEditor.Enabled || res.CodeEditor.Content != "" {
		t.Fatalf("expected disabled empty editor, got %+v", res.CodeEditor)
	}
	if calls := catalog.Calls(); calls != 0 {
		t.Fatalf("expected no catalog reads, got %d", calls)
	}
}

// vanishingRepo loses the row between Get and SetState.
type vanishingRepo struct {
	*memory.RoomRepository
}

func (vanishingRepo) SetState(context.Context, uuid.UUID, uuid.UUID, domain.RoomQuestionState) error {
	return domain.ErrRoomQuestionNotFound
}

func TestTransitionKeepsNotFoundFromStateUpdate(t *testing.T) {
	h := newHarnessWithRepo(t, nil, func(rooms *memory.RoomRepository) app.RoomQuestionRepository {
		return vanishingRepo{RoomRepository: rooms}
	})
	h.attach(t, plainQuestion)

	_, err := h.service.Transition(context.Background(), h.roomID, plainQuestion.ID, domain.StateActive, h.actorID)
	if !errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrStore) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActiveWindowsHonorsCancellation(t *testing.T) {
	h := newHarness(t, nil)
	h.attach(t, plainQuestion)
	h.transition(t, 10, plainQuestion, domain.StateActive)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	windows, err := h.queries.ActiveWindows(ctx, h.roomID, plainQuestion.ID)
	if !errors.Is(err, context.Canceled) || windows != nil {
		t.Fatalf("expected canceled with nil windows, got %v err=%v", windows, err)
	}
}
