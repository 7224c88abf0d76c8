package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/domain"
)

func TestEventPublisherStream(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	publisher := NewEventPublisher(newClient(mr), zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	roomID := uuid.New()
	events, err := publisher.Stream(ctx, roomID)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	payload, _ := json.Marshal(domain.CodeEditorChangePayload{Content: "x", Source: domain.SourceUser})
	sent := domain.Event{
		ID:        uuid.New(),
		RoomID:    roomID,
		Seq:       3,
		Kind:      domain.KindCodeEditorChange,
		Payload:   payload,
		CreatedAt: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
	}
	publisher.OnEventAppended(ctx, domain.Event{RoomID: uuid.New(), Seq: 1, Kind: domain.KindCodeEditorChange, Payload: payload})
	publisher.OnEventAppended(ctx, sent)

	select {
	case got := <-events:
		if got.ID != sent.ID || got.Seq != 3 || got.Kind != sent.Kind || !got.CreatedAt.Equal(sent.CreatedAt) {
			t.Fatalf("unexpected event %+v", got)
		}
		if string(got.Payload) != string(payload) {
			t.Fatalf("unexpected payload %s", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for published event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatalf("expected stream closed after cancel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream not closed after cancel")
	}
}

func TestChannel(t *testing.T) {
	roomID := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	if got := Channel(roomID); got != "room:00000000-0000-4000-8000-000000000001:events" {
		t.Fatalf("unexpected channel %q", got)
	}
}
