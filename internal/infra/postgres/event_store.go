package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"room-event-service/internal/domain"
)

type eventRow struct {
	bun.BaseModel `bun:"table:room_events"`

	ID          uuid.UUID `bun:"id,pk,type:uuid"`
	RoomID      uuid.UUID `bun:"room_id,type:uuid"`
	Seq         int64     `bun:"seq"`
	Kind        string    `bun:"kind"`
	Payload     string    `bun:"payload,type:jsonb"`
	CreatedByID uuid.UUID `bun:"created_by_id,type:uuid"`
	CreatedAt   time.Time `bun:"created_at"`
}

func (r eventRow) toDomain() domain.Event {
	return domain.Event{
		ID:          r.ID,
		RoomID:      r.RoomID,
		Seq:         r.Seq,
		Kind:        domain.EventKind(r.Kind),
		Payload:     []byte(r.Payload),
		CreatedByID: r.CreatedByID,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

// EventStore keeps room events in Postgres. Each append bumps the room's row
// in room_event_seqs; the row lock serializes appends to one room and hands
// out its next seq and a non-decreasing created_at.
type EventStore struct {
	db    *bun.DB
	clock func() time.Time
}

func NewEventStore(db *bun.DB) *EventStore {
	return &EventStore{db: db, clock: time.Now}
}

func (s *EventStore) Append(ctx context.Context, evt domain.Event) (domain.Event, error) {
	if evt.RoomID == uuid.Nil {
		return domain.Event{}, domain.Validation("event room id is required")
	}
	if evt.CreatedAt.IsZero() {
		evt.CreatedAt = s.clock()
	}
	// Postgres keeps microseconds.
	evt.CreatedAt = evt.CreatedAt.UTC().Truncate(time.Microsecond)
	evt.ID = uuid.New()

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var (
			seq       int64
			createdAt time.Time
		)
		if err := tx.NewRaw(`
INSERT INTO room_event_seqs (room_id, last_seq, last_created_at)
VALUES (?, 1, ?)
ON CONFLICT (room_id) DO UPDATE
SET last_seq = room_event_seqs.last_seq + 1,
    last_created_at = GREATEST(room_event_seqs.last_created_at, EXCLUDED.last_created_at)
RETURNING last_seq, last_created_at`, evt.RoomID, evt.CreatedAt).Scan(ctx, &seq, &createdAt); err != nil {
			return fmt.Errorf("allocate event seq: %w", err)
		}
		evt.Seq = seq
		evt.CreatedAt = createdAt.UTC()

		row := eventRow{
			ID:          evt.ID,
			RoomID:      evt.RoomID,
			Seq:         evt.Seq,
			Kind:        string(evt.Kind),
			Payload:     string(evt.Payload),
			CreatedByID: evt.CreatedByID,
			CreatedAt:   evt.CreatedAt,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Event{}, domain.StoreError("append event", err)
	}
	return evt, nil
}

func (s *EventStore) rangeQuery(roomID uuid.UUID, from, to time.Time, kinds []domain.EventKind, rows *[]eventRow) *bun.SelectQuery {
	q := s.db.NewSelect().Model(rows).Where("room_id = ?", roomID)
	if len(kinds) > 0 {
		names := make([]string, len(kinds))
		for i, k := range kinds {
			names[i] = string(k)
		}
		q = q.Where("kind IN (?)", bun.In(names))
	}
	if !from.IsZero() {
		q = q.Where("created_at >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("created_at <= ?", to.UTC())
	}
	return q
}

func (s *EventStore) QueryRange(ctx context.Context, roomID uuid.UUID, from, to time.Time, kinds ...domain.EventKind) ([]domain.Event, error) {
	var rows []eventRow
	if err := s.rangeQuery(roomID, from, to, kinds, &rows).
		Order("created_at ASC", "seq ASC").
		Scan(ctx); err != nil {
		return nil, domain.StoreError("query events", err)
	}
	events := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toDomain())
	}
	return events, nil
}

func (s *EventStore) GetLatest(ctx context.Context, roomID uuid.UUID, kind domain.EventKind, from, to time.Time) (domain.Event, bool, error) {
	var rows []eventRow
	if err := s.rangeQuery(roomID, from, to, []domain.EventKind{kind}, &rows).
		OrderExpr("created_at DESC, seq DESC").
		Limit(1).
		Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Event{}, false, nil
		}
		return domain.Event{}, false, domain.StoreError("query latest event", err)
	}
	if len(rows) == 0 {
		return domain.Event{}, false, nil
	}
	return rows[0].toDomain(), true, nil
}
