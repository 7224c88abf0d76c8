package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_create_room_events.sql
var createRoomEventsSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createRoomEventsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS room_events;
DROP TABLE IF EXISTS room_event_seqs;
DROP TABLE IF EXISTS room_question_evaluations;
DROP TABLE IF EXISTS room_reviews;
DROP TABLE IF EXISTS room_participants;
DROP TABLE IF EXISTS room_questions;
DROP TABLE IF EXISTS users;
DROP TABLE IF EXISTS rooms;
DROP TABLE IF EXISTS questions;
DROP TABLE IF EXISTS question_code_editors;`)
			return err
		},
	)
}
