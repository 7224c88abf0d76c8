package projection_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"room-event-service/internal/domain"
	"room-event-service/internal/projection"
)

func TestLatestCodeEditorContent(t *testing.T) {
	log := newRoomLog(t)
	log.add(10, content("a"))
	log.add(15, content("b"))
	log.add(20, content("c"))
	log.add(20, domain.CodeEditorEnabledChangePayload{Enabled: true, Source: domain.SourceSystem})

	p := projection.NewLatestValueProjector(log.store, registry, zerolog.Nop())
	ctx := context.Background()

	got, ok, err := p.LatestCodeEditorContent(ctx, log.roomID, at(10), at(20))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "c", got.Content)

	got, ok, err = p.LatestCodeEditorContent(ctx, log.roomID, at(10), at(19))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "b", got.Content)

	enabled, ok, err := p.LatestCodeEditorEnabled(ctx, log.roomID, at(0), at(30))
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, enabled.Enabled)
}

func TestLatestOnEmptyRange(t *testing.T) {
	log := newRoomLog(t)
	log.add(10, content("a"))

	p := projection.NewLatestValueProjector(log.store, registry, zerolog.Nop())
	_, ok, err := p.LatestCodeEditorContent(context.Background(), log.roomID, at(11), at(20))
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = p.Latest(context.Background(), log.roomID, domain.KindCodeEditorChange, at(11), at(20))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLatestSkipsCorruptEvent(t *testing.T) {
	log := newRoomLog(t)
	log.add(10, content("good"))
	log.raw(12, domain.KindCodeEditorChange, `{"content":42}`)

	p := projection.NewLatestValueProjector(log.store, registry, zerolog.Nop())
	got, ok, err := p.LatestCodeEditorContent(context.Background(), log.roomID, at(0), at(20))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "good", got.Content)
}
