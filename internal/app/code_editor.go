package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"room-event-service/internal/domain"
	"room-event-service/internal/projection"
)

// QuestionCatalog answers code editor questions about catalog entries.
type QuestionCatalog interface {
	HasCodeEditor(ctx context.Context, questionID uuid.UUID) (bool, error)
	// GetSeedContent returns the authored editor content; ok is false when
	// the question has no code editor.
	GetSeedContent(ctx context.Context, questionID uuid.UUID) (content string, ok bool, err error)
}

// CodeEditorDeriver decides the code editor state when a question becomes
// active and writes it to the log as system-initiated events.
type CodeEditorDeriver struct {
	catalog QuestionCatalog
	windows *projection.ActiveQuestionProjector
	latest  *projection.LatestValueProjector
	emitter *Emitter
	log     zerolog.Logger
}

func NewCodeEditorDeriver(catalog QuestionCatalog, windows *projection.ActiveQuestionProjector, latest *projection.LatestValueProjector, emitter *Emitter, log zerolog.Logger) *CodeEditorDeriver {
	return &CodeEditorDeriver{catalog: catalog, windows: windows, latest: latest, emitter: emitter, log: log}
}

// OnActivated runs after rq moved from previous to Active through the
// transition event. It emits the enablement event and, for a fresh
// activation, the seeded content. Failures are returned as warnings.
func (d *CodeEditorDeriver) OnActivated(ctx context.Context, rq domain.RoomQuestion, previous domain.RoomQuestionState, transition domain.Event, actorID uuid.UUID) (domain.CodeEditorState, []error) {
	var (
		state    domain.CodeEditorState
		warnings []error
	)
	log := d.log.With().
		Stringer("room_id", rq.RoomID).
		Stringer("question_id", rq.QuestionID).
		Logger()

	warn := func(op string, err error) {
		w := domain.DerivationWarning(op, err)
		log.Warn().Err(err).Msg(op + " failed")
		warnings = append(warnings, w)
	}

	enabled, err := d.Enabled(ctx, rq)
	if err != nil {
		warn("resolve code editor enablement", err)
	} else {
		if _, err := d.emitter.Emit(ctx, rq.RoomID, actorID, domain.CodeEditorEnabledChangePayload{
			Enabled: enabled,
			Source:  domain.SourceSystem,
		}); err != nil {
			warn("emit code editor enablement", err)
		} else {
			state.Enabled = enabled
			log.Debug().Bool("enabled", enabled).Msg("code editor enablement emitted")
		}
	}

	if previous == domain.StateActive {
		return state, warnings
	}

	content, degraded, err := d.SeedContent(ctx, rq, transition)
	for _, lookupErr := range degraded {
		warn("read previous code editor content", lookupErr)
	}
	if err != nil {
		warn("resolve code editor seed content", err)
		return state, warnings
	}
	if _, err := d.emitter.Emit(ctx, rq.RoomID, actorID, domain.CodeEditorChangePayload{
		Content: content,
		Source:  domain.SourceSystem,
	}); err != nil {
		warn("emit code editor seed content", err)
		return state, warnings
	}
	state.Content = content
	log.Debug().Int("content_length", len(content)).Msg("code editor content seeded")
	return state, warnings
}

// Enabled reports whether rq's question carries a code editor, preferring
// metadata already loaded on rq over a catalog read.
func (d *CodeEditorDeriver) Enabled(ctx context.Context, rq domain.RoomQuestion) (bool, error) {
	if rq.Question != nil {
		return rq.Question.CodeEditor != nil, nil
	}
	return d.catalog.HasCodeEditor(ctx, rq.QuestionID)
}

// SeedContent picks the content for a fresh activation of rq, in order:
// the latest content written during the question's previous activation
// window, the editor loaded on rq, the catalog's authored content, "".
// Log reads that fail do not stop the fallback; they come back in degraded
// so the caller can report that earlier content may have been skipped.
func (d *CodeEditorDeriver) SeedContent(ctx context.Context, rq domain.RoomQuestion, transition domain.Event) (content string, degraded []error, err error) {
	log := d.log.With().
		Stringer("room_id", rq.RoomID).
		Stringer("question_id", rq.QuestionID).
		Logger()

	window, found, err := d.windows.LastWindow(ctx, rq.RoomID, rq.QuestionID, projection.Horizon{
		At:        transition.CreatedAt,
		BeforeSeq: transition.Seq,
	})
	switch {
	case err != nil:
		degraded = append(degraded, fmt.Errorf("project previous activation windows: %w", err))
	case !found:
		log.Trace().Msg("not found last active question time")
	default:
		log.Trace().
			Time("start", window.StartActiveDate).
			Time("end", window.EndActiveDate).
			Msg("found last active question time")

		payload, ok, err := d.latest.LatestCodeEditorContent(ctx, rq.RoomID, window.StartActiveDate, window.EndActiveDate)
		switch {
		case err != nil:
			degraded = append(degraded, fmt.Errorf("read code editor content: %w", err))
		case !ok:
			log.Trace().Msg("not found code editor content")
		default:
			log.Trace().Str("content", payload.Content).Msg("found code editor content")
			return payload.Content, degraded, nil
		}
	}

	if rq.Question != nil {
		if rq.Question.CodeEditor == nil {
			log.Trace().Msg("question has no code editor, seeding empty content")
			return "", degraded, nil
		}
		log.Trace().Msg("seeding content from question code editor")
		return rq.Question.CodeEditor.Content, degraded, nil
	}

	content, ok, err := d.catalog.GetSeedContent(ctx, rq.QuestionID)
	if err != nil {
		return "", degraded, err
	}
	if !ok {
		log.Trace().Msg("catalog has no code editor content, seeding empty content")
		return "", degraded, nil
	}
	log.Trace().Msg("seeding content from catalog")
	return content, degraded, nil
}

// CodeEditorService handles user-initiated code editor writes.
type CodeEditorService struct {
	emitter *Emitter
}

func NewCodeEditorService(emitter *Emitter) *CodeEditorService {
	return &CodeEditorService{emitter: emitter}
}

// ChangeContent records new editor content typed by actorID.
func (s *CodeEditorService) ChangeContent(ctx context.Context, roomID, actorID uuid.UUID, content string) (domain.Event, error) {
	if roomID == uuid.Nil {
		return domain.Event{}, domain.Validation("room id is required")
	}
	return s.emitter.Emit(ctx, roomID, actorID, domain.CodeEditorChangePayload{Content: content, Source: domain.SourceUser})
}

// SetEnabled records actorID toggling the editor.
func (s *CodeEditorService) SetEnabled(ctx context.Context, roomID, actorID uuid.UUID, enabled bool) (domain.Event, error) {
	if roomID == uuid.Nil {
		return domain.Event{}, domain.Validation("room id is required")
	}
	return s.emitter.Emit(ctx, roomID, actorID, domain.CodeEditorEnabledChangePayload{Enabled: enabled, Source: domain.SourceUser})
}
