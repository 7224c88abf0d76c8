package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"room-event-service/internal/app"
	"room-event-service/internal/domain"
)

// EventStream delivers a room's appended events until ctx is done.
type EventStream interface {
	Stream(ctx context.Context, roomID uuid.UUID) (<-chan domain.Event, error)
}

type WSHandler struct {
	questions *app.RoomQuestionService
	editor    *app.CodeEditorService
	rooms     *app.RoomQueryService
	events    EventStream
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

func NewWSHandler(questions *app.RoomQuestionService, editor *app.CodeEditorService, rooms *app.RoomQueryService, events EventStream, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		questions: questions,
		editor:    editor,
		rooms:     rooms,
		events:    events,
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type questionStatePayload struct {
	QuestionID uuid.UUID `json:"questionId"`
	State      string    `json:"state"`
}

type codeEditorPayload struct {
	Content string `json:"content"`
}

type codeEditorEnabledPayload struct {
	Enabled bool `json:"enabled"`
}

type transitionReply struct {
	QuestionID uuid.UUID               `json:"questionId"`
	Changed    bool                    `json:"changed"`
	CodeEditor *domain.CodeEditorState `json:"codeEditor,omitempty"`
	Warnings   []string                `json:"warnings,omitempty"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Kind: domain.KindOf(err).String(), Message: err.Error()}}
}

// ServeWS upgrades HTTP requests to websockets, streams the room's events and
// turns inbound messages into room writes.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	roomID, err := uuid.Parse(r.URL.Query().Get("roomId"))
	if err != nil {
		http.Error(w, "missing or invalid roomId", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(r.URL.Query().Get("userId"))
	if err != nil {
		http.Error(w, "missing or invalid userId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state, err := h.rooms.State(ctx, roomID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	updates, err := h.events.Stream(ctx, roomID)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case evt, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "event", Payload: evt}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	connected := deliver(send, writerDone, outboundMessage[any]{Type: "state", Payload: state})

	for connected {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if reply, ok := h.handle(ctx, roomID, userID, inbound); ok {
			connected = deliver(send, writerDone, reply)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// deliver queues msg for the writer. It reports false once the writer has
// stopped, since nothing will drain send after that.
func deliver(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) handle(ctx context.Context, roomID, userID uuid.UUID, inbound inboundMessage) (outboundMessage[any], bool) {
	switch inbound.Type {
	case "questionState":
		var payload questionStatePayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(domain.Validation("invalid questionState payload")), true
		}
		state, err := domain.ParseRoomQuestionState(payload.State)
		if err != nil {
			return errorMessage(err), true
		}
		result, err := h.questions.Transition(ctx, roomID, payload.QuestionID, state, userID)
		if err != nil {
			return errorMessage(err), true
		}
		reply := transitionReply{
			QuestionID: payload.QuestionID,
			Changed:    result.Changed(),
			CodeEditor: result.CodeEditor,
		}
		for _, w := range result.Warnings {
			reply.Warnings = append(reply.Warnings, w.Error())
		}
		return outboundMessage[any]{Type: "transition", Payload: reply}, true
	case "codeEditor":
		var payload codeEditorPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(domain.Validation("invalid codeEditor payload")), true
		}
		if _, err := h.editor.ChangeContent(ctx, roomID, userID, payload.Content); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{}, false
	case "codeEditorEnabled":
		var payload codeEditorEnabledPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			return errorMessage(domain.Validation("invalid codeEditorEnabled payload")), true
		}
		if _, err := h.editor.SetEnabled(ctx, roomID, userID, payload.Enabled); err != nil {
			return errorMessage(err), true
		}
		return outboundMessage[any]{}, false
	default:
		return errorMessage(domain.Validation("unsupported message type")), true
	}
}
