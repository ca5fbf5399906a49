package capture

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/gateway"
	partnermodel "github.com/tarawell/tara-companion/backend/internal/model/partner"
	"github.com/tarawell/tara-companion/backend/internal/service/recording"
)

// Handler drives voice capture over a WebSocket connection: the client
// streams microphone chunks up and receives live transcript and state
// events back.
type Handler struct {
	pipeline *recording.Pipeline
	roster   *partnermodel.Roster
	playback *PlaybackHub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// New creates a capture handler.
func New(pipeline *recording.Pipeline, roster *partnermodel.Roster, playback *PlaybackHub, log zerolog.Logger) *Handler {
	return &Handler{
		pipeline: pipeline,
		roster:   roster,
		playback: playback,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log: log.With().Str("component", "capture-handler").Logger(),
	}
}

// RegisterRoutes wires the capture WebSocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/capture/{partnerID}", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// AudioChunk carries one microphone buffer. JSON []byte encodes as base64.
type AudioChunk struct {
	AudioData []byte `json:"audioData"`
}

// ConfirmMessage identifies the user confirming a transcript.
type ConfirmMessage struct {
	User gateway.UserContext `json:"user"`
}

type outgoingMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// wsConn serializes writes: transcript events arrive from the recognizer
// goroutine while command replies come from the read loop.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "partnerID")
	if partnerID == "" {
		http.Error(w, "partnerID is required", http.StatusBadRequest)
		return
	}

	entry, ok := h.roster.Find(partnerID)
	if !ok {
		http.Error(w, "partner not found", http.StatusNotFound)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}
	defer raw.Close()

	conn := &wsConn{conn: raw}
	h.log.Info().Str("partner", partnerID).Msg("capture connection opened")

	if h.playback != nil {
		h.playback.Attach(conn)
		defer h.playback.Detach(conn)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	raw.SetReadDeadline(time.Now().Add(60 * time.Second))
	raw.SetPongHandler(func(string) error {
		raw.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	go h.pingLoop(ctx, raw)

	h.sendEvent(conn, "connected", map[string]any{
		"partner": entry.ID,
		"voice":   entry.VoiceID,
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := raw.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Warn().Err(err).Msg("read error")
				}
				// A dropped connection must not leave the microphone held.
				h.pipeline.Cancel()
				return
			}

			raw.SetReadDeadline(time.Now().Add(60 * time.Second))
			h.handleMessage(ctx, conn, partnerID, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *wsConn, partnerID string, msg *inboundMessage) {
	switch msg.Type {
	case "start":
		h.handleStart(ctx, conn, partnerID)
	case "audio":
		h.handleAudio(conn, msg.Data)
	case "stop":
		h.handleStop(ctx, conn)
	case "confirm":
		h.handleConfirm(ctx, conn, msg.Data)
	case "cancel":
		h.pipeline.Cancel()
		h.sendEvent(conn, "state", map[string]any{"state": recording.StateDiscarded})
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) handleStart(ctx context.Context, conn *wsConn, partnerID string) {
	observe := func(ev recording.TranscriptEvent) {
		h.sendEvent(conn, "transcript", map[string]any{
			"text":    ev.Text,
			"isFinal": ev.Final,
		})
	}

	session, err := h.pipeline.Start(ctx, partnerID, observe)
	if err != nil {
		if errors.Is(err, recording.ErrSessionActive) {
			h.sendError(conn, "a recording is already active")
			return
		}
		h.log.Warn().Err(err).Msg("capture start failed")
		h.sendError(conn, "could not start recording")
		return
	}

	h.sendEvent(conn, "state", map[string]any{
		"state":   recording.StateRecording,
		"session": session.ID,
	})
}

func (h *Handler) handleAudio(conn *wsConn, raw json.RawMessage) {
	var chunk AudioChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		h.sendError(conn, "invalid audio payload")
		return
	}

	if err := h.pipeline.Feed(chunk.AudioData); err != nil {
		if errors.Is(err, recording.ErrNoSession) || errors.Is(err, recording.ErrNotRecording) {
			return
		}
		h.log.Warn().Err(err).Msg("audio feed failed")
		h.sendError(conn, "audio feed failed")
	}
}

func (h *Handler) handleStop(ctx context.Context, conn *wsConn) {
	session, err := h.pipeline.Stop(ctx)
	if err != nil {
		h.sendError(conn, err.Error())
		return
	}

	h.sendEvent(conn, "state", map[string]any{
		"state":      session.State(),
		"transcript": session.Transcript(),
	})
}

func (h *Handler) handleConfirm(ctx context.Context, conn *wsConn, raw json.RawMessage) {
	var confirm ConfirmMessage
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &confirm); err != nil {
			h.sendError(conn, "invalid confirm payload")
			return
		}
	}

	if err := h.pipeline.Confirm(ctx, confirm.User); err != nil {
		switch {
		case errors.Is(err, recording.ErrNoSession), errors.Is(err, recording.ErrNotTranscribed):
			h.sendError(conn, err.Error())
		default:
			// The session stays confirmable; the client may retry.
			h.sendEvent(conn, "state", map[string]any{
				"state": recording.StateTranscribed,
				"error": "send failed",
			})
		}
		return
	}

	h.sendEvent(conn, "state", map[string]any{"state": recording.StateSent})
}

func (h *Handler) sendEvent(conn *wsConn, eventType string, data interface{}) {
	msg := outgoingMessage{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Warn().Err(err).Str("event", eventType).Msg("write failed")
	}
}

func (h *Handler) sendError(conn *wsConn, message string) {
	msg := outgoingMessage{
		Type:      "error",
		Data:      map[string]string{"message": message},
		Timestamp: time.Now().Unix(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		h.log.Warn().Err(err).Msg("write error failed")
	}
}

func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(54 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// WriteControl is safe alongside the serialized JSON writer.
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}
