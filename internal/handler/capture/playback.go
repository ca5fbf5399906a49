package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/service/speech"
)

// PlaybackHub delivers synthesized reply audio to the most recently attached
// capture connection. There is one listener per device, so last-attached
// wins.
type PlaybackHub struct {
	mu   sync.Mutex
	conn *wsConn
	log  zerolog.Logger
}

// NewPlaybackHub creates a playback hub.
func NewPlaybackHub(log zerolog.Logger) *PlaybackHub {
	return &PlaybackHub{
		log: log.With().Str("component", "playback").Logger(),
	}
}

// Attach makes conn the playback target.
func (h *PlaybackHub) Attach(conn *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conn = conn
}

// Detach clears conn if it is still the playback target.
func (h *PlaybackHub) Detach(conn *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn == conn {
		h.conn = nil
	}
}

// Play pushes one finished synthesis down the attached connection. With no
// listener attached the audio is dropped silently.
func (h *PlaybackHub) Play(ctx context.Context, s *speech.Synthesis) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.Lock()
	conn := h.conn
	h.mu.Unlock()

	if conn == nil {
		h.log.Debug().Msg("no playback listener attached")
		return nil
	}

	msg := outgoingMessage{
		Type: "speech",
		Data: map[string]any{
			"audioData":  base64.StdEncoding.EncodeToString(s.Audio),
			"format":     s.Format,
			"durationMs": s.DurationMS,
		},
		Timestamp: time.Now().Unix(),
	}

	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("playback write failed: %w", err)
	}
	return nil
}
