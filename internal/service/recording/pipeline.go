package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/gateway"
	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/observability"
)

var (
	// ErrSessionActive rejects starting a capture while one exists.
	ErrSessionActive = errors.New("a recording session is already active")

	// ErrNoSession is returned when an operation needs an active session.
	ErrNoSession = errors.New("no active recording session")

	// ErrNotRecording rejects audio fed outside the recording state.
	ErrNotRecording = errors.New("session is not recording")

	// ErrNotTranscribed rejects confirmation of a session that has no
	// committed transcript to send.
	ErrNotTranscribed = errors.New("session has no confirmed transcript")
)

// Recognizer opens a live speech-to-text stream. This is the device-API
// boundary: acquisition failure is fatal for the attempt and leaves the
// pipeline idle.
type Recognizer interface {
	Open(ctx context.Context, sessionID, language string) (RecognizerStream, error)
}

// RecognizerStream consumes audio chunks and emits transcript events.
// Close halts recognition and closes the Results channel after the final
// committed segments are delivered.
type RecognizerStream interface {
	Write(chunk []byte) error
	Results() <-chan TranscriptEvent
	Close() error
}

// TranscriptSender is the slice of the send pipeline the recording pipeline
// is allowed to touch. The message store is never mutated from here.
type TranscriptSender interface {
	SendTranscript(ctx context.Context, partnerID, transcript string, audio chat.AudioAttachment, user gateway.UserContext) error
}

// Pipeline coordinates at most one capture attempt at a time: raw audio
// accumulation and live transcription run concurrently against the same
// capture window, then join at Stop for user confirmation.
type Pipeline struct {
	mu         sync.Mutex
	active     *Session
	recognizer Recognizer
	sender     TranscriptSender
	language   string
	log        zerolog.Logger
}

// NewPipeline wires the capture pipeline.
func NewPipeline(recognizer Recognizer, sender TranscriptSender, language string, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		recognizer: recognizer,
		sender:     sender,
		language:   language,
		log:        log.With().Str("component", "recording").Logger(),
	}
}

// Start opens a new capture session for the given partner. observe, when
// non-nil, receives every recognizer event (interim and final) for live
// display; it is called from the drain goroutine.
func (p *Pipeline) Start(ctx context.Context, partnerID string, observe func(TranscriptEvent)) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active != nil && !p.active.state.terminal() {
		observability.Recordings.WithLabelValues("rejected").Inc()
		return nil, ErrSessionActive
	}

	stream, err := p.recognizer.Open(ctx, uuid.NewString(), p.language)
	if err != nil {
		// Stay idle: device acquisition failed, nothing to release.
		return nil, fmt.Errorf("acquire recognizer: %w", err)
	}

	session := &Session{
		ID:        uuid.NewString(),
		PartnerID: partnerID,
		StartedAt: time.Now().UTC(),
		state:     StateRecording,
		stream:    stream,
		drained:   make(chan struct{}),
	}

	go drain(session, stream, observe)

	p.active = session
	p.log.Info().Str("session", session.ID).Str("partner", partnerID).Msg("recording started")
	return session, nil
}

// drain accumulates committed transcript segments until the stream closes.
// It is the only writer of session.segments.
func drain(session *Session, stream RecognizerStream, observe func(TranscriptEvent)) {
	defer close(session.drained)
	for ev := range stream.Results() {
		if observe != nil {
			observe(ev)
		}
		if !ev.Final {
			continue
		}
		if text := strings.TrimSpace(ev.Text); text != "" {
			session.segments = append(session.segments, text)
		}
	}
}

// Feed forwards one audio chunk to both listeners: the raw capture buffer
// and the live recognizer. The buffer write happens under the pipeline
// mutex so it serializes with Stop and Confirm reading the capture.
func (p *Pipeline) Feed(chunk []byte) error {
	p.mu.Lock()
	session := p.active
	if session == nil {
		p.mu.Unlock()
		return ErrNoSession
	}
	if session.state != StateRecording {
		p.mu.Unlock()
		return ErrNotRecording
	}
	if len(chunk) > 0 {
		session.audio.Write(chunk)
	}
	p.mu.Unlock()

	if len(chunk) == 0 {
		return nil
	}

	if err := session.stream.Write(chunk); err != nil {
		return fmt.Errorf("feed recognizer: %w", err)
	}
	return nil
}

// Stop finalizes the capture: the recognizer is halted, the drain goroutine
// joined, and the session moves to transcribed or transcription_failed. An
// empty committed transcript must never be auto-sent.
func (p *Pipeline) Stop(ctx context.Context) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	session := p.active
	if session == nil {
		return nil, ErrNoSession
	}
	if session.state != StateRecording {
		return nil, ErrNotRecording
	}

	session.state = StateStopped
	if err := session.stream.Close(); err != nil {
		p.log.Warn().Err(err).Str("session", session.ID).Msg("recognizer close failed")
	}

	select {
	case <-session.drained:
	case <-ctx.Done():
		// The caller gave up on the join; the capture is unusable. Fail
		// the session so the slot frees instead of stranding it stopped.
		session.state = StateTranscriptionFailed
		observability.Recordings.WithLabelValues("transcription_failed").Inc()
		return nil, ctx.Err()
	}

	session.transcript = strings.Join(session.segments, " ")
	if session.transcript == "" {
		session.state = StateTranscriptionFailed
		observability.Recordings.WithLabelValues("transcription_failed").Inc()
		p.log.Info().Str("session", session.ID).Msg("capture stopped with empty transcript")
	} else {
		session.state = StateTranscribed
	}
	return session, nil
}

// Confirm hands the committed transcript to the send pipeline, with an
// audio-kind optimistic echo referencing the capture. On dispatch failure
// the session stays transcribed so the user can retry or discard.
func (p *Pipeline) Confirm(ctx context.Context, user gateway.UserContext) error {
	p.mu.Lock()
	session := p.active
	if session == nil {
		p.mu.Unlock()
		return ErrNoSession
	}
	if session.state != StateTranscribed {
		p.mu.Unlock()
		return ErrNotTranscribed
	}
	p.mu.Unlock()

	audio := chat.AudioAttachment{
		Ref:        "capture:" + session.ID,
		Transcript: session.transcript,
		DurationMS: session.durationMS(),
	}

	if err := p.sender.SendTranscript(ctx, session.PartnerID, session.transcript, audio, user); err != nil {
		return err
	}

	p.mu.Lock()
	session.state = StateSent
	p.active = nil
	p.mu.Unlock()

	observability.Recordings.WithLabelValues("sent").Inc()
	p.log.Info().Str("session", session.ID).Msg("capture sent")
	return nil
}

// Cancel discards the active session from any state, releasing the
// recognizer immediately. No message is ever appended.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	session := p.active
	p.active = nil
	p.mu.Unlock()

	if session == nil {
		return
	}

	if session.state == StateRecording {
		if err := session.stream.Close(); err != nil {
			p.log.Warn().Err(err).Str("session", session.ID).Msg("recognizer close failed on cancel")
		}
		<-session.drained
	}

	// Failed transcriptions were already counted when Stop observed them.
	if session.state != StateTranscriptionFailed {
		observability.Recordings.WithLabelValues("discarded").Inc()
	}
	session.state = StateDiscarded
	p.log.Info().Str("session", session.ID).Msg("capture discarded")
}

// Active returns the current session, nil when idle.
func (p *Pipeline) Active() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
