package recording

import (
	"bytes"
	"time"
)

// State is the lifecycle of one capture attempt.
type State string

const (
	StateIdle                State = "idle"
	StateRecording           State = "recording"
	StateStopped             State = "stopped"
	StateTranscribed         State = "transcribed"
	StateTranscriptionFailed State = "transcription_failed"
	StateSent                State = "sent"
	StateDiscarded           State = "discarded"
)

// terminal states release the pipeline's single-session slot. A failed
// transcription is terminal: the capture is discarded and the user can
// re-record without an explicit cancel.
func (s State) terminal() bool {
	return s == StateSent || s == StateDiscarded || s == StateTranscriptionFailed
}

// TranscriptEvent is one recognizer result. Interim events are display-only;
// only final segments are committed to the transcript.
type TranscriptEvent struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// Session holds the transient state of a single user-initiated capture. Two
// writers run against it concurrently while recording: the feed path appends
// raw audio and the drain goroutine appends committed transcript segments.
// They touch disjoint fields and join only at Stop.
type Session struct {
	ID        string    `json:"id"`
	PartnerID string    `json:"partnerId"`
	StartedAt time.Time `json:"startedAt"`

	state State

	// audio is written only by Feed, under the pipeline mutex.
	audio bytes.Buffer
	// segments is written only by the drain goroutine; read after drained
	// is closed.
	segments []string
	// transcript is the committed join, set at Stop.
	transcript string

	stream  RecognizerStream
	drained chan struct{}
}

// State reports the session's current lifecycle state. Callers go through
// the pipeline, which serializes access.
func (s *Session) State() State {
	return s.state
}

// Transcript returns the committed transcript. Empty before Stop.
func (s *Session) Transcript() string {
	return s.transcript
}

// AudioBytes returns the raw capture. Valid after the stopped transition.
func (s *Session) AudioBytes() []byte {
	return s.audio.Bytes()
}

// durationMS estimates capture length for 16 kHz 16-bit mono PCM.
func (s *Session) durationMS() int64 {
	return int64(s.audio.Len()) / 32
}
