package recording_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/gateway"
	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/service/recording"
)

type fakeStream struct {
	mu      sync.Mutex
	written [][]byte
	results chan recording.TranscriptEvent
	closed  bool

	// holdResults keeps the results channel open through Close, modelling
	// a recognizer that never flushes its final segments.
	holdResults bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{results: make(chan recording.TranscriptEvent, 16)}
}

func (f *fakeStream) Write(chunk []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	f.written = append(f.written, buf)
	return nil
}

func (f *fakeStream) Results() <-chan recording.TranscriptEvent {
	return f.results
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		if !f.holdResults {
			close(f.results)
		}
	}
	return nil
}

// emit pushes an event before Close is called.
func (f *fakeStream) emit(text string, final bool) {
	f.results <- recording.TranscriptEvent{Text: text, Final: final}
}

type fakeRecognizer struct {
	stream  *fakeStream
	openErr error
	opens   int
}

func (f *fakeRecognizer) Open(_ context.Context, sessionID, language string) (recording.RecognizerStream, error) {
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	return f.stream, nil
}

type fakeSender struct {
	partnerID  string
	transcript string
	audio      chat.AudioAttachment
	err        error
	calls      int
}

func (f *fakeSender) SendTranscript(_ context.Context, partnerID, transcript string, audio chat.AudioAttachment, _ gateway.UserContext) error {
	f.calls++
	f.partnerID = partnerID
	f.transcript = transcript
	f.audio = audio
	return f.err
}

func TestPipelineStartRejectsSecondSession(t *testing.T) {
	rec := &fakeRecognizer{stream: newFakeStream()}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("first Start err: %v", err)
	}

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); !errors.Is(err, recording.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}

	pipeline.Cancel()
}

func TestPipelineStartFailsIdle(t *testing.T) {
	rec := &fakeRecognizer{openErr: errors.New("mic busy")}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err == nil {
		t.Fatal("expected acquisition error")
	}

	// The failed attempt must not hold the session slot.
	rec.openErr = nil
	rec.stream = newFakeStream()
	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("pipeline stuck after failed start: %v", err)
	}
	pipeline.Cancel()
}

func TestPipelineStopJoinsTranscript(t *testing.T) {
	stream := newFakeStream()
	rec := &fakeRecognizer{stream: stream}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	if err := pipeline.Feed([]byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("Feed err: %v", err)
	}

	stream.emit("hello", false)
	stream.emit("hello there", true)
	stream.emit("how are you", true)

	session, err := pipeline.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}

	if session.State() != recording.StateTranscribed {
		t.Fatalf("expected transcribed, got %s", session.State())
	}
	if got := session.Transcript(); got != "hello there how are you" {
		t.Fatalf("unexpected joined transcript: %q", got)
	}
	if len(stream.written) != 1 {
		t.Fatalf("audio chunk not forwarded: %d", len(stream.written))
	}
}

func TestPipelineStopEmptyTranscriptFails(t *testing.T) {
	stream := newFakeStream()
	rec := &fakeRecognizer{stream: stream}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	stream.emit("mumble", false) // interim only, never committed

	session, err := pipeline.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}

	if session.State() != recording.StateTranscriptionFailed {
		t.Fatalf("empty transcript must fail, got %s", session.State())
	}

	sender := &fakeSender{}
	if err := pipeline.Confirm(context.Background(), gateway.UserContext{}); !errors.Is(err, recording.ErrNotTranscribed) {
		t.Fatalf("failed transcription must not be sendable: %v", err)
	}
	if sender.calls != 0 {
		t.Fatal("nothing may be auto-sent")
	}

	// A failed capture is discarded; the user can re-record immediately.
	rec.stream = newFakeStream()
	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("slot not released after failed transcription: %v", err)
	}
	pipeline.Cancel()
}

func TestPipelineStopContextCancelFailsSession(t *testing.T) {
	stream := newFakeStream()
	stream.holdResults = true
	rec := &fakeRecognizer{stream: stream}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pipeline.Stop(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}

	// An abandoned join must not strand the session: the capture fails
	// and the slot frees.
	rec.stream = newFakeStream()
	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("slot not released after abandoned stop: %v", err)
	}
	pipeline.Cancel()
	close(stream.results)
}

func TestPipelineFeedConcurrentWithStop(t *testing.T) {
	stream := newFakeStream()
	rec := &fakeRecognizer{stream: stream}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		chunk := make([]byte, 320)
		for {
			if err := pipeline.Feed(chunk); err != nil {
				return
			}
		}
	}()

	stream.emit("still here", true)
	session, err := pipeline.Stop(context.Background())
	if err != nil {
		t.Fatalf("Stop err: %v", err)
	}
	<-done

	if session.State() != recording.StateTranscribed {
		t.Fatalf("expected transcribed, got %s", session.State())
	}
	if len(session.AudioBytes())%320 != 0 {
		t.Fatalf("torn audio buffer: %d bytes", len(session.AudioBytes()))
	}
}

func TestPipelineConfirmSendsTranscript(t *testing.T) {
	stream := newFakeStream()
	rec := &fakeRecognizer{stream: stream}
	sender := &fakeSender{}
	pipeline := recording.NewPipeline(rec, sender, "en-US", zerolog.Nop())

	session, err := pipeline.Start(context.Background(), "celebrity-marcus-aurelius", nil)
	if err != nil {
		t.Fatalf("Start err: %v", err)
	}

	// One second of 16kHz 16-bit mono audio.
	if err := pipeline.Feed(make([]byte, 32000)); err != nil {
		t.Fatalf("Feed err: %v", err)
	}
	stream.emit("what is virtue", true)

	if _, err := pipeline.Stop(context.Background()); err != nil {
		t.Fatalf("Stop err: %v", err)
	}

	user := gateway.UserContext{UserID: "u1", DisplayName: "Sam"}
	if err := pipeline.Confirm(context.Background(), user); err != nil {
		t.Fatalf("Confirm err: %v", err)
	}

	if sender.calls != 1 {
		t.Fatalf("expected one send, got %d", sender.calls)
	}
	if sender.partnerID != "celebrity-marcus-aurelius" {
		t.Fatalf("wrong partner: %s", sender.partnerID)
	}
	if sender.transcript != "what is virtue" {
		t.Fatalf("wrong transcript: %q", sender.transcript)
	}
	if sender.audio.Ref != "capture:"+session.ID {
		t.Fatalf("wrong capture ref: %s", sender.audio.Ref)
	}
	if sender.audio.DurationMS != 1000 {
		t.Fatalf("wrong duration: %d", sender.audio.DurationMS)
	}

	// The slot must be free for the next capture.
	rec.stream = newFakeStream()
	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("slot not released after send: %v", err)
	}
	pipeline.Cancel()
}

func TestPipelineConfirmFailureKeepsSession(t *testing.T) {
	stream := newFakeStream()
	rec := &fakeRecognizer{stream: stream}
	sender := &fakeSender{err: errors.New("backend down")}
	pipeline := recording.NewPipeline(rec, sender, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("Start err: %v", err)
	}
	stream.emit("try again later", true)
	if _, err := pipeline.Stop(context.Background()); err != nil {
		t.Fatalf("Stop err: %v", err)
	}

	if err := pipeline.Confirm(context.Background(), gateway.UserContext{}); err == nil {
		t.Fatal("expected send failure")
	}

	// The transcript survives for a retry.
	sender.err = nil
	if err := pipeline.Confirm(context.Background(), gateway.UserContext{}); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if sender.calls != 2 {
		t.Fatalf("expected two attempts, got %d", sender.calls)
	}
}

func TestPipelineCancelReleasesSlot(t *testing.T) {
	stream := newFakeStream()
	rec := &fakeRecognizer{stream: stream}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	pipeline.Cancel()

	if pipeline.Active() != nil {
		t.Fatal("cancel must clear the active session")
	}

	rec.stream = newFakeStream()
	if _, err := pipeline.Start(context.Background(), "tara-ai", nil); err != nil {
		t.Fatalf("slot not released after cancel: %v", err)
	}
	pipeline.Cancel()
}

func TestPipelineObserverSeesInterimEvents(t *testing.T) {
	stream := newFakeStream()
	rec := &fakeRecognizer{stream: stream}
	pipeline := recording.NewPipeline(rec, &fakeSender{}, "en-US", zerolog.Nop())

	var mu sync.Mutex
	var seen []recording.TranscriptEvent
	observe := func(ev recording.TranscriptEvent) {
		mu.Lock()
		seen = append(seen, ev)
		mu.Unlock()
	}

	if _, err := pipeline.Start(context.Background(), "tara-ai", observe); err != nil {
		t.Fatalf("Start err: %v", err)
	}

	stream.emit("hel", false)
	stream.emit("hello", true)

	if _, err := pipeline.Stop(context.Background()); err != nil {
		t.Fatalf("Stop err: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("observer missed events: %d", len(seen))
	}
	if seen[0].Final || !seen[1].Final {
		t.Fatalf("event finality wrong: %+v", seen)
	}
}
