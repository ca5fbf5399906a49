package speech

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/observability"
)

// Synthesizer renders text to audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (*Synthesis, error)
}

// PlaybackSink receives finished audio for delivery to the listener.
type PlaybackSink interface {
	Play(ctx context.Context, s *Synthesis) error
}

// PlaybackFunc adapts a function to the PlaybackSink interface.
type PlaybackFunc func(ctx context.Context, s *Synthesis) error

func (f PlaybackFunc) Play(ctx context.Context, s *Synthesis) error {
	return f(ctx, s)
}

// Relay voices partner replies without ever blocking or failing the send
// path. A new utterance supersedes any in-flight one: the previous
// synthesis is cancelled and only the latest reply is heard.
type Relay struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	synth  Synthesizer
	sink   PlaybackSink
	log    zerolog.Logger
}

// NewRelay wires the synthesis relay. A nil synthesizer disables speech
// output entirely; Speak becomes a no-op.
func NewRelay(synth Synthesizer, sink PlaybackSink, log zerolog.Logger) *Relay {
	return &Relay{
		synth: synth,
		sink:  sink,
		log:   log.With().Str("component", "speech-relay").Logger(),
	}
}

// Speak voices the given text asynchronously. The returned channel closes
// when this utterance finishes, fails, or is superseded. Errors never
// propagate to the caller.
func (r *Relay) Speak(text, voice string) <-chan struct{} {
	done := make(chan struct{})

	if r.synth == nil || text == "" {
		close(done)
		return done
	}

	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		result, err := r.synth.Synthesize(ctx, text, voice)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				r.log.Debug().Msg("synthesis superseded")
				return
			}
			observability.SynthesisFailures.Inc()
			r.log.Warn().Err(err).Str("voice", voice).Msg("synthesis failed")
			return
		}

		// The synthesis may have finished despite being superseded; a
		// cancelled utterance must never reach the listener.
		if ctx.Err() != nil {
			r.log.Debug().Msg("synthesis superseded")
			return
		}

		if r.sink == nil {
			return
		}
		if err := r.sink.Play(ctx, result); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			observability.SynthesisFailures.Inc()
			r.log.Warn().Err(err).Msg("playback failed")
		}
	}()

	return done
}

// Stop cancels any in-flight utterance.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
}
