package send

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/gateway"
	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/model/partner"
	"github.com/tarawell/tara-companion/backend/internal/observability"
	"github.com/tarawell/tara-companion/backend/internal/service/conversation"
)

var (
	// ErrEmptyText rejects sends whose text trims to nothing. Callers
	// treat it as a no-op, not a failure.
	ErrEmptyText = errors.New("empty message text")

	// ErrSendInFlight rejects a send while another one is outstanding.
	ErrSendInFlight = errors.New("send already in flight")

	// ErrPartnerUnknown rejects sends to a partner missing from the roster.
	ErrPartnerUnknown = errors.New("partner not in roster")
)

// Speaker voices a partner reply. Satisfied by the speech relay; synthesis
// runs fire-and-forget and never blocks the pipeline.
type Speaker interface {
	Speak(text, voice string) <-chan struct{}
}

// Pipeline drives a message from optimistic local echo to reconciled state.
// It is the only writer of the message store besides the history-load path,
// which it also owns.
type Pipeline struct {
	store    *conversation.Store
	roster   *partner.Roster
	gateway  gateway.Conversations
	speaker  Speaker
	inFlight atomic.Bool
	log      zerolog.Logger
}

// NewPipeline wires the pipeline. speaker may be nil when synthesis is not
// configured.
func NewPipeline(store *conversation.Store, roster *partner.Roster, gw gateway.Conversations, speaker Speaker, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:   store,
		roster:  roster,
		gateway: gw,
		speaker: speaker,
		log:     log.With().Str("component", "send").Logger(),
	}
}

// SendText dispatches a typed message to the given partner.
func (p *Pipeline) SendText(ctx context.Context, partnerID, text string, user gateway.UserContext) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}
	return p.send(ctx, partnerID, text, user, func() chat.Message {
		return chat.NewPendingText(partnerID, text)
	})
}

// SendTranscript dispatches a confirmed recording. The transcript travels as
// if it were typed text, but the optimistic echo is an audio-kind message
// referencing the capture.
func (p *Pipeline) SendTranscript(ctx context.Context, partnerID, transcript string, audio chat.AudioAttachment, user gateway.UserContext) error {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return ErrEmptyText
	}
	return p.send(ctx, partnerID, transcript, user, func() chat.Message {
		return chat.NewPendingAudio(partnerID, transcript, audio)
	})
}

func (p *Pipeline) send(ctx context.Context, partnerID, text string, user gateway.UserContext, newEcho func() chat.Message) error {
	target, ok := p.roster.Find(partnerID)
	if !ok {
		return ErrPartnerUnknown
	}

	if !p.inFlight.CompareAndSwap(false, true) {
		observability.Sends.WithLabelValues(string(target.Kind), "rejected").Inc()
		return ErrSendInFlight
	}
	defer p.inFlight.Store(false)

	echo := newEcho()
	p.store.Append(partnerID, echo)

	reply, err := p.dispatch(ctx, target, echo, text, user)
	if err != nil {
		// Rollback is mandatory: no pending ghost may remain visible.
		p.store.Remove(partnerID, echo.ID)
		observability.Rollbacks.Inc()
		observability.Sends.WithLabelValues(string(target.Kind), "error").Inc()
		p.log.Warn().Err(err).Str("partner", partnerID).Msg("send failed, optimistic echo rolled back")
		return err
	}

	observability.Sends.WithLabelValues(string(target.Kind), "ok").Inc()

	if p.speaker != nil && reply != "" {
		p.speaker.Speak(reply, target.VoiceID)
	}
	return nil
}

// dispatch runs the kind-specific branch and returns the partner reply text
// for synthesis.
func (p *Pipeline) dispatch(ctx context.Context, target partner.Partner, echo chat.Message, text string, user gateway.UserContext) (string, error) {
	switch target.Kind {
	case partner.KindCompanion:
		// The companion endpoint returns the full reconciled history;
		// local state is replaced wholesale. Server state always wins.
		history, err := p.gateway.SendCompanionTurn(ctx, user, text)
		if err != nil {
			return "", err
		}
		p.store.ReplaceAll(target.ID, history)
		return lastPartnerReply(history), nil

	case partner.KindCustom, partner.KindCelebrity:
		result, err := p.gateway.SendGenericTurn(ctx, user, target.ID, text)
		if err != nil {
			return "", err
		}
		confirmed := result.UserMessage
		if echo.Kind == chat.KindAudio && confirmed.Audio == nil {
			// The upstream confirms the transcript as plain text; keep
			// the local capture reference on the confirmed message.
			confirmed.Kind = chat.KindAudio
			confirmed.Audio = echo.Audio
		}
		p.store.Replace(target.ID, echo.ID, confirmed)
		p.store.Append(target.ID, result.Reply)
		return result.Reply.Body, nil

	default:
		return "", fmt.Errorf("unhandled partner kind %q", target.Kind)
	}
}

// Activate switches the active partner and loads its history from the
// gateway when nothing is cached locally.
func (p *Pipeline) Activate(ctx context.Context, partnerID string) error {
	if !p.roster.SetActive(partnerID) {
		return ErrPartnerUnknown
	}

	if p.store.Len(partnerID) > 0 {
		return nil
	}

	history, err := p.gateway.LoadHistory(ctx, partnerID)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	if len(history) > 0 {
		p.store.ReplaceAll(partnerID, history)
	}
	return nil
}

func lastPartnerReply(history []chat.Message) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Sender == chat.SenderPartner {
			return history[i].Body
		}
	}
	return ""
}
