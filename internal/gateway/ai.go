package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/config"
	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/model/partner"
)

const historyLimit = 10

// PersonaDirectory resolves partner records for prompt construction. The
// roster satisfies this.
type PersonaDirectory interface {
	Find(id string) (partner.Partner, bool)
}

// AIGateway is an in-process Conversations implementation backed by an Ark
// chat model. It owns its own authoritative copy of every thread, which is
// what makes the companion branch's full-history reconciliation meaningful
// without a remote backend.
type AIGateway struct {
	chain    compose.Runnable[map[string]any, *schema.Message]
	personas PersonaDirectory

	mu        sync.Mutex
	histories map[string][]chat.Message
	created   map[string]partner.Partner

	log zerolog.Logger
}

// NewAIGateway compiles the persona prompt chain against the configured
// model.
func NewAIGateway(ctx context.Context, cfg config.AIConfig, personas PersonaDirectory, log zerolog.Logger) (*AIGateway, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile chat chain: %w", err)
	}

	return &AIGateway{
		chain:     runnable,
		personas:  personas,
		histories: make(map[string][]chat.Message),
		created:   make(map[string]partner.Partner),
		log:       log.With().Str("component", "gateway.ai").Logger(),
	}, nil
}

// LoadHistory returns the gateway's authoritative thread for a partner.
func (g *AIGateway) LoadHistory(_ context.Context, partnerID string) ([]chat.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return copyThread(g.histories[partnerID]), nil
}

// SendCompanionTurn runs one companion turn and returns the full history.
func (g *AIGateway) SendCompanionTurn(ctx context.Context, user UserContext, text string) ([]chat.Message, error) {
	companion, ok := g.resolve(partner.CompanionID)
	if !ok {
		return nil, ErrPartnerUnknown
	}

	if _, err := g.runTurn(ctx, companion, user, text); err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return copyThread(g.histories[partner.CompanionID]), nil
}

// SendGenericTurn runs one turn for a custom or celebrity partner and
// returns just the confirmed message pair.
func (g *AIGateway) SendGenericTurn(ctx context.Context, user UserContext, partnerID, text string) (TurnResult, error) {
	p, ok := g.resolve(partnerID)
	if !ok {
		return TurnResult{}, ErrPartnerUnknown
	}
	return g.runTurn(ctx, p, user, text)
}

// CreatePersona registers a persona. Celebrity ids derive from the display
// name; duplicates report ErrPersonaExists with the existing record.
func (g *AIGateway) CreatePersona(_ context.Context, draft PersonaDraft) (partner.Partner, error) {
	id := uuid.NewString()
	if draft.Kind == partner.KindCelebrity {
		id = partner.CelebrityID(draft.DisplayName)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if existing, ok := g.created[id]; ok {
		return existing, ErrPersonaExists
	}
	if existing, ok := g.personas.Find(id); ok {
		return existing, ErrPersonaExists
	}

	p := partner.Partner{
		ID:          id,
		Kind:        draft.Kind,
		DisplayName: draft.DisplayName,
		AvatarRef:   draft.AvatarRef,
		Directive:   draft.Directive,
		VoiceID:     draft.VoiceID,
	}
	g.created[id] = p
	g.log.Info().Str("partner", id).Msg("persona created")
	return p, nil
}

// AppendMessage records a single turn without generating a reply.
func (g *AIGateway) AppendMessage(_ context.Context, partnerID string, msg chat.Message) error {
	if msg.ID == "" || strings.HasPrefix(msg.ID, "local-") {
		msg.ID = uuid.NewString()
	}
	msg.PartnerID = partnerID
	msg.Delivery = ""
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	g.mu.Lock()
	g.histories[partnerID] = append(g.histories[partnerID], msg)
	g.mu.Unlock()
	return nil
}

func (g *AIGateway) runTurn(ctx context.Context, p partner.Partner, user UserContext, text string) (TurnResult, error) {
	g.mu.Lock()
	history := buildModelHistory(g.histories[p.ID])
	g.mu.Unlock()

	input := map[string]any{
		"system":  buildSystemPrompt(p, user),
		"history": history,
		"query":   text,
	}

	response, err := g.chain.Invoke(ctx, input)
	if err != nil {
		return TurnResult{}, fmt.Errorf("run persona chain: %w", err)
	}

	now := time.Now().UTC()
	userMsg := chat.Message{
		ID:        uuid.NewString(),
		PartnerID: p.ID,
		Kind:      chat.KindText,
		Sender:    chat.SenderUser,
		Body:      text,
		Delivery:  chat.DeliveryConfirmed,
		CreatedAt: now,
	}
	reply := chat.Message{
		ID:        uuid.NewString(),
		PartnerID: p.ID,
		Kind:      chat.KindText,
		Sender:    chat.SenderPartner,
		Body:      response.Content,
		CreatedAt: now,
	}

	g.mu.Lock()
	g.histories[p.ID] = append(g.histories[p.ID], userMsg, reply)
	g.mu.Unlock()

	g.log.Debug().Str("partner", p.ID).Int("replyLen", len(reply.Body)).Msg("turn completed")
	return TurnResult{UserMessage: userMsg, Reply: reply}, nil
}

func (g *AIGateway) resolve(id string) (partner.Partner, bool) {
	g.mu.Lock()
	if p, ok := g.created[id]; ok {
		g.mu.Unlock()
		return p, true
	}
	g.mu.Unlock()
	return g.personas.Find(id)
}

func buildModelHistory(thread []chat.Message) []*schema.Message {
	if len(thread) == 0 {
		return nil
	}

	start := 0
	if len(thread) > historyLimit {
		start = len(thread) - historyLimit
	}

	history := make([]*schema.Message, 0, len(thread)-start)
	for _, msg := range thread[start:] {
		switch msg.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(msg.Body))
		case chat.SenderPartner:
			history = append(history, schema.AssistantMessage(msg.Body, nil))
		}
	}
	return history
}

func copyThread(thread []chat.Message) []chat.Message {
	out := make([]chat.Message, len(thread))
	copy(out, thread)
	return out
}
