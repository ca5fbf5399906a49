package gateway

import (
	"context"
	"errors"

	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/model/partner"
)

var (
	// ErrPersonaExists signals that a persona with the same derived id
	// already exists. Callers activate the returned partner instead of
	// treating this as a failure.
	ErrPersonaExists = errors.New("persona already exists")

	// ErrPartnerUnknown is returned for turns against a partner the
	// backend has no record of.
	ErrPartnerUnknown = errors.New("partner unknown")
)

// UserContext identifies the user on whose behalf a turn is dispatched. It
// is passed through to the backend verbatim.
type UserContext struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// TurnResult is the generic per-turn endpoint's response: the confirmed form
// of the user's message and the partner's reply.
type TurnResult struct {
	UserMessage chat.Message `json:"userMessage"`
	Reply       chat.Message `json:"reply"`
}

// PersonaDraft carries the fields needed to create a persona record.
type PersonaDraft struct {
	DisplayName string       `json:"displayName"`
	AvatarRef   string       `json:"avatarRef,omitempty"`
	Kind        partner.Kind `json:"kind"`
	Directive   string       `json:"directive"`
	VoiceID     string       `json:"voiceId,omitempty"`
}

// Conversations is the narrow boundary to remote conversation storage and
// reply generation. The send pipeline and the history-load path are its only
// callers.
type Conversations interface {
	// LoadHistory returns the ordered message sequence for a partner.
	LoadHistory(ctx context.Context, partnerID string) ([]chat.Message, error)

	// SendCompanionTurn dispatches a turn to the default companion's
	// dedicated endpoint and returns the full reconciled history for it.
	SendCompanionTurn(ctx context.Context, user UserContext, text string) ([]chat.Message, error)

	// SendGenericTurn dispatches a turn for a custom or celebrity partner
	// and returns just the confirmed pair of messages.
	SendGenericTurn(ctx context.Context, user UserContext, partnerID, text string) (TurnResult, error)

	// CreatePersona registers a persona record. When the derived id is
	// already taken it returns the existing partner with ErrPersonaExists.
	CreatePersona(ctx context.Context, draft PersonaDraft) (partner.Partner, error)

	// AppendMessage persists a single turn without generating a reply.
	// Used for synthetic welcome messages; best-effort.
	AppendMessage(ctx context.Context, partnerID string, msg chat.Message) error
}
