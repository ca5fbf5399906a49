package partner

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/gateway"
	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	partnermodel "github.com/tarawell/tara-companion/backend/internal/model/partner"
	"github.com/tarawell/tara-companion/backend/internal/service/conversation"
	"github.com/tarawell/tara-companion/backend/internal/service/send"
	"github.com/tarawell/tara-companion/backend/pkg/utils"
)

// Handler serves the partner roster and persona creation.
type Handler struct {
	roster   *partnermodel.Roster
	store    *conversation.Store
	gw       gateway.Conversations
	pipeline *send.Pipeline
	log      zerolog.Logger
}

// New creates a partner handler.
func New(roster *partnermodel.Roster, store *conversation.Store, gw gateway.Conversations, pipeline *send.Pipeline, log zerolog.Logger) *Handler {
	return &Handler{
		roster:   roster,
		store:    store,
		gw:       gw,
		pipeline: pipeline,
		log:      log.With().Str("component", "partner-handler").Logger(),
	}
}

// RegisterRoutes wires partner routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/partners", h.handleList)
	r.Post("/partners", h.handleCreate)
	r.Post("/partners/{partnerID}/activate", h.handleActivate)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"partners": h.roster.List(),
		"active":   h.roster.Active(),
	})
}

type createPayload struct {
	DisplayName string `json:"displayName"`
	AvatarRef   string `json:"avatarRef"`
	Kind        string `json:"kind"`
	Directive   string `json:"directive"`
	VoiceID     string `json:"voiceId"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload createPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if payload.DisplayName == "" {
		utils.RespondError(w, http.StatusBadRequest, "displayName is required")
		return
	}

	kind := partnermodel.Kind(payload.Kind)
	switch kind {
	case partnermodel.KindCustom, partnermodel.KindCelebrity:
	case "":
		kind = partnermodel.KindCustom
	default:
		utils.RespondError(w, http.StatusBadRequest, "kind must be custom or celebrity")
		return
	}

	draft := gateway.PersonaDraft{
		DisplayName: payload.DisplayName,
		AvatarRef:   payload.AvatarRef,
		Kind:        kind,
		Directive:   payload.Directive,
		VoiceID:     payload.VoiceID,
	}

	created, err := h.gw.CreatePersona(r.Context(), draft)
	if errors.Is(err, gateway.ErrPersonaExists) {
		// Same derived id: reuse the existing record and just open its chat.
		entry := h.roster.Upsert(created)
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"partner":  entry,
			"existing": true,
		})
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("name", payload.DisplayName).Msg("persona creation failed")
		utils.RespondError(w, http.StatusBadGateway, "persona creation failed")
		return
	}

	entry := h.roster.Upsert(created)
	h.seedWelcome(r, entry)

	utils.RespondJSON(w, http.StatusCreated, map[string]any{
		"partner":  entry,
		"existing": false,
	})
}

// seedWelcome opens a brand-new chat with the persona's opener so the thread
// is never empty. Persistence is best-effort; the local thread always gets
// the message.
func (h *Handler) seedWelcome(r *http.Request, entry partnermodel.Partner) {
	opener := entry.Opener
	if opener == "" {
		opener = fmt.Sprintf("Hi, I'm %s. What's on your mind today?", entry.DisplayName)
	}

	welcome := chat.Message{
		ID:        chat.LocalID(),
		PartnerID: entry.ID,
		Sender:    chat.SenderPartner,
		Kind:      chat.KindText,
		Body:      opener,
		Delivery:  chat.DeliveryConfirmed,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.gw.AppendMessage(r.Context(), entry.ID, welcome); err != nil {
		h.log.Warn().Err(err).Str("partner", entry.ID).Msg("welcome message not persisted")
	}
	h.store.Append(entry.ID, welcome)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "partnerID")

	if _, ok := h.roster.Find(partnerID); !ok {
		utils.RespondError(w, http.StatusNotFound, "partner not found")
		return
	}

	if err := h.pipeline.Activate(r.Context(), partnerID); err != nil {
		h.log.Warn().Err(err).Str("partner", partnerID).Msg("history load failed on activate")
		// The chat still opens; history fills in on the next send.
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"active":   partnerID,
		"messages": h.store.Get(partnerID),
	})
}
