package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/gateway"
	"github.com/tarawell/tara-companion/backend/internal/service/conversation"
	"github.com/tarawell/tara-companion/backend/internal/service/send"
	"github.com/tarawell/tara-companion/backend/pkg/utils"
)

// Handler serves chat threads and the text send path.
type Handler struct {
	store    *conversation.Store
	pipeline *send.Pipeline
	log      zerolog.Logger
}

// New creates a chat handler.
func New(store *conversation.Store, pipeline *send.Pipeline, log zerolog.Logger) *Handler {
	return &Handler{
		store:    store,
		pipeline: pipeline,
		log:      log.With().Str("component", "chat-handler").Logger(),
	}
}

// RegisterRoutes wires chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats/{partnerID}/messages", h.handleMessages)
	r.Post("/chats/{partnerID}/messages", h.handleSend)
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "partnerID")
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"partnerId": partnerID,
		"messages":  h.store.Get(partnerID),
	})
}

type sendPayload struct {
	Text string              `json:"text"`
	User gateway.UserContext `json:"user"`
}

func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "partnerID")

	var payload sendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.pipeline.SendText(r.Context(), partnerID, payload.Text, payload.User)
	switch {
	case err == nil:
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"partnerId": partnerID,
			"messages":  h.store.Get(partnerID),
		})
	case errors.Is(err, send.ErrEmptyText):
		// Whitespace-only input is silently dropped.
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"partnerId": partnerID,
			"messages":  h.store.Get(partnerID),
		})
	case errors.Is(err, send.ErrSendInFlight):
		utils.RespondError(w, http.StatusConflict, "a send is already in flight")
	case errors.Is(err, send.ErrPartnerUnknown):
		utils.RespondError(w, http.StatusNotFound, "partner not found")
	default:
		h.log.Warn().Err(err).Str("partner", partnerID).Msg("send failed")
		utils.RespondError(w, http.StatusBadGateway, "send failed")
	}
}
