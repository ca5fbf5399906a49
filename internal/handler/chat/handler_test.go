package chat_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/gateway"
	chathandler "github.com/tarawell/tara-companion/backend/internal/handler/chat"
	chatmodel "github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/model/partner"
	"github.com/tarawell/tara-companion/backend/internal/service/conversation"
	"github.com/tarawell/tara-companion/backend/internal/service/send"
)

type stubGateway struct {
	turnErr error
}

func (s *stubGateway) LoadHistory(context.Context, string) ([]chatmodel.Message, error) {
	return nil, nil
}

func (s *stubGateway) SendCompanionTurn(_ context.Context, _ gateway.UserContext, text string) ([]chatmodel.Message, error) {
	if s.turnErr != nil {
		return nil, s.turnErr
	}
	return []chatmodel.Message{
		{ID: "srv-1", PartnerID: partner.CompanionID, Sender: chatmodel.SenderUser, Body: text, Delivery: chatmodel.DeliveryConfirmed},
		{ID: "srv-2", PartnerID: partner.CompanionID, Sender: chatmodel.SenderPartner, Body: "noted", Delivery: chatmodel.DeliveryConfirmed},
	}, nil
}

func (s *stubGateway) SendGenericTurn(_ context.Context, _ gateway.UserContext, partnerID, text string) (gateway.TurnResult, error) {
	if s.turnErr != nil {
		return gateway.TurnResult{}, s.turnErr
	}
	return gateway.TurnResult{
		UserMessage: chatmodel.Message{ID: "srv-1", PartnerID: partnerID, Sender: chatmodel.SenderUser, Body: text, Delivery: chatmodel.DeliveryConfirmed},
		Reply:       chatmodel.Message{ID: "srv-2", PartnerID: partnerID, Sender: chatmodel.SenderPartner, Body: "ok", Delivery: chatmodel.DeliveryConfirmed},
	}, nil
}

func (s *stubGateway) CreatePersona(context.Context, gateway.PersonaDraft) (partner.Partner, error) {
	return partner.Partner{}, errors.New("not implemented")
}

func (s *stubGateway) AppendMessage(context.Context, string, chatmodel.Message) error {
	return nil
}

type silentSpeaker struct{}

func (silentSpeaker) Speak(string, string) <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

func newTestRouter(gw gateway.Conversations) (http.Handler, *conversation.Store) {
	roster := partner.NewRoster(partner.SeedCelebrities()...)
	store := conversation.NewStore(roster)
	pipeline := send.NewPipeline(store, roster, gw, silentSpeaker{}, zerolog.Nop())

	r := chi.NewRouter()
	chathandler.New(store, pipeline, zerolog.Nop()).RegisterRoutes(r)
	return r, store
}

func TestHandleSendCompanion(t *testing.T) {
	router, store := newTestRouter(&stubGateway{})

	body := strings.NewReader(`{"text":"hello","user":{"userId":"u1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/tara-ai/messages", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Messages []chatmodel.Message `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("expected reconciled pair, got %d", len(resp.Messages))
	}
	if store.Len(partner.CompanionID) != 2 {
		t.Fatalf("store not reconciled: %d", store.Len(partner.CompanionID))
	}
}

func TestHandleSendFailureReturnsBadGateway(t *testing.T) {
	router, store := newTestRouter(&stubGateway{turnErr: errors.New("backend down")})

	body := strings.NewReader(`{"text":"hello","user":{"userId":"u1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/tara-ai/messages", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if store.Len(partner.CompanionID) != 0 {
		t.Fatal("failed send must leave the thread rolled back")
	}
}

func TestHandleSendWhitespaceIsAccepted(t *testing.T) {
	router, store := newTestRouter(&stubGateway{})

	body := strings.NewReader(`{"text":"   ","user":{"userId":"u1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/tara-ai/messages", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("whitespace send must be a silent no-op: %d", rec.Code)
	}
	if store.Len(partner.CompanionID) != 0 {
		t.Fatal("whitespace send must not create messages")
	}
}

func TestHandleSendUnknownPartner(t *testing.T) {
	router, _ := newTestRouter(&stubGateway{})

	body := strings.NewReader(`{"text":"hello","user":{"userId":"u1"}}`)
	req := httptest.NewRequest(http.MethodPost, "/chats/nobody/messages", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestHandleMessages(t *testing.T) {
	router, store := newTestRouter(&stubGateway{})
	store.Append("tara-ai", chatmodel.Message{ID: "srv-1", PartnerID: "tara-ai", Sender: chatmodel.SenderPartner, Body: "hi"})

	req := httptest.NewRequest(http.MethodGet, "/chats/tara-ai/messages", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}

	var resp struct {
		Messages []chatmodel.Message `json:"messages"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Body != "hi" {
		t.Fatalf("unexpected thread: %+v", resp.Messages)
	}
}
