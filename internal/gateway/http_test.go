package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/config"
	"github.com/tarawell/tara-companion/backend/internal/gateway"
	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/model/partner"
)

func newTestGateway(t *testing.T, handler http.Handler) *gateway.HTTPGateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return gateway.NewHTTPGateway(config.UpstreamConfig{BaseURL: srv.URL, TimeoutSeconds: 5}, zerolog.Nop())
}

func TestHTTPGatewayLoadHistory(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/history/tara-ai" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"messages": []chat.Message{
				{ID: "srv-1", PartnerID: "tara-ai", Sender: chat.SenderPartner, Body: "welcome"},
			},
		})
	}))

	history, err := gw.LoadHistory(context.Background(), "tara-ai")
	if err != nil {
		t.Fatalf("LoadHistory err: %v", err)
	}
	if len(history) != 1 || history[0].ID != "srv-1" {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestHTTPGatewayCompanionTurn(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/companion/turn" || r.Method != http.MethodPost {
			t.Errorf("unexpected route: %s %s", r.Method, r.URL.Path)
		}

		var payload struct {
			User gateway.UserContext `json:"user"`
			Text string              `json:"text"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if payload.Text != "hello" || payload.User.UserID != "u1" {
			t.Errorf("payload not forwarded: %+v", payload)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"messages": []chat.Message{
				{ID: "srv-1", Sender: chat.SenderUser, Body: "hello"},
				{ID: "srv-2", Sender: chat.SenderPartner, Body: "hi"},
			},
		})
	}))

	history, err := gw.SendCompanionTurn(context.Background(), gateway.UserContext{UserID: "u1"}, "hello")
	if err != nil {
		t.Fatalf("SendCompanionTurn err: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected full history, got %d", len(history))
	}
}

func TestHTTPGatewayGenericTurnNotFound(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such partner", http.StatusNotFound)
	}))

	_, err := gw.SendGenericTurn(context.Background(), gateway.UserContext{}, "ghost", "hello")
	if !errors.Is(err, gateway.ErrPartnerUnknown) {
		t.Fatalf("expected ErrPartnerUnknown, got %v", err)
	}
}

func TestHTTPGatewayCreatePersonaConflict(t *testing.T) {
	existing := partner.Partner{
		ID:          "celebrity-marcus-aurelius",
		Kind:        partner.KindCelebrity,
		DisplayName: "Marcus Aurelius",
	}

	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(existing)
	}))

	got, err := gw.CreatePersona(context.Background(), gateway.PersonaDraft{
		DisplayName: "Marcus Aurelius",
		Kind:        partner.KindCelebrity,
	})
	if !errors.Is(err, gateway.ErrPersonaExists) {
		t.Fatalf("expected ErrPersonaExists, got %v", err)
	}
	if got.ID != existing.ID {
		t.Fatalf("existing record not returned: %+v", got)
	}
}

func TestHTTPGatewayUpstreamErrorBody(t *testing.T) {
	gw := newTestGateway(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "storage offline"})
	}))

	_, err := gw.LoadHistory(context.Background(), "tara-ai")
	if err == nil {
		t.Fatal("expected upstream error")
	}
}
