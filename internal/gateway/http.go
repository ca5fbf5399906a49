package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/config"
	"github.com/tarawell/tara-companion/backend/internal/model/chat"
	"github.com/tarawell/tara-companion/backend/internal/model/partner"
)

// HTTPGateway talks JSON over HTTP to the wellness backend that owns durable
// conversation state.
type HTTPGateway struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPGateway builds a gateway against the configured upstream.
func NewHTTPGateway(cfg config.UpstreamConfig, log zerolog.Logger) *HTTPGateway {
	return &HTTPGateway{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		log: log.With().Str("component", "gateway.http").Logger(),
	}
}

// LoadHistory fetches the ordered message sequence for a partner.
func (g *HTTPGateway) LoadHistory(ctx context.Context, partnerID string) ([]chat.Message, error) {
	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := g.do(ctx, http.MethodGet, "/chat/history/"+url.PathEscape(partnerID), nil, &out); err != nil {
		return nil, fmt.Errorf("load history for %s: %w", partnerID, err)
	}
	return out.Messages, nil
}

// SendCompanionTurn dispatches a companion turn; the backend replies with
// the full reconciled history.
func (g *HTTPGateway) SendCompanionTurn(ctx context.Context, user UserContext, text string) ([]chat.Message, error) {
	payload := struct {
		User UserContext `json:"user"`
		Text string      `json:"text"`
	}{User: user, Text: text}

	var out struct {
		Messages []chat.Message `json:"messages"`
	}
	if err := g.do(ctx, http.MethodPost, "/chat/companion/turn", payload, &out); err != nil {
		return nil, fmt.Errorf("companion turn: %w", err)
	}
	return out.Messages, nil
}

// SendGenericTurn dispatches one turn for a custom or celebrity partner.
func (g *HTTPGateway) SendGenericTurn(ctx context.Context, user UserContext, partnerID, text string) (TurnResult, error) {
	payload := struct {
		User UserContext `json:"user"`
		Text string      `json:"text"`
	}{User: user, Text: text}

	var out TurnResult
	path := "/chat/partners/" + url.PathEscape(partnerID) + "/turn"
	if err := g.do(ctx, http.MethodPost, path, payload, &out); err != nil {
		return TurnResult{}, fmt.Errorf("generic turn for %s: %w", partnerID, err)
	}
	return out, nil
}

// CreatePersona registers a persona record upstream. A 409 maps to
// ErrPersonaExists with the existing record attached.
func (g *HTTPGateway) CreatePersona(ctx context.Context, draft PersonaDraft) (partner.Partner, error) {
	body, err := json.Marshal(draft)
	if err != nil {
		return partner.Partner{}, fmt.Errorf("marshal persona draft: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/personas", bytes.NewReader(body))
	if err != nil {
		return partner.Partner{}, fmt.Errorf("build persona request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return partner.Partner{}, fmt.Errorf("create persona: %w", err)
	}
	defer resp.Body.Close()

	var created partner.Partner
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return partner.Partner{}, fmt.Errorf("decode persona response: %w", err)
		}
		return created, nil
	case http.StatusConflict:
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return partner.Partner{}, fmt.Errorf("decode existing persona: %w", err)
		}
		return created, ErrPersonaExists
	default:
		return partner.Partner{}, fmt.Errorf("create persona: unexpected status %d", resp.StatusCode)
	}
}

// AppendMessage persists a single turn without generating a reply.
func (g *HTTPGateway) AppendMessage(ctx context.Context, partnerID string, msg chat.Message) error {
	path := "/chat/history/" + url.PathEscape(partnerID) + "/messages"
	if err := g.do(ctx, http.MethodPost, path, msg, nil); err != nil {
		return fmt.Errorf("append message for %s: %w", partnerID, err)
	}
	return nil
}

func (g *HTTPGateway) do(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPartnerUnknown
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("upstream status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("upstream status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
