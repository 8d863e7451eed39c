package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/driveline/platform/internal/apperr"
)

// CheckoutGateway creates hosted checkout sessions with an external payment
// provider. The provider hosts the card form; this core never sees card data.
type CheckoutGateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (Session, error)
}

// SessionRequest describes one checkout to create.
type SessionRequest struct {
	Reference   string `json:"reference"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description,omitempty"`
}

// Session is the provider's hosted checkout handle.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// HTTPGateway talks to the provider's session API.
type HTTPGateway struct {
	url        string
	apiKey     string
	httpClient *http.Client
}

var _ CheckoutGateway = (*HTTPGateway)(nil)

// NewHTTPGateway creates a gateway client.
func NewHTTPGateway(url, apiKey string, client *http.Client) *HTTPGateway {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPGateway{url: url, apiKey: apiKey, httpClient: client}
}

func (g *HTTPGateway) CreateSession(ctx context.Context, req SessionRequest) (Session, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Session{}, fmt.Errorf("marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url+"/v1/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return Session{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return Session{}, apperr.Unavailable("checkout gateway request", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Session{}, apperr.Unavailable("read gateway response", err)
	}
	if resp.StatusCode >= 500 {
		return Session{}, apperr.Unavailable("checkout gateway", fmt.Errorf("gateway status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return Session{}, apperr.Validation("checkout rejected: status %d", resp.StatusCode)
	}

	var session Session
	if err := json.Unmarshal(body, &session); err != nil {
		return Session{}, apperr.Unavailable("decode gateway response", err)
	}
	if session.ID == "" || session.URL == "" {
		return Session{}, apperr.Unavailable("checkout gateway", fmt.Errorf("incomplete session response"))
	}
	return session, nil
}
