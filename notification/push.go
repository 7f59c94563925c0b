package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// MaxPushBatch is the provider's per-call token limit
const MaxPushBatch = 500

// PushPayload is the content of one push call, shared by every token in it
type PushPayload struct {
	Title    string            `json:"title"`
	Body     string            `json:"body"`
	Data     map[string]string `json:"data,omitempty"`
	Priority string            `json:"priority,omitempty"`
}

// TokenResult is the provider's verdict for one device token
type TokenResult struct {
	Token   string `json:"token"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// PushProvider sends one payload to a batch of device tokens
type PushProvider interface {
	Send(ctx context.Context, tokens []string, payload PushPayload) ([]TokenResult, error)
}

// HTTPPushProvider talks to a push gateway over JSON
type HTTPPushProvider struct {
	url    string
	apiKey string
	client *http.Client
}

// NewHTTPPushProvider creates a push provider for the gateway at url
func NewHTTPPushProvider(url, apiKey string) *HTTPPushProvider {
	return &HTTPPushProvider{url: url, apiKey: apiKey, client: &http.Client{}}
}

type pushRequest struct {
	Tokens       []string          `json:"tokens"`
	Notification PushPayload       `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	Results []TokenResult `json:"results"`
}

// Send posts one batch. Tokens missing from the response count as failed.
func (p *HTTPPushProvider) Send(ctx context.Context, tokens []string, payload PushPayload) ([]TokenResult, error) {
	if len(tokens) > MaxPushBatch {
		return nil, fmt.Errorf("push batch of %d exceeds limit %d", len(tokens), MaxPushBatch)
	}
	body, err := json.Marshal(pushRequest{Tokens: tokens, Notification: payload, Data: payload.Data})
	if err != nil {
		return nil, fmt.Errorf("failed to encode push request: %w", err)
	}

	var resp pushResponse
	if err := postJSON(ctx, p.client, "push", p.url, p.apiKey, body, &resp); err != nil {
		return nil, err
	}

	byToken := make(map[string]TokenResult, len(resp.Results))
	for _, r := range resp.Results {
		byToken[r.Token] = r
	}
	results := make([]TokenResult, len(tokens))
	for i, token := range tokens {
		r, ok := byToken[token]
		if !ok {
			r = TokenResult{Token: token, Error: "missing from provider response"}
		}
		results[i] = r
	}
	return results, nil
}

// LogPushProvider accepts every token and logs the call. It is used when no
// gateway is configured.
type LogPushProvider struct {
	logger *zap.Logger
}

// NewLogPushProvider creates a logging push provider
func NewLogPushProvider(logger *zap.Logger) *LogPushProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPushProvider{logger: logger.Named("push")}
}

// Send marks every token delivered
func (p *LogPushProvider) Send(ctx context.Context, tokens []string, payload PushPayload) ([]TokenResult, error) {
	p.logger.Debug("push delivery disabled, skipping send",
		zap.Int("tokens", len(tokens)), zap.String("title", payload.Title))
	results := make([]TokenResult, len(tokens))
	for i, token := range tokens {
		results[i] = TokenResult{Token: token, Success: true}
	}
	return results, nil
}

// Chunk splits tokens into batches of at most size
func Chunk(tokens []string, size int) [][]string {
	if size <= 0 || size > MaxPushBatch {
		size = MaxPushBatch
	}
	var batches [][]string
	for start := 0; start < len(tokens); start += size {
		end := start + size
		if end > len(tokens) {
			end = len(tokens)
		}
		batches = append(batches, tokens[start:end])
	}
	return batches
}
