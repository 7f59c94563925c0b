package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"complaintengine/models"

	"go.uber.org/zap"
)

// Recipient is the contact data of one notification recipient
type Recipient struct {
	UserID string
	Email  string
	Phone  string
}

// RecipientFromUser copies the contact fields of a user
func RecipientFromUser(u *models.User) Recipient {
	return Recipient{UserID: u.UserID, Email: u.Email.String, Phone: u.Phone.String}
}

// Sender delivers a stored notification over one channel
type Sender interface {
	Send(ctx context.Context, n *models.Notification, to Recipient) error
	Channel() models.NotificationChannel
	Validate(to Recipient) error
}

// EmailSender sends email through SendGrid. Without an API key it only logs.
type EmailSender struct {
	apiKey    string
	fromEmail string
	endpoint  string
	client    *http.Client
	logger    *zap.Logger
}

const sendGridURL = "https://api.sendgrid.com/v3/mail/send"

// NewEmailSender creates an email sender
func NewEmailSender(apiKey, fromEmail string, logger *zap.Logger) *EmailSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fromEmail == "" {
		fromEmail = "noreply@complaints.local"
	}
	return &EmailSender{
		apiKey:    apiKey,
		fromEmail: fromEmail,
		endpoint:  sendGridURL,
		client:    &http.Client{},
		logger:    logger.Named("email"),
	}
}

// Channel returns the email channel type
func (s *EmailSender) Channel() models.NotificationChannel {
	return models.ChannelEmail
}

// Validate validates the email recipient
func (s *EmailSender) Validate(to Recipient) error {
	if to.Email == "" {
		return ErrInvalidRecipient
	}
	return nil
}

// Send sends one email. Retries are scheduled by the caller.
func (s *EmailSender) Send(ctx context.Context, n *models.Notification, to Recipient) error {
	if err := s.Validate(to); err != nil {
		return err
	}
	if s.apiKey == "" {
		s.logger.Debug("email delivery disabled, skipping send",
			zap.String("notification_id", n.NotificationID))
		return nil
	}

	body := map[string]interface{}{
		"personalizations": []map[string]interface{}{
			{"to": []map[string]interface{}{{"email": to.Email}}},
		},
		"from":    map[string]string{"email": s.fromEmail},
		"subject": n.Title,
		"content": []map[string]string{{"type": "text/plain", "value": n.Body}},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}
	return postJSON(ctx, s.client, "sendgrid", s.endpoint, s.apiKey, payload, nil)
}

// SMSSender sends SMS through an HTTP gateway. Without a gateway URL it only logs.
type SMSSender struct {
	gatewayURL string
	apiKey     string
	client     *http.Client
	logger     *zap.Logger
}

// NewSMSSender creates a new SMS sender
func NewSMSSender(gatewayURL, apiKey string, logger *zap.Logger) *SMSSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSSender{
		gatewayURL: gatewayURL,
		apiKey:     apiKey,
		client:     &http.Client{},
		logger:     logger.Named("sms"),
	}
}

// Channel returns the SMS channel type
func (s *SMSSender) Channel() models.NotificationChannel {
	return models.ChannelSMS
}

// Validate validates the SMS recipient
func (s *SMSSender) Validate(to Recipient) error {
	if to.Phone == "" {
		return ErrInvalidRecipient
	}
	return nil
}

// Send sends an SMS notification
func (s *SMSSender) Send(ctx context.Context, n *models.Notification, to Recipient) error {
	if err := s.Validate(to); err != nil {
		return err
	}
	if s.gatewayURL == "" {
		s.logger.Debug("sms delivery disabled, skipping send",
			zap.String("notification_id", n.NotificationID))
		return nil
	}
	payload, err := json.Marshal(map[string]string{
		"to":   to.Phone,
		"text": n.Title + ": " + n.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to encode sms: %w", err)
	}
	return postJSON(ctx, s.client, "sms", s.gatewayURL, s.apiKey, payload, nil)
}

// postJSON posts payload and decodes a 2xx response into out when out is not nil.
// Transport errors, 429 and 5xx are retryable provider errors.
func postJSON(ctx context.Context, client *http.Client, provider, url, apiKey string, payload []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return &models.ProviderError{Provider: provider, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return &models.ProviderError{Provider: provider, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &models.ProviderError{
			Provider:  provider,
			Retryable: resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
			Err:       fmt.Errorf("%s status %d", provider, resp.StatusCode),
		}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &models.ProviderError{Provider: provider, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// WithTimeout bounds one provider call
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// Errors
var (
	ErrInvalidRecipient   = &NotificationError{Message: "invalid recipient"}
	ErrUnsupportedChannel = &NotificationError{Message: "unsupported channel"}
	ErrNoPushToken        = &NotificationError{Message: "no push token"}
)

// NotificationError represents a notification error
type NotificationError struct {
	Message string
	Err     error
}

func (e *NotificationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}
