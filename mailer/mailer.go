package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	DefaultBaseURL  = "https://api.resend.com"
	DefaultFromName = "Consigned By Design"
	defaultTimeout  = 30 * time.Second

	htmlOpen  = "<div style='font-family: Arial, sans-serif; line-height: 1.6;'>"
	htmlClose = "</div>"
)

type Attachment struct {
	Filename string `json:"filename" binding:"required"`
	Content  string `json:"content" binding:"required"`
}

// Request is the body accepted by the send-email route. APIKey is the
// caller's provider credential and only lives for the one send.
type Request struct {
	ToEmail     string       `json:"to_email" binding:"required"`
	ToName      *string      `json:"to_name"`
	FromEmail   string       `json:"from_email" binding:"required"`
	FromName    *string      `json:"from_name"`
	Subject     string       `json:"subject" binding:"required"`
	Message     string       `json:"message" binding:"required"`
	Attachments []Attachment `json:"attachments" binding:"omitempty,dive"`
	APIKey      string       `json:"api_key" binding:"required"`
}

// Message is the provider payload for POST /emails.
type Message struct {
	From        string       `json:"from"`
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	Text        string       `json:"text"`
	HTML        string       `json:"html"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Compose turns a request into the provider payload. defaultFrom names the
// sender when the request leaves from_name empty. The message text is
// trusted and is not escaped in the HTML body.
func Compose(req *Request, defaultFrom string) *Message {
	fromName := defaultFrom
	if fromName == "" {
		fromName = DefaultFromName
	}
	if req.FromName != nil && *req.FromName != "" {
		fromName = *req.FromName
	}
	to := req.ToEmail
	if req.ToName != nil && *req.ToName != "" {
		to = fmt.Sprintf("%s <%s>", *req.ToName, req.ToEmail)
	}
	msg := &Message{
		From:    fmt.Sprintf("%s <%s>", fromName, req.FromEmail),
		To:      []string{to},
		Subject: req.Subject,
		Text:    req.Message,
		HTML:    htmlOpen + strings.ReplaceAll(req.Message, "\n", "<br>") + htmlClose,
	}
	if len(req.Attachments) > 0 {
		msg.Attachments = append([]Attachment(nil), req.Attachments...)
	}
	return msg
}

// Sender delivers one message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg *Message) (string, error)
}

// Factory builds a Sender bound to a single credential.
type Factory interface {
	New(apiKey string) Sender
}

// APIError is the error body returned by the provider.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	switch {
	case e.Message != "" && e.Name != "":
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	case e.Message != "":
		return e.Message
	default:
		return fmt.Sprintf("email provider returned status %d", e.StatusCode)
	}
}

type sendResponse struct {
	ID string `json:"id"`
}

// ResendFactory shares one HTTP client across sends. Credentials are set
// on each request, never on the client.
type ResendFactory struct {
	client *resty.Client
}

func NewResendFactory(baseURL string, timeout time.Duration) *ResendFactory {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &ResendFactory{client: client}
}

func (f *ResendFactory) New(apiKey string) Sender {
	return &resendSender{client: f.client, apiKey: apiKey}
}

type resendSender struct {
	client *resty.Client
	apiKey string
}

func (s *resendSender) Send(ctx context.Context, msg *Message) (string, error) {
	if s.apiKey == "" {
		return "", errors.New("missing api key")
	}
	var (
		out    sendResponse
		apiErr APIError
	)
	resp, err := s.client.R().
		SetContext(ctx).
		SetAuthToken(s.apiKey).
		SetBody(msg).
		SetResult(&out).
		SetError(&apiErr).
		Post("/emails")
	if err != nil {
		return "", fmt.Errorf("send email: %w", err)
	}
	if resp.IsError() {
		if apiErr.StatusCode == 0 {
			apiErr.StatusCode = resp.StatusCode()
		}
		return "", &apiErr
	}
	return out.ID, nil
}
