package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Attachment is one base64-encoded file of an outbound message.
type Attachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// Message is one outbound email.
type Message struct {
	To          []string     `json:"to"`
	Subject     string       `json:"subject"`
	HTML        string       `json:"html,omitempty"`
	Text        string       `json:"text,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	From        string       `json:"from,omitempty"`
	FromName    string       `json:"from_name,omitempty"`
	ReplyTo     string       `json:"reply_to,omitempty"`
}

// Sender delivers one message and returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Client talks to an HTTP email provider (Resend-compatible JSON API).
type Client struct {
	baseURL     string
	apiKey      string
	defaultFrom string
	httpClient  *http.Client
}

func NewClient(baseURL, apiKey, defaultFrom string) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		defaultFrom: defaultFrom,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type sendRequest struct {
	From        string           `json:"from"`
	To          []string         `json:"to"`
	Subject     string           `json:"subject"`
	HTML        string           `json:"html,omitempty"`
	Text        string           `json:"text,omitempty"`
	ReplyTo     string           `json:"reply_to,omitempty"`
	Attachments []sendAttachment `json:"attachments,omitempty"`
}

type sendAttachment struct {
	Filename    string `json:"filename"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}

// Send posts the message to the provider. A non-2xx response is an
// error carrying the provider's body for the outbox's last_error column.
func (c *Client) Send(ctx context.Context, msg Message) (string, error) {
	if len(msg.To) == 0 {
		return "", fmt.Errorf("mail: no recipients")
	}

	from := msg.From
	if from == "" {
		from = c.defaultFrom
	}
	if msg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", msg.FromName, from)
	}

	payload := sendRequest{
		From:    from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
		ReplyTo: msg.ReplyTo,
	}
	for _, a := range msg.Attachments {
		payload.Attachments = append(payload.Attachments, sendAttachment(a))
	}

	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("mail: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("mail: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("mail: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("mail: provider returned %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("mail: decode response: %w", err)
	}
	if result.ID == "" {
		return "", fmt.Errorf("mail: provider response has no message id")
	}
	return result.ID, nil
}
