// Package whatsapp sends text messages through the WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGraphURL = "https://graph.facebook.com"

// SendResult mirrors the Graph API response so callers can forward it.
type SendResult struct {
	StatusCode int
	Body       json.RawMessage
}

// OK reports a 2xx vendor status.
func (r *SendResult) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	Body string `json:"body"`
}

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

type Option func(*clientOptions)

type clientOptions struct {
	graphURL   string
	httpClient *http.Client
}

// WithGraphURL overrides https://graph.facebook.com.
func WithGraphURL(u string) Option {
	return func(o *clientOptions) { o.graphURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(h *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = h }
}

func NewClient(token, phoneNumberID, apiVersion string, opts ...Option) *Client {
	o := clientOptions{
		graphURL:   defaultGraphURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if apiVersion == "" {
		apiVersion = "v21.0"
	}
	return &Client{
		endpoint:   fmt.Sprintf("%s/%s/%s/messages", o.graphURL, apiVersion, phoneNumberID),
		token:      token,
		httpClient: o.httpClient,
	}
}

// SendText posts a text message to phone. Vendor rejections are returned in
// SendResult, not as errors; err is only set when no response was read.
func (c *Client) SendText(ctx context.Context, phone, text string) (*SendResult, error) {
	payload, err := json.Marshal(textMessage{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text:             textBody{Body: text},
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("whatsapp send: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("whatsapp send: read body: %w", err)
	}
	if !json.Valid(raw) {
		quoted, _ := json.Marshal(string(raw))
		raw = quoted
	}
	return &SendResult{StatusCode: resp.StatusCode, Body: raw}, nil
}

// VerifySubscription answers Meta's webhook handshake: the challenge is
// echoed only for mode "subscribe" with the expected token.
func VerifySubscription(mode, token, challenge, expected string) (string, bool) {
	if expected == "" || mode != "subscribe" || token != expected {
		return "", false
	}
	return challenge, true
}
