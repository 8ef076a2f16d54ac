// Package gmail reads and sends mail for the business mailbox.
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"
	"time"

	gm "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	me              = "me"
	defaultListSize = 10
	maxListSize     = 50
	noSubject       = "Sin asunto"
)

type Summary struct {
	ID          string    `json:"id"`
	ThreadID    string    `json:"thread_id"`
	Subject     string    `json:"subject"`
	From        string    `json:"from"`
	Date        time.Time `json:"date"`
	Snippet     string    `json:"snippet"`
	IsImportant bool      `json:"is_important"`
	IsUnread    bool      `json:"is_unread"`
}

type Detail struct {
	Summary
	To   string `json:"to,omitempty"`
	Body string `json:"body"`
}

type Sent struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"thread_id"`
	LabelIDs []string `json:"label_ids,omitempty"`
}

type Client struct {
	svc *gm.Service
}

// FromOAuth builds a client from console credentials and a refresh token,
// caching access tokens at tokenPath.
func FromOAuth(ctx context.Context, credentialsJSON []byte, refreshToken, tokenPath string) (*Client, error) {
	creds, err := ParseCredentials(credentialsJSON)
	if err != nil {
		return nil, err
	}
	cfg := OAuthConfig(creds)
	tok, err := Token(ctx, cfg, tokenPath, refreshToken)
	if err != nil {
		return nil, err
	}
	return New(ctx, option.WithHTTPClient(cfg.Client(context.Background(), tok)))
}

func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := gm.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// ListMessages returns summaries for query, newest first. max is clamped to [1, 50].
func (c *Client) ListMessages(ctx context.Context, query string, max int64) ([]Summary, error) {
	if max <= 0 {
		max = defaultListSize
	}
	if max > maxListSize {
		max = maxListSize
	}
	list, err := c.svc.Users.Messages.List(me).Q(query).MaxResults(max).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	out := make([]Summary, 0, len(list.Messages))
	for _, ref := range list.Messages {
		msg, err := c.svc.Users.Messages.Get(me, ref.Id).
			Format("metadata").
			MetadataHeaders("Subject", "From", "To").
			Context(ctx).Do()
		if err != nil {
			return nil, fmt.Errorf("get message %s: %w", ref.Id, err)
		}
		out = append(out, summarize(msg))
	}
	return out, nil
}

// GetMessage fetches one message with its plain-text body.
func (c *Client) GetMessage(ctx context.Context, id string) (*Detail, error) {
	msg, err := c.svc.Users.Messages.Get(me, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	d := &Detail{Summary: summarize(msg)}
	if msg.Payload != nil {
		d.To = header(msg.Payload, "To")
		d.Body = extractBody(msg.Payload)
	}
	return d, nil
}

// SendMessage sends a plain-text UTF-8 mail.
func (c *Client) SendMessage(ctx context.Context, to, subject, body string) (*Sent, error) {
	raw := base64.URLEncoding.EncodeToString(buildMIME(to, subject, body))
	msg, err := c.svc.Users.Messages.Send(me, &gm.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &Sent{ID: msg.Id, ThreadID: msg.ThreadId, LabelIDs: msg.LabelIds}, nil
}

func buildMIME(to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("Content-Transfer-Encoding: 8bit\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return []byte(b.String())
}

func summarize(msg *gm.Message) Summary {
	s := Summary{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		Snippet:  msg.Snippet,
		Subject:  noSubject,
	}
	if msg.InternalDate > 0 {
		s.Date = time.UnixMilli(msg.InternalDate)
	}
	for _, label := range msg.LabelIds {
		switch label {
		case "IMPORTANT":
			s.IsImportant = true
		case "UNREAD":
			s.IsUnread = true
		}
	}
	if msg.Payload != nil {
		if subj := header(msg.Payload, "Subject"); subj != "" {
			s.Subject = subj
		}
		s.From = header(msg.Payload, "From")
	}
	return s
}

func header(p *gm.MessagePart, name string) string {
	for _, h := range p.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// extractBody returns the first text/plain content found depth-first.
func extractBody(p *gm.MessagePart) string {
	if p.Body != nil && p.Body.Data != "" && (p.MimeType == "" || strings.HasPrefix(p.MimeType, "text/plain")) {
		if s, ok := decodeData(p.Body.Data); ok {
			return s
		}
	}
	for _, part := range p.Parts {
		if s := extractBody(part); s != "" {
			return s
		}
	}
	return ""
}

// decodeData handles Gmail's base64url with or without padding.
func decodeData(data string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b), true
	}
	return "", false
}
