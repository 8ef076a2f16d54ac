// Package docs reads and creates Google Docs.
package docs

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2/google"
	gdocs "google.golang.org/api/docs/v1"
	"google.golang.org/api/option"
)

type Document struct {
	ID    string `json:"document_id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

type Client struct {
	svc *gdocs.Service
}

// FromServiceAccount builds a client from service-account JSON. The
// documents must be shared with the account's e-mail.
func FromServiceAccount(ctx context.Context, credentialsJSON []byte) (*Client, error) {
	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, gdocs.DocumentsScope)
	if err != nil {
		return nil, fmt.Errorf("docs credentials: %w", err)
	}
	return New(ctx, option.WithCredentials(creds))
}

func New(ctx context.Context, opts ...option.ClientOption) (*Client, error) {
	svc, err := gdocs.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docs service: %w", err)
	}
	return &Client{svc: svc}, nil
}

// GetDocument returns the title and the concatenated paragraph text.
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	doc, err := c.svc.Documents.Get(id).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return &Document{ID: doc.DocumentId, Title: doc.Title, Text: plainText(doc)}, nil
}

// CreateDocument creates a document and inserts content at its start.
func (c *Client) CreateDocument(ctx context.Context, title, content string) (*Document, error) {
	doc, err := c.svc.Documents.Create(&gdocs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	if content != "" {
		req := &gdocs.BatchUpdateDocumentRequest{Requests: []*gdocs.Request{{
			InsertText: &gdocs.InsertTextRequest{
				Location: &gdocs.Location{Index: 1},
				Text:     content,
			},
		}}}
		if _, err := c.svc.Documents.BatchUpdate(doc.DocumentId, req).Context(ctx).Do(); err != nil {
			return nil, fmt.Errorf("insert text into %s: %w", doc.DocumentId, err)
		}
	}
	return &Document{ID: doc.DocumentId, Title: doc.Title, Text: content}, nil
}

func plainText(doc *gdocs.Document) string {
	if doc.Body == nil {
		return ""
	}
	var b strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String()
}
