package assistant

import (
	"context"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// API is the part of the Assistants API a turn needs. *openai.Client
// satisfies it.
type API interface {
	CreateThread(ctx context.Context, request openai.ThreadRequest) (openai.Thread, error)
	CreateMessage(ctx context.Context, threadID string, request openai.MessageRequest) (openai.Message, error)
	CreateRun(ctx context.Context, threadID string, request openai.RunRequest) (openai.Run, error)
	RetrieveRun(ctx context.Context, threadID string, runID string) (openai.Run, error)
	SubmitToolOutputs(ctx context.Context, threadID string, runID string, request openai.SubmitToolOutputsRequest) (openai.Run, error)
	ListMessage(ctx context.Context, threadID string, limit *int, order *string, after *string, before *string, runID *string) (openai.MessagesList, error)
}

var _ API = (*openai.Client)(nil)

// NewOpenAI builds the upstream client. The SDK adds the assistants beta
// header on thread and run endpoints.
func NewOpenAI(apiKey, baseURL, organization string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if organization != "" {
		config.OrgID = organization
	}
	config.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	return openai.NewClientWithConfig(config)
}
