package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/yegors/co-translate/internal/ai"
	"github.com/yegors/co-translate/pkg/logger"
)

// Client talks to any OpenAI-compatible chat completions API (Groq by default)
type Client struct {
	credentials ai.CredentialSource
	baseURL     string // Stored without trailing slash
	httpClient  *http.Client
	logger      *logger.Logger
}

// NewClient creates a new OpenAI-compatible client
func NewClient(credentials ai.CredentialSource, baseURL string, timeout time.Duration, logger *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		credentials: credentials,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger.Named("openai"),
	}
}

// Name implements ai.ChatProvider
func (c *Client) Name() string { return "openai" }

// ChatCompletion implements ai.ChatProvider
func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	token, err := c.credentials.Credential(ctx)
	if err != nil {
		return "", err
	}

	clientConfig := goopenai.DefaultConfig(token)
	if c.baseURL != "" {
		clientConfig.BaseURL = c.baseURL
	}
	clientConfig.HTTPClient = c.httpClient
	client := goopenai.NewClientWithConfig(clientConfig)

	reqMessages := make([]goopenai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		reqMessages[i] = goopenai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	resp, err := client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       config.Model,
		Messages:    reqMessages,
		MaxTokens:   config.MaxTokens,
		Temperature: float32(config.Temperature),
	})
	if err != nil {
		return "", toStatusError(err)
	}

	if len(resp.Choices) == 0 {
		return "", ai.ErrEmptyCompletion
	}

	c.logger.Debug("Chat completion finished",
		logger.String("model", resp.Model),
		logger.Int("total_tokens", resp.Usage.TotalTokens))

	return resp.Choices[0].Message.Content, nil
}

// toStatusError converts the library's HTTP errors into ai.StatusError
func toStatusError(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return fmt.Errorf("chat completion failed: %w",
			&ai.StatusError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message})
	}

	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return fmt.Errorf("chat completion failed: %w",
			&ai.StatusError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.HTTPStatus})
	}

	return fmt.Errorf("chat completion failed: %w", err)
}
