package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yegors/co-translate/internal/ai"
	"github.com/yegors/co-translate/pkg/logger"
	"google.golang.org/genai"
)

// Client handles chat completions against Google's Gemini API
type Client struct {
	client *genai.Client
	logger *logger.Logger
}

// NewClient creates a Gemini client. baseURL is optional and overrides the API host.
func NewClient(ctx context.Context, apiKey, baseURL string, log *logger.Logger) (*Client, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		client: client,
		logger: log.Named("gemini"),
	}, nil
}

// Name implements ai.ChatProvider
func (c *Client) Name() string { return "gemini" }

// ChatCompletion implements ai.ChatProvider
func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	contents, system := toContents(messages)

	genConfig := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(config.Temperature)),
		MaxOutputTokens: int32(config.MaxTokens),
	}
	if system != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, config.Model, contents, genConfig)
	if err != nil {
		return "", toStatusError(err)
	}

	text := resp.Text()
	if text == "" {
		return "", ai.ErrEmptyCompletion
	}
	return text, nil
}

// toContents splits system messages into one instruction and maps the rest to
// Gemini roles
func toContents(messages []ai.ChatMessage) ([]*genai.Content, string) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			system = append(system, msg.Content)
		case ai.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	return contents, strings.Join(system, "\n\n")
}

func toStatusError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("gemini chat failed: %w", &ai.StatusError{StatusCode: apiErr.Code, Message: apiErr.Message})
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return fmt.Errorf("gemini chat failed: %w", &ai.StatusError{StatusCode: apiErrPtr.Code, Message: apiErrPtr.Message})
	}
	return fmt.Errorf("gemini chat failed: %w", err)
}
