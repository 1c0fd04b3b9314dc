package ai

import (
	"context"
	"errors"
	"fmt"
)

// Chat roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyCompletion is returned when the provider answered without any content
var ErrEmptyCompletion = errors.New("no content in completion response")

// ChatMessage represents a message in a chat conversation
type ChatMessage struct {
	Role    string
	Content string
}

// ChatConfig holds configuration for chat completions
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ChatProvider defines the interface for text-to-text chat completions
type ChatProvider interface {
	// ChatCompletion sends a conversation to the LLM and returns the text response
	ChatCompletion(ctx context.Context, messages []ChatMessage, config ChatConfig) (string, error)
	// Name identifies the provider in logs
	Name() string
}

// CredentialSource hands out the bearer token for a request
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// StaticCredential is a CredentialSource with a fixed value
type StaticCredential string

// Credential implements CredentialSource
func (s StaticCredential) Credential(context.Context) (string, error) {
	return string(s), nil
}

// StatusError is a non-2xx answer from an upstream API
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not a StatusError
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
