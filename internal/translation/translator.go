package translation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/co-translate/internal/ai"
	"github.com/yegors/co-translate/internal/languages"
	"github.com/yegors/co-translate/pkg/logger"
)

// PlaceholderText is returned when the model answers without any content
const PlaceholderText = "Translation failed"

// ErrTranslationFailed matches every failed translation request
var ErrTranslationFailed = errors.New("translation failed")

// FailedError carries the upstream HTTP status of a failed request.
// StatusCode is 0 when no response was received.
type FailedError struct {
	StatusCode int
	Err        error
}

func (e *FailedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("translation failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("translation failed: %v", e.Err)
}

// Is lets errors.Is match ErrTranslationFailed
func (e *FailedError) Is(target error) bool { return target == ErrTranslationFailed }

func (e *FailedError) Unwrap() error { return e.Err }

// Config contains translation request settings
type Config struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	SkipSameLanguage bool
}

// Result is the outcome of one translation
type Result struct {
	Text        string
	Placeholder bool // Text is PlaceholderText because the model returned none
	Skipped     bool // Source equals target and the text was passed through
}

// Translator turns a transcript into the target language using a chat model
type Translator struct {
	provider ai.ChatProvider
	config   Config
	logger   *logger.Logger
}

// NewTranslator creates a translator backed by provider
func NewTranslator(provider ai.ChatProvider, config Config, log *logger.Logger) *Translator {
	return &Translator{
		provider: provider,
		config:   config,
		logger:   log.Named("translation").With(logger.String("provider", provider.Name())),
	}
}

// Instruction renders the system instruction for a language pair
func Instruction(source, target string) string {
	return fmt.Sprintf("Translate the input text from %s to %s, preserving tone and meaning. "+
		"Return only the translated text, no explanations or additional formatting.",
		languages.Label(source), languages.Label(target))
}

// Translate sends text with the pair's instruction and returns the first choice
func (t *Translator) Translate(ctx context.Context, text, source, target string) (Result, error) {
	if t.config.SkipSameLanguage && source == target {
		t.logger.Debug("Source equals target, passing text through", logger.String("language", source))
		return Result{Text: text, Skipped: true}, nil
	}

	messages := []ai.ChatMessage{
		{Role: ai.RoleSystem, Content: Instruction(source, target)},
		{Role: ai.RoleUser, Content: text},
	}

	start := time.Now()
	out, err := t.provider.ChatCompletion(ctx, messages, ai.ChatConfig{
		Model:       t.config.Model,
		Temperature: t.config.Temperature,
		MaxTokens:   t.config.MaxTokens,
	})
	if errors.Is(err, ai.ErrEmptyCompletion) {
		t.logger.Warn("Model returned no content")
		return Result{Text: PlaceholderText, Placeholder: true}, nil
	}
	if err != nil {
		return Result{}, &FailedError{StatusCode: ai.StatusCode(err), Err: err}
	}
	if out == "" {
		return Result{Text: PlaceholderText, Placeholder: true}, nil
	}

	t.logger.Info("Translation finished",
		logger.String("source", source),
		logger.String("target", target),
		logger.Int("chars", len(out)),
		logger.Duration("elapsed", time.Since(start)))

	return Result{Text: out}, nil
}
