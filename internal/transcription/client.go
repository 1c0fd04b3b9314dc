package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yegors/co-translate/internal/ai"
	"github.com/yegors/co-translate/internal/audio"
	"github.com/yegors/co-translate/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// PlaceholderText is returned when the service answers without any text
const PlaceholderText = "No transcription available"

// ErrTranscriptionFailed matches every failed transcription request
var ErrTranscriptionFailed = errors.New("transcription failed")

// FailedError carries the upstream HTTP status of a failed request.
// StatusCode is 0 when no response was received.
type FailedError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *FailedError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("transcription failed: %d %s", e.StatusCode, strings.TrimSpace(e.Body))
	case e.Err != nil:
		return fmt.Sprintf("transcription failed: %v", e.Err)
	default:
		return "transcription failed"
	}
}

// Is lets errors.Is match ErrTranscriptionFailed
func (e *FailedError) Is(target error) bool { return target == ErrTranscriptionFailed }

func (e *FailedError) Unwrap() error { return e.Err }

// Config contains speech-to-text endpoint settings
type Config struct {
	BaseURL        string
	Path           string
	Model          string
	ResponseFormat string
	Timeout        time.Duration
}

// Result is the outcome of one transcription
type Result struct {
	Text        string
	Language    string  // Detected language, when the verbose response carries one
	Duration    float64 // Audio duration in seconds reported by the service
	Placeholder bool    // Text is PlaceholderText because the service returned none
}

// Client uploads clips to an OpenAI-compatible transcription endpoint
type Client struct {
	config      Config
	credentials ai.CredentialSource
	httpClient  *http.Client
	logger      *logger.Logger
}

// NewClient creates a transcription client
func NewClient(config Config, credentials ai.CredentialSource, log *logger.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 120 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	return &Client{
		config:      config,
		credentials: credentials,
		httpClient:  &http.Client{Timeout: config.Timeout},
		logger:      log.Named("transcription"),
	}
}

type transcriptionResponse struct {
	Text     string  `json:"text"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
}

// Transcribe uploads the clip and returns the recognised text
func (c *Client) Transcribe(ctx context.Context, clip audio.Clip) (Result, error) {
	token, err := c.credentials.Credential(ctx)
	if err != nil {
		return Result{}, &FailedError{Err: err}
	}

	body, contentType, err := c.buildForm(clip)
	if err != nil {
		return Result{}, &FailedError{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+c.config.Path, body)
	if err != nil {
		return Result{}, &FailedError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", contentType)

	c.logger.Debug("Uploading clip",
		String("size", humanize.Bytes(uint64(len(clip.Data)))),
		String("filename", clip.Filename()),
		String("model", c.config.Model))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, &FailedError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Result{}, &FailedError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var tr transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return Result{}, &FailedError{Err: fmt.Errorf("invalid response: %w", err)}
	}

	result := Result{
		Text:     tr.Text,
		Language: tr.Language,
		Duration: tr.Duration,
	}
	if result.Text == "" {
		result.Text = PlaceholderText
		result.Placeholder = true
	}

	c.logger.Info("Transcription finished",
		String("language", tr.Language),
		Int("chars", len(result.Text)),
		logger.Float64("audio_seconds", tr.Duration),
		logger.Duration("elapsed", time.Since(start)))

	return result, nil
}

func (c *Client) buildForm(clip audio.Clip) (io.Reader, string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", clip.Filename())
	if err != nil {
		return nil, "", err
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return nil, "", err
	}

	fields := [][2]string{
		{"model", c.config.Model},
		{"response_format", c.config.ResponseFormat},
		{"temperature", "0"},
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}
