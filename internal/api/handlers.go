package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/yegors/co-translate/internal/config"
	"github.com/yegors/co-translate/internal/languages"
	"github.com/yegors/co-translate/internal/recorder"
	"github.com/yegors/co-translate/internal/session"
	"github.com/yegors/co-translate/internal/synthesis"
	"github.com/yegors/co-translate/internal/transcription"
	"github.com/yegors/co-translate/internal/translation"
	"github.com/yegors/co-translate/internal/websocket"
	"github.com/yegors/co-translate/pkg/logger"
)

// TextTranslator translates text without touching the session
type TextTranslator interface {
	Translate(ctx context.Context, text, source, target string) (translation.Result, error)
}

// Handler contains the API handlers
type Handler struct {
	session    *session.Manager
	translator TextTranslator
	config     *config.Config
	wsServer   *websocket.Server
	logger     *logger.Logger
}

// NewHandler creates a new API handler
func NewHandler(sessionManager *session.Manager, translator TextTranslator, config *config.Config, wsServer *websocket.Server, logger *logger.Logger) *Handler {
	return &Handler{
		session:    sessionManager,
		translator: translator,
		config:     config,
		wsServer:   wsServer,
		logger:     logger.Named("api-handler"),
	}
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	snap := h.session.Snapshot()

	response := map[string]any{
		"status":           "healthy",
		"message":          "Voice translation API is running",
		"session_status":   snap.Status,
		"recording_device": h.config.Recorder.Device,
		"synthesis_engine": h.config.Synthesis.Engine,
		"can_speak":        h.session.CanSpeak(),
		"clients":          h.wsServer.ClientCount(),
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetLanguages returns the supported languages and the default pair
func (h *Handler) GetLanguages(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"languages":      languages.All(),
		"default_source": h.config.Languages.DefaultSource,
		"default_target": h.config.Languages.DefaultTarget,
	})
}

// GetSession returns the current session snapshot
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

type languagesRequest struct {
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

// SetLanguages changes the session's language pair
func (h *Handler) SetLanguages(w http.ResponseWriter, r *http.Request) {
	var req languagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	snap, err := h.session.SetLanguages(req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// ResetSession returns a finished or failed session to idle
func (h *Handler) ResetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.session.Reset()
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// StartRecording opens the recording device
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	// The capture outlives this request
	snap, err := h.session.StartRecording(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, recorder.ErrDeviceUnavailable) {
			WriteJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error(), Session: &snap})
			return
		}
		h.writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// PushChunk appends one encoded audio chunk to the active recording
func (h *Handler) PushChunk(w http.ResponseWriter, r *http.Request) {
	limit := int64(h.config.Server.MaxChunkKB) * 1024
	body := http.MaxBytesReader(w, r.Body, limit)

	chunk, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			err := fmt.Errorf("chunk exceeds %s", humanize.IBytes(uint64(limit)))
			// The clip would have a gap, so the run cannot continue
			snap, abortErr := h.session.AbortRecording(context.WithoutCancel(r.Context()), err)
			resp := errorResponse{Error: err.Error()}
			if !errors.Is(abortErr, session.ErrNotRecording) {
				resp.Session = &snap
			}
			WriteJSON(w, http.StatusRequestEntityTooLarge, resp)
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to read chunk: %w", err))
		return
	}

	if err := h.session.PushChunk(chunk); err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]any{"bytes": len(chunk)})
}

// StopRecording finalises the clip and runs the pipeline to completion
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	// A client disconnect must not abort the run midway
	snap, err := h.session.StopRecording(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, session.ErrNotRecording) {
			h.writeSessionError(w, err)
			return
		}
		status := http.StatusBadGateway
		if errors.Is(err, recorder.ErrDeviceUnavailable) {
			status = http.StatusServiceUnavailable
		}
		WriteJSON(w, status, errorResponse{
			Error:          err.Error(),
			UpstreamStatus: upstreamStatus(err),
			Session:        &snap,
		})
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

type abortRequest struct {
	Reason string `json:"reason"`
}

// AbortRecording fails the current recording without transcribing it, used by
// clients that could not deliver every chunk
func (h *Handler) AbortRecording(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
			return
		}
	}

	var cause error
	if req.Reason != "" {
		cause = errors.New(req.Reason)
	}

	snap, err := h.session.AbortRecording(context.WithoutCancel(r.Context()), cause)
	if errors.Is(err, session.ErrNotRecording) {
		h.writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// Play speaks the current translation
func (h *Handler) Play(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Play(); err != nil {
		h.writeSessionError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

// StopPlayback cancels the current utterance
func (h *Handler) StopPlayback(w http.ResponseWriter, r *http.Request) {
	h.session.StopPlayback()
	WriteJSON(w, http.StatusOK, h.session.Snapshot())
}

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

// Translate translates text directly, outside the recording session
func (h *Handler) Translate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, errors.New("text is required"))
		return
	}
	if req.SourceLanguage == "" {
		req.SourceLanguage = "en"
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = "es"
	}
	if err := languages.ValidatePair(req.SourceLanguage, req.TargetLanguage); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.translator.Translate(r.Context(), req.Text, req.SourceLanguage, req.TargetLanguage)
	if err != nil {
		h.logger.Warn("Text translation failed", logger.Error(err))
		WriteJSON(w, http.StatusBadGateway, map[string]any{
			"error":           err.Error(),
			"upstream_status": upstreamStatus(err),
			"original_text":   req.Text,
			"source_language": req.SourceLanguage,
			"target_language": req.TargetLanguage,
		})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"original_text":   req.Text,
		"translated_text": result.Text,
		"source_language": req.SourceLanguage,
		"target_language": req.TargetLanguage,
		"success":         !result.Placeholder,
	})
}

type errorResponse struct {
	Error          string            `json:"error"`
	UpstreamStatus int               `json:"upstream_status,omitempty"`
	Session        *session.Snapshot `json:"session,omitempty"`
}

// writeSessionError maps session errors to HTTP statuses
func (h *Handler) writeSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrNotRecording),
		errors.Is(err, session.ErrNothingToPlay),
		errors.Is(err, synthesis.ErrNothingToSay):
		status = http.StatusConflict
	case errors.Is(err, session.ErrUnsupportedLanguage),
		errors.Is(err, session.ErrPushUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, synthesis.ErrUnavailable),
		errors.Is(err, recorder.ErrDeviceUnavailable):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", logger.Error(err))
	}
	writeError(w, status, err)
}

// upstreamStatus extracts the HTTP status of a failed upstream call
func upstreamStatus(err error) int {
	var te *transcription.FailedError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	var tre *translation.FailedError
	if errors.As(err, &tre) {
		return tre.StatusCode
	}
	return 0
}

func writeError(w http.ResponseWriter, status int, err error) {
	WriteJSON(w, status, errorResponse{Error: err.Error()})
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
