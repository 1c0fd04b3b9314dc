package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/co-translate/internal/audio"
	"github.com/yegors/co-translate/internal/languages"
	"github.com/yegors/co-translate/internal/recorder"
	"github.com/yegors/co-translate/internal/transcription"
	"github.com/yegors/co-translate/internal/translation"
	"github.com/yegors/co-translate/pkg/logger"
)

var (
	// ErrBusy is returned while a recording or pipeline run is active
	ErrBusy = errors.New("session busy")
	// ErrNotRecording is returned when chunks or a stop arrive outside a recording
	ErrNotRecording = errors.New("not recording")
	// ErrUnsupportedLanguage is returned for codes outside the supported set
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrNothingToPlay is returned by Play before any translation exists
	ErrNothingToPlay = errors.New("no translation to play")
	// ErrPushUnsupported is returned by PushChunk when the device does not take pushed chunks
	ErrPushUnsupported = errors.New("recording device does not accept pushed chunks")
	// ErrRecordingAborted is the error of a run whose clip could not be captured whole
	ErrRecordingAborted = errors.New("recording aborted")
)

// Recorder captures one clip per recording
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (audio.Clip, error)
	IsRecording() bool
}

// ChunkSink receives chunks from a presentation layer
type ChunkSink interface {
	Push(chunk []byte) error
}

// Transcriber turns a clip into text
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (transcription.Result, error)
}

// Translator turns text into the target language
type Translator interface {
	Translate(ctx context.Context, text, source, target string) (translation.Result, error)
}

// Speaker plays one utterance at a time
type Speaker interface {
	Play(text, lang string) error
	Stop()
	IsPlaying() bool
	Available() bool
	SetListener(fn func(playing bool))
}

// Level of a user-facing notification
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notification is a user-facing notice for presentation layers
type Notification struct {
	Level   Level  `json:"level"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Observer receives every state change and notification
type Observer interface {
	SessionChanged(snapshot Snapshot)
	Notify(notification Notification)
}

// Snapshot is the observable session state
type Snapshot struct {
	Version          uint64    `json:"version"`
	RunID            string    `json:"run_id,omitempty"`
	Status           Status    `json:"status"`
	Progress         int       `json:"progress"`
	Message          string    `json:"message"`
	Error            string    `json:"error,omitempty"`
	SourceLanguage   string    `json:"source_language"`
	TargetLanguage   string    `json:"target_language"`
	Transcript       string    `json:"transcript"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	Translation      string    `json:"translation"`
	IsRecording      bool      `json:"is_recording"`
	IsPlaying        bool      `json:"is_playing"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Options configures a Manager
type Options struct {
	SourceLanguage string
	TargetLanguage string
	AutoPlay       bool
}

// Manager drives the single session: it gates recordings and runs the
// transcription, translation and synthesis stages in order.
type Manager struct {
	recorder    Recorder
	sink        ChunkSink
	transcriber Transcriber
	translator  Translator
	speaker     Speaker
	autoPlay    bool
	logger      *logger.Logger

	mu         sync.Mutex
	state      Snapshot
	starting   bool // device is being opened
	finalizing bool // clip is being finalised after stop
	observers  []Observer
}

// NewManager creates an idle session. sink may be nil when the device captures
// locally.
func NewManager(rec Recorder, sink ChunkSink, transcriber Transcriber, translator Translator, speaker Speaker, opts Options, log *logger.Logger) (*Manager, error) {
	if err := languages.ValidatePair(opts.SourceLanguage, opts.TargetLanguage); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedLanguage, err)
	}

	m := &Manager{
		recorder:    rec,
		sink:        sink,
		transcriber: transcriber,
		translator:  translator,
		speaker:     speaker,
		autoPlay:    opts.AutoPlay,
		logger:      log.Named("session"),
		state: Snapshot{
			Status:         StatusIdle,
			Message:        StatusIdle.Description(),
			SourceLanguage: opts.SourceLanguage,
			TargetLanguage: opts.TargetLanguage,
			UpdatedAt:      time.Now(),
		},
	}
	speaker.SetListener(m.playbackChanged)
	return m, nil
}

// Subscribe registers an observer for state changes and notifications
func (m *Manager) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// Snapshot returns the current session state
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	s := m.state
	s.IsRecording = m.recorder.IsRecording()
	s.IsPlaying = m.speaker.IsPlaying()
	return s
}

// SetLanguages changes the language pair; only allowed when nothing is running
func (m *Manager) SetLanguages(source, target string) (Snapshot, error) {
	if err := languages.ValidatePair(source, target); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %w", ErrUnsupportedLanguage, err)
	}

	m.mu.Lock()
	if m.state.Status.Active() || m.starting {
		m.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	m.state.SourceLanguage = source
	m.state.TargetLanguage = target
	snap, observers := m.commitLocked()
	m.mu.Unlock()

	m.publish(observers, snap)
	return snap, nil
}

// StartRecording opens the device and moves the session to recording. A run
// that finished or failed is implicitly reset.
func (m *Manager) StartRecording(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.starting || !isValidTransition(m.state.Status, StatusRecording) {
		m.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	m.starting = true
	m.mu.Unlock()

	err := m.recorder.Start(ctx)

	m.mu.Lock()
	m.starting = false
	runID := uuid.NewString()
	m.state.RunID = runID
	m.state.Transcript = ""
	m.state.DetectedLanguage = ""
	m.state.Translation = ""
	m.state.Error = ""

	if err != nil {
		// Device failures leave progress at 0
		m.state.Status = StatusError
		m.state.Progress = 0
		m.state.Message = StatusError.Description()
		m.state.Error = err.Error()
		snap, observers := m.commitLocked()
		m.mu.Unlock()

		m.logger.Warn("Recording could not start", logger.String("run_id", runID), logger.Error(err))
		m.publish(observers, snap)
		m.notify(observers, Notification{
			Level:   LevelError,
			Title:   "Microphone Error",
			Message: "Could not access microphone. Please check permissions.",
		})
		return snap, err
	}

	m.setStatusLocked(StatusRecording)
	snap, observers := m.commitLocked()
	m.mu.Unlock()

	m.logger.Info("Recording started", logger.String("run_id", runID))
	m.publish(observers, snap)
	m.notify(observers, Notification{
		Level:   LevelInfo,
		Title:   "Recording started",
		Message: "Speak now, click stop when finished",
	})
	return snap, nil
}

// PushChunk forwards one chunk from a presentation layer to the recording device
func (m *Manager) PushChunk(chunk []byte) error {
	if m.sink == nil {
		return ErrPushUnsupported
	}

	m.mu.Lock()
	recording := m.state.Status == StatusRecording && !m.finalizing
	m.mu.Unlock()
	if !recording {
		return ErrNotRecording
	}

	if err := m.sink.Push(chunk); err != nil {
		if errors.Is(err, audio.ErrNoCapture) {
			return ErrNotRecording
		}
		return err
	}
	return nil
}

// StopRecording finalises the clip and runs the pipeline to completion. It
// returns the final snapshot; the error is the stage failure, if any.
func (m *Manager) StopRecording(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	if m.state.Status != StatusRecording || m.finalizing {
		m.mu.Unlock()
		return Snapshot{}, ErrNotRecording
	}
	m.finalizing = true
	runID := m.state.RunID
	source, target := m.state.SourceLanguage, m.state.TargetLanguage
	m.mu.Unlock()

	log := m.logger.With(logger.String("run_id", runID))

	clip, err := m.recorder.Stop(ctx)

	m.mu.Lock()
	m.finalizing = false
	m.mu.Unlock()

	if err != nil {
		return m.fail(log, err)
	}

	log.Info("Clip finalised",
		logger.Int("bytes", len(clip.Data)),
		logger.Int("chunks", clip.Chunks))
	if clip.Empty() {
		log.Warn("Clip is empty, transcribing anyway")
	}

	// Transcription
	m.transition(StatusTranscribing)
	transcript, err := m.transcriber.Transcribe(ctx, clip)
	if err != nil {
		return m.fail(log, err)
	}
	m.update(func(s *Snapshot) {
		s.Transcript = transcript.Text
		s.DetectedLanguage = transcript.Language
	})

	// Translation
	m.transition(StatusTranslating)
	translated, err := m.translator.Translate(ctx, transcript.Text, source, target)
	if err != nil {
		return m.fail(log, err)
	}
	m.update(func(s *Snapshot) {
		s.Translation = translated.Text
	})

	// Synthesis
	m.transition(StatusSynthesizing)
	if m.autoPlay {
		if err := m.speaker.Play(translated.Text, target); err != nil {
			log.Warn("Automatic playback failed", logger.Error(err))
		}
	}

	snap, observers := m.transition(StatusComplete)
	log.Info("Pipeline complete",
		logger.Bool("transcript_placeholder", transcript.Placeholder),
		logger.Bool("translation_placeholder", translated.Placeholder))
	m.notify(observers, Notification{
		Level:   LevelInfo,
		Title:   "Translation Complete",
		Message: "Click play to hear the translation",
	})
	return snap, nil
}

// AbortRecording releases the device and fails the run without transcribing.
// It is used when a chunk was lost, since a clip with a gap cannot be decoded.
func (m *Manager) AbortRecording(ctx context.Context, cause error) (Snapshot, error) {
	m.mu.Lock()
	if m.state.Status != StatusRecording || m.finalizing {
		m.mu.Unlock()
		return Snapshot{}, ErrNotRecording
	}
	m.finalizing = true
	runID := m.state.RunID
	m.mu.Unlock()

	log := m.logger.With(logger.String("run_id", runID))

	if _, err := m.recorder.Stop(ctx); err != nil {
		log.Warn("Failed to stop aborted recording", logger.Error(err))
	}

	m.mu.Lock()
	m.finalizing = false
	m.mu.Unlock()

	err := ErrRecordingAborted
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrRecordingAborted, cause)
	}
	return m.fail(log, err)
}

// Play speaks the current translation in the target language
func (m *Manager) Play() error {
	m.mu.Lock()
	text, target := m.state.Translation, m.state.TargetLanguage
	m.mu.Unlock()

	if text == "" {
		return ErrNothingToPlay
	}
	return m.speaker.Play(text, target)
}

// CanSpeak reports whether a speech engine is configured
func (m *Manager) CanSpeak() bool {
	return m.speaker.Available()
}

// StopPlayback cancels the current utterance
func (m *Manager) StopPlayback() {
	m.speaker.Stop()
}

// Reset returns a finished or failed session to idle. Texts are kept.
func (m *Manager) Reset() (Snapshot, error) {
	m.mu.Lock()
	if m.starting || !isValidTransition(m.state.Status, StatusIdle) {
		m.mu.Unlock()
		return Snapshot{}, ErrBusy
	}
	m.setStatusLocked(StatusIdle)
	m.state.Error = ""
	snap, observers := m.commitLocked()
	m.mu.Unlock()

	m.publish(observers, snap)
	return snap, nil
}

// fail moves the session to error, keeping the failing stage's progress
func (m *Manager) fail(log *logger.Logger, err error) (Snapshot, error) {
	m.mu.Lock()
	stage := m.state.Status
	m.state.Status = StatusError
	m.state.Message = StatusError.Description()
	m.state.Error = err.Error()
	snap, observers := m.commitLocked()
	m.mu.Unlock()

	log.Error("Pipeline failed",
		logger.String("stage", string(stage)),
		logger.Int("progress", snap.Progress),
		logger.Error(err))

	m.publish(observers, snap)
	n := Notification{
		Level:   LevelError,
		Title:   "Translation Error",
		Message: "Failed to process audio. Please try again.",
	}
	switch {
	case errors.Is(err, recorder.ErrDeviceUnavailable):
		n.Title = "Microphone Error"
		n.Message = "Could not access microphone. Please check permissions."
	case errors.Is(err, ErrRecordingAborted):
		n.Title = "Recording Error"
		n.Message = "Audio was lost while recording. Please try again."
	}
	m.notify(observers, n)
	return snap, err
}

func (m *Manager) transition(to Status) (Snapshot, []Observer) {
	m.mu.Lock()
	if !isValidTransition(m.state.Status, to) {
		// Only the driver mutates status, so this is a programming error
		m.logger.Error("Invalid transition",
			logger.String("from", string(m.state.Status)),
			logger.String("to", string(to)))
	}
	m.setStatusLocked(to)
	snap, observers := m.commitLocked()
	m.mu.Unlock()

	m.publish(observers, snap)
	return snap, observers
}

func (m *Manager) update(fn func(s *Snapshot)) {
	m.mu.Lock()
	fn(&m.state)
	snap, observers := m.commitLocked()
	m.mu.Unlock()

	m.publish(observers, snap)
}

func (m *Manager) setStatusLocked(status Status) {
	m.state.Status = status
	m.state.Progress = status.Progress()
	m.state.Message = status.Description()
}

// commitLocked bumps the version and returns what to publish once unlocked
func (m *Manager) commitLocked() (Snapshot, []Observer) {
	m.state.Version++
	m.state.UpdatedAt = time.Now()
	observers := make([]Observer, len(m.observers))
	copy(observers, m.observers)
	return m.snapshotLocked(), observers
}

func (m *Manager) playbackChanged(bool) {
	m.mu.Lock()
	snap, observers := m.commitLocked()
	m.mu.Unlock()

	m.publish(observers, snap)
}

func (m *Manager) publish(observers []Observer, snap Snapshot) {
	for _, o := range observers {
		o.SessionChanged(snap)
	}
}

func (m *Manager) notify(observers []Observer, n Notification) {
	for _, o := range observers {
		o.Notify(n)
	}
}
