package synthesis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/yegors/co-translate/internal/languages"
	"github.com/yegors/co-translate/pkg/logger"
)

var (
	// ErrNothingToSay is returned by Play for empty text
	ErrNothingToSay = errors.New("nothing to speak")
	// ErrUnavailable is returned by Play when no speech engine is configured
	ErrUnavailable = errors.New("speech synthesis unavailable")
)

// Engine speaks one utterance. Speak blocks until the utterance has ended or ctx
// is cancelled. Ready reports whether Speak can currently succeed.
type Engine interface {
	Name() string
	Ready() error
	Speak(ctx context.Context, text, locale string) error
}

// Synthesizer plays at most one utterance at a time and tracks whether it is playing
type Synthesizer struct {
	engine Engine
	logger *logger.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	done       chan struct{}
	playing    bool
	listener   func(playing bool)
}

// New creates a synthesizer; a nil engine disables playback
func New(engine Engine, log *logger.Logger) *Synthesizer {
	name := "none"
	if engine != nil {
		name = engine.Name()
	}
	return &Synthesizer{
		engine: engine,
		logger: log.Named("synthesis").With(logger.String("engine", name)),
	}
}

// SetListener registers a callback for changes of the playing flag
func (s *Synthesizer) SetListener(fn func(playing bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listener = fn
}

// Available reports whether an engine is configured
func (s *Synthesizer) Available() bool {
	return s.engine != nil
}

// Play speaks text in the locale of the language code. Any utterance in progress
// is cancelled and has ended before the new one starts.
func (s *Synthesizer) Play(text, lang string) error {
	if s.engine == nil {
		return ErrUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return ErrNothingToSay
	}
	if err := s.engine.Ready(); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	locale := languages.Locale(lang)

	s.mu.Lock()
	prevDone := s.done
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	notify := s.setPlayingLocked(true)
	s.mu.Unlock()
	notify()

	go func() {
		defer close(done)
		defer cancel()

		if prevDone != nil {
			<-prevDone
		}

		if ctx.Err() == nil {
			s.logger.Debug("Speaking", logger.String("locale", locale), logger.Int("chars", len(text)))
			if err := s.engine.Speak(ctx, text, locale); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Speech failed", logger.Error(err))
			}
		}

		s.mu.Lock()
		notify := func() {}
		if s.generation == gen {
			s.cancel, s.done = nil, nil
			notify = s.setPlayingLocked(false)
		}
		s.mu.Unlock()
		notify()
	}()

	return nil
}

// Stop cancels the current utterance, if any, and clears the playing flag
func (s *Synthesizer) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	// done stays so the next Play waits for the cancelled utterance to end
	s.cancel = nil
	notify := s.setPlayingLocked(false)
	s.mu.Unlock()
	notify()
}

// IsPlaying reports whether an utterance is in progress
func (s *Synthesizer) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// setPlayingLocked updates the flag and returns the listener call to run once
// the lock is released
func (s *Synthesizer) setPlayingLocked(playing bool) func() {
	if s.playing == playing || s.listener == nil {
		s.playing = playing
		return func() {}
	}
	s.playing = playing
	fn := s.listener
	return func() { fn(playing) }
}
