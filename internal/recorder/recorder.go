package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yegors/co-translate/internal/audio"
	"github.com/yegors/co-translate/pkg/logger"
)

var (
	// ErrDeviceUnavailable is returned when the input device cannot be opened
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrAlreadyRecording is returned by Start while a recording is active
	ErrAlreadyRecording = errors.New("recording already in progress")
	// ErrNotRecording is returned by Stop when nothing is being recorded
	ErrNotRecording = errors.New("not recording")
)

// Recorder accumulates one device capture into one clip
type Recorder struct {
	device audio.Device
	logger *logger.Logger

	mu        sync.Mutex
	capture   audio.Capture
	collected chan audio.Clip
	started   time.Time
	recording atomic.Bool
}

// New creates a recorder for device
func New(device audio.Device, log *logger.Logger) *Recorder {
	return &Recorder{
		device: device,
		logger: log.Named("recorder").With(logger.String("device", device.Name())),
	}
}

// Start opens the device and begins collecting chunks
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capture != nil {
		return ErrAlreadyRecording
	}

	capture, err := r.device.Open(ctx)
	if err != nil {
		r.logger.Warn("Failed to open audio device", logger.Error(err))
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	r.capture = capture
	r.collected = make(chan audio.Clip, 1)
	r.started = time.Now()
	r.recording.Store(true)

	go collect(capture, r.collected)

	r.logger.Info("Recording started")
	return nil
}

// collect appends non-empty chunks in arrival order until the stream ends
func collect(capture audio.Capture, out chan<- audio.Clip) {
	clip := audio.Clip{MimeType: capture.MimeType()}
	for chunk := range capture.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		clip.Data = append(clip.Data, chunk...)
		clip.Chunks++
	}
	out <- clip
}

// Stop finishes the capture, waits for the remaining chunks and returns the clip.
// The device is released even when an error is returned.
func (r *Recorder) Stop(ctx context.Context) (audio.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.capture == nil {
		return audio.Clip{}, ErrNotRecording
	}

	capture, collected, started := r.capture, r.collected, r.started
	defer func() {
		if err := capture.Close(); err != nil {
			r.logger.Warn("Failed to release audio device", logger.Error(err))
		}
		r.capture = nil
		r.collected = nil
		r.recording.Store(false)
	}()

	if err := capture.Stop(); err != nil {
		return audio.Clip{}, fmt.Errorf("failed to stop capture: %w", err)
	}

	select {
	case clip := <-collected:
		clip.Duration = time.Since(started)
		r.logger.Info("Recording stopped",
			logger.String("size", humanize.Bytes(uint64(len(clip.Data)))),
			logger.Int("chunks", clip.Chunks),
			logger.Duration("duration", clip.Duration))
		return clip, nil
	case <-ctx.Done():
		return audio.Clip{}, ctx.Err()
	}
}

// IsRecording reports whether a capture is active
func (r *Recorder) IsRecording() bool {
	return r.recording.Load()
}
