package audio

import (
	"context"
	"errors"
)

var (
	// ErrCaptureActive is returned when a device is opened twice
	ErrCaptureActive = errors.New("capture already active")
	// ErrNoCapture is returned when chunks are pushed with no open capture
	ErrNoCapture = errors.New("no active capture")
)

// Device is an audio input that can be opened for one capture at a time
type Device interface {
	Name() string
	Open(ctx context.Context) (Capture, error)
}

// Capture is a single, non-restartable stream of encoded audio chunks.
// Chunks is closed once the capture has finished after Stop.
type Capture interface {
	Chunks() <-chan []byte
	MimeType() string
	// Stop asks the device to flush and finish the stream
	Stop() error
	// Close releases the device; safe to call more than once
	Close() error
}
