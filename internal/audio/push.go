package audio

import (
	"context"
	"sync"

	"github.com/yegors/co-translate/pkg/logger"
)

// PushDevice receives chunks from a presentation layer, typically the browser's
// MediaRecorder posting each dataavailable blob to the API.
type PushDevice struct {
	mimeType   string
	bufferSize int
	logger     *logger.Logger

	mu      sync.Mutex
	current *pushCapture
}

// NewPushDevice creates a push device producing clips of the given MIME type
func NewPushDevice(mimeType string, bufferSize int, log *logger.Logger) *PushDevice {
	if mimeType == "" {
		mimeType = DefaultMimeType
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &PushDevice{
		mimeType:   mimeType,
		bufferSize: bufferSize,
		logger:     log.Named("push-device"),
	}
}

// Name implements Device
func (d *PushDevice) Name() string { return "browser" }

// Open implements Device
func (d *PushDevice) Open(ctx context.Context) (Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current != nil {
		return nil, ErrCaptureActive
	}

	c := &pushCapture{
		device:   d,
		mimeType: d.mimeType,
		ch:       make(chan []byte, d.bufferSize),
	}
	d.current = c
	d.logger.Debug("Capture opened")
	return c, nil
}

// Push hands one chunk to the open capture. The chunk is copied.
func (d *PushDevice) Push(chunk []byte) error {
	d.mu.Lock()
	c := d.current
	d.mu.Unlock()

	if c == nil {
		return ErrNoCapture
	}
	return c.push(chunk)
}

func (d *PushDevice) detach(c *pushCapture) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == c {
		d.current = nil
		d.logger.Debug("Capture closed")
	}
}

type pushCapture struct {
	device   *PushDevice
	mimeType string
	ch       chan []byte

	mu     sync.Mutex
	closed bool
}

func (c *pushCapture) push(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrNoCapture
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	c.ch <- buf
	return nil
}

func (c *pushCapture) Chunks() <-chan []byte { return c.ch }

func (c *pushCapture) MimeType() string { return c.mimeType }

func (c *pushCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

func (c *pushCapture) Close() error {
	_ = c.Stop()
	c.device.detach(c)
	return nil
}
