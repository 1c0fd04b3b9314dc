package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/yegors/co-translate/pkg/logger"
)

// FFmpegConfig contains settings for local microphone capture through ffmpeg
type FFmpegConfig struct {
	FFmpegPath   string
	InputFormat  string // e.g. pulse, alsa, avfoundation, dshow
	Input        string // e.g. default, :0
	SampleRate   int
	Channels     int
	ChunkBytes   int
	BufferSize   int
	StartupGrace time.Duration
	StopTimeout  time.Duration
}

// FFmpegDevice captures a local input with an ffmpeg child process that encodes
// Opus in a WebM container to stdout.
type FFmpegDevice struct {
	config FFmpegConfig
	logger *logger.Logger
}

// NewFFmpegDevice creates an ffmpeg-backed capture device
func NewFFmpegDevice(config FFmpegConfig, log *logger.Logger) *FFmpegDevice {
	if config.ChunkBytes <= 0 {
		config.ChunkBytes = 4096
	}
	if config.BufferSize <= 0 {
		config.BufferSize = 64
	}
	return &FFmpegDevice{
		config: config,
		logger: log.Named("ffmpeg-device").With(
			String("input_format", config.InputFormat),
			String("input", config.Input)),
	}
}

// Name implements Device
func (d *FFmpegDevice) Name() string { return "ffmpeg" }

// Args returns the ffmpeg command line arguments used for a capture
func (d *FFmpegDevice) Args() []string {
	return []string{
		"-loglevel", "error", // Minimal logging
		"-nostats",
		"-f", d.config.InputFormat, // Capture backend
		"-i", d.config.Input, // Capture device
		"-ac", fmt.Sprintf("%d", d.config.Channels), // Channels
		"-ar", fmt.Sprintf("%d", d.config.SampleRate), // Sample rate
		"-c:a", "libopus", // Same codec browsers record with
		"-f", "webm", // Container
		"-flush_packets", "1", // Flush packets immediately
		"pipe:1", // Output to stdout
	}
}

// Open starts ffmpeg and waits out the startup grace period. A process that fails
// to start or exits during the grace period is reported as an error.
func (d *FFmpegDevice) Open(ctx context.Context) (Capture, error) {
	// The capture outlives the request that opened it
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	cmd := exec.CommandContext(procCtx, d.config.FFmpegPath, d.Args()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr

	d.logger.Debug("Starting ffmpeg process", String("path", d.config.FFmpegPath))

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	c := &ffmpegCapture{
		cmd:         cmd,
		stdin:       stdin,
		stdout:      stdout,
		stderr:      stderr,
		ctx:         procCtx,
		cancel:      cancel,
		ch:          make(chan []byte, d.config.BufferSize),
		exited:      make(chan struct{}),
		chunkBytes:  d.config.ChunkBytes,
		stopTimeout: d.config.StopTimeout,
		logger:      d.logger,
	}
	go c.processOutput()

	if d.config.StartupGrace > 0 {
		timer := time.NewTimer(d.config.StartupGrace)
		defer timer.Stop()

		select {
		case <-c.exited:
			return nil, fmt.Errorf("ffmpeg exited during startup: %s", c.exitReason())
		case <-ctx.Done():
			_ = c.Close()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	d.logger.Info("FFmpeg capture started")
	return c, nil
}

type ffmpegCapture struct {
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	stdout      io.ReadCloser
	stderr      *bytes.Buffer
	ctx         context.Context
	cancel      context.CancelFunc
	ch          chan []byte
	exited      chan struct{}
	exitErr     error
	chunkBytes  int
	stopTimeout time.Duration
	logger      *logger.Logger

	stopOnce  sync.Once
	closeOnce sync.Once
}

// processOutput copies stdout into the chunk stream, then reaps the process
func (c *ffmpegCapture) processOutput() {
	bytesProcessed := 0
	for {
		buffer := make([]byte, c.chunkBytes)
		n, err := c.stdout.Read(buffer)
		if n > 0 {
			bytesProcessed += n
			select {
			case c.ch <- buffer[:n]:
			case <-c.ctx.Done():
				// Killed with nobody draining; discard the tail
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				c.logger.Warn("Error reading from ffmpeg", Error(err))
			}
			break
		}
	}
	close(c.ch)

	// Wait only after all reads from the pipe have completed
	c.exitErr = c.cmd.Wait()
	close(c.exited)

	c.logger.Debug("FFmpeg process exited", Int("total_bytes_processed", bytesProcessed))
}

func (c *ffmpegCapture) exitReason() string {
	msg := strings.TrimSpace(c.stderr.String())
	if msg == "" && c.exitErr != nil {
		msg = c.exitErr.Error()
	}
	if msg == "" {
		msg = "no output"
	}
	return msg
}

func (c *ffmpegCapture) Chunks() <-chan []byte { return c.ch }

func (c *ffmpegCapture) MimeType() string { return DefaultMimeType }

// Stop asks ffmpeg to quit so it finalises the container, killing it if it
// does not exit within the stop timeout.
func (c *ffmpegCapture) Stop() error {
	c.stopOnce.Do(func() {
		if _, err := io.WriteString(c.stdin, "q"); err != nil {
			c.logger.Debug("Could not send quit to ffmpeg", Error(err))
		}
		_ = c.stdin.Close()

		if c.stopTimeout <= 0 {
			return
		}
		timer := time.NewTimer(c.stopTimeout)
		defer timer.Stop()

		select {
		case <-c.exited:
		case <-timer.C:
			c.logger.Warn("FFmpeg did not quit in time, killing process")
			c.cancel()
		}
	})
	return nil
}

func (c *ffmpegCapture) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.exited
	})
	return nil
}
