package audio

import (
	"mime"
	"strings"
	"time"

	"github.com/yegors/co-translate/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// DefaultMimeType is what browsers' MediaRecorder produces by default
const DefaultMimeType = "audio/webm"

// Clip is one finished recording: the concatenated chunks in arrival order
type Clip struct {
	Data     []byte
	MimeType string
	Chunks   int
	Duration time.Duration
}

// Empty reports whether nothing was captured
func (c Clip) Empty() bool {
	return len(c.Data) == 0
}

var extensions = map[string]string{
	"audio/webm":  "webm",
	"audio/ogg":   "ogg",
	"audio/wav":   "wav",
	"audio/x-wav": "wav",
	"audio/mpeg":  "mp3",
	"audio/mp4":   "m4a",
	"audio/flac":  "flac",
}

// Filename returns the upload filename for the clip, e.g. "audio.webm"
func (c Clip) Filename() string {
	mediaType := c.MimeType
	if parsed, _, err := mime.ParseMediaType(c.MimeType); err == nil {
		mediaType = parsed
	}
	if ext, ok := extensions[strings.ToLower(mediaType)]; ok {
		return "audio." + ext
	}
	return "audio.webm"
}
