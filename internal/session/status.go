package session

// Status is the pipeline state shown to the user
type Status string

const (
	StatusIdle         Status = "idle"
	StatusRecording    Status = "recording"
	StatusTranscribing Status = "transcribing"
	StatusTranslating  Status = "translating"
	StatusSynthesizing Status = "synthesizing"
	StatusComplete     Status = "complete"
	StatusError        Status = "error"
)

var progress = map[Status]int{
	StatusIdle:         0,
	StatusRecording:    0,
	StatusTranscribing: 25,
	StatusTranslating:  50,
	StatusSynthesizing: 75,
	StatusComplete:     100,
}

var descriptions = map[Status]string{
	StatusIdle:         "Ready to translate",
	StatusRecording:    "Recording your voice...",
	StatusTranscribing: "Converting speech to text...",
	StatusTranslating:  "Translating text...",
	StatusSynthesizing: "Generating speech...",
	StatusComplete:     "Translation complete!",
	StatusError:        "Error occurred",
}

// Progress returns the fixed display progress for the status. Error has no
// value of its own; the failing stage's value is kept instead.
func (s Status) Progress() int {
	return progress[s]
}

// Description returns the step text shown next to the progress bar
func (s Status) Description() string {
	return descriptions[s]
}

// Active reports whether a recording or pipeline run is in progress
func (s Status) Active() bool {
	switch s {
	case StatusRecording, StatusTranscribing, StatusTranslating, StatusSynthesizing:
		return true
	}
	return false
}

// isValidTransition checks the forward-only state machine
func isValidTransition(from, to Status) bool {
	switch to {
	case StatusRecording:
		return from == StatusIdle || from == StatusComplete || from == StatusError
	case StatusTranscribing:
		return from == StatusRecording
	case StatusTranslating:
		return from == StatusTranscribing
	case StatusSynthesizing:
		return from == StatusTranslating
	case StatusComplete:
		return from == StatusSynthesizing
	case StatusError:
		return from.Active()
	case StatusIdle:
		return from == StatusComplete || from == StatusError || from == StatusIdle
	}
	return false
}
