package synthesis

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/yegors/co-translate/pkg/logger"
)

// CommandEngine speaks through a local TTS binary such as espeak-ng.
// {locale} and {text} in the arguments are substituted per utterance.
type CommandEngine struct {
	command string
	args    []string
	logger  *logger.Logger
}

// NewCommandEngine creates a command engine
func NewCommandEngine(command string, args []string, log *logger.Logger) *CommandEngine {
	return &CommandEngine{
		command: command,
		args:    args,
		logger:  log.Named("command-tts").With(logger.String("command", command)),
	}
}

// Name implements Engine
func (e *CommandEngine) Name() string { return "command" }

// Ready implements Engine; the binary must be on PATH
func (e *CommandEngine) Ready() error {
	if _, err := exec.LookPath(e.command); err != nil {
		return fmt.Errorf("%s not found: %w", e.command, err)
	}
	return nil
}

// Args returns the command arguments for one utterance
func (e *CommandEngine) Args(text, locale string) []string {
	r := strings.NewReplacer("{locale}", locale, "{text}", text)
	out := make([]string, len(e.args))
	for i, a := range e.args {
		out[i] = r.Replace(a)
	}
	return out
}

// Speak implements Engine; the process is killed when ctx is cancelled
func (e *CommandEngine) Speak(ctx context.Context, text, locale string) error {
	cmd := exec.CommandContext(ctx, e.command, e.Args(text, locale)...)
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return fmt.Errorf("%s failed: %w: %s", e.command, err, strings.TrimSpace(string(out)))
	}
	return nil
}
