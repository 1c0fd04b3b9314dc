package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func minimalConfig(t *testing.T) *Config {
	t.Helper()
	return &Config{Server: ServerConfig{Port: 8080, StaticFilesDir: t.TempDir()}}
}

// TestValidateFillsDefaults checks the upstream defaults used when the file leaves them out.
func TestValidateFillsDefaults(t *testing.T) {
	cfg := minimalConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Transcription.BaseURL != "https://api.groq.com/openai/v1" {
		t.Fatalf("transcription base_url = %q", cfg.Transcription.BaseURL)
	}
	if cfg.Transcription.Model != "whisper-large-v3-turbo" || cfg.Transcription.ResponseFormat != "verbose_json" {
		t.Fatalf("transcription model/format = %q/%q", cfg.Transcription.Model, cfg.Transcription.ResponseFormat)
	}
	if cfg.Transcription.TimeoutSeconds != 120 || cfg.Translation.TimeoutSeconds != 120 {
		t.Fatalf("timeouts = %d/%d, want 120", cfg.Transcription.TimeoutSeconds, cfg.Translation.TimeoutSeconds)
	}
	if cfg.Translation.Model != "llama-3.3-70b-versatile" {
		t.Fatalf("translation model = %q", cfg.Translation.Model)
	}
	if cfg.Translation.Temperature != 0.3 || cfg.Translation.MaxTokens != 1000 {
		t.Fatalf("translation temperature/max_tokens = %v/%d", cfg.Translation.Temperature, cfg.Translation.MaxTokens)
	}
	if cfg.Recorder.Device != "browser" || cfg.Recorder.MimeType != "audio/webm" {
		t.Fatalf("recorder = %q/%q", cfg.Recorder.Device, cfg.Recorder.MimeType)
	}
	if cfg.Synthesis.Engine != "browser" {
		t.Fatalf("synthesis engine = %q", cfg.Synthesis.Engine)
	}
	if cfg.Languages.DefaultSource != "en" || cfg.Languages.DefaultTarget != "es" {
		t.Fatalf("languages = %q/%q", cfg.Languages.DefaultSource, cfg.Languages.DefaultTarget)
	}
	if cfg.Storage.Type != "sqlite" || cfg.Storage.SQLitePath == "" {
		t.Fatalf("storage = %q/%q", cfg.Storage.Type, cfg.Storage.SQLitePath)
	}
}

// TestValidateRejectsBadSections covers the per-section error paths.
func TestValidateRejectsBadSections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"duplicate port", func(c *Config) { c.Server.AdditionalPorts = []int{8080} }, "duplicate port"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "invalid log level"},
		{"storage", func(c *Config) { c.Storage.Type = "mongo" }, "invalid storage type"},
		{"postgres dsn", func(c *Config) { c.Storage.Type = "postgres" }, "postgres_dsn"},
		{"provider", func(c *Config) { c.Translation.Provider = "cohere" }, "invalid translation provider"},
		{"gemini key", func(c *Config) { c.Translation.Provider = "gemini" }, "gemini_api_key"},
		{"device", func(c *Config) { c.Recorder.Device = "tape" }, "invalid recorder device"},
		{"ffmpeg format", func(c *Config) { c.Recorder.Device = "ffmpeg" }, "ffmpeg_input_format"},
		{"engine", func(c *Config) { c.Synthesis.Engine = "robot" }, "invalid synthesis engine"},
		{"args", func(c *Config) {
			c.Synthesis.Engine = "command"
			c.Synthesis.Args = []string{"-v", "{locale}"}
		}, "{text}"},
		{"languages", func(c *Config) { c.Languages.DefaultTarget = "nl" }, "invalid default languages"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

// TestLoadDecodesFile reads a TOML file and applies environment overrides.
func TestLoadDecodesFile(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9000
additional_ports = [9001]

[credentials]
api_key = "from-file"

[synthesis]
engine = "command"
command = "say"
args = ["{text}"]
`)

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback() error = %v", err)
	}
	if cfg.Server.Port != 9000 || len(cfg.GetListenPorts()) != 2 {
		t.Fatalf("ports = %v", cfg.GetListenPorts())
	}
	if cfg.Synthesis.Command != "say" {
		t.Fatalf("command = %q", cfg.Synthesis.Command)
	}

	t.Setenv("GROQ_API_KEY", "from-env")
	cfg.ApplyEnv()
	if cfg.Credentials.APIKey != "from-env" {
		t.Fatalf("api key = %q, want from-env", cfg.Credentials.APIKey)
	}
}

// TestLoadWithFallbackMissing reports every searched location.
func TestLoadWithFallbackMissing(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := LoadWithFallback("nope.toml")
	if err == nil || !strings.Contains(err.Error(), "nope.toml") {
		t.Fatalf("LoadWithFallback() error = %v", err)
	}
}
