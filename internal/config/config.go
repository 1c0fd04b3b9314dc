package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/yegors/co-translate/internal/languages"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server        ServerConfig        `toml:"server"`        // HTTP server settings
	Logging       LoggingConfig       `toml:"logging"`       // Application logging settings
	Storage       StorageConfig       `toml:"storage"`       // Settings store (credential persistence)
	Credentials   CredentialsConfig   `toml:"credentials"`   // Bearer token for the hosted speech/LLM APIs
	Transcription TranscriptionConfig `toml:"transcription"` // Speech-to-text endpoint settings
	Translation   TranslationConfig   `toml:"translation"`   // Text-generation endpoint settings
	Recorder      RecorderConfig      `toml:"recorder"`      // Audio capture device settings
	Synthesis     SynthesisConfig     `toml:"synthesis"`     // Speech synthesis engine settings
	Languages     LanguagesConfig     `toml:"languages"`     // Default language pair
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // Primary HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, the stop endpoint waits for the whole pipeline)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
	AdditionalPorts    []int    `toml:"additional_ports"`      // Additional HTTP ports to listen on (useful for multiple interfaces)
	StaticFilesDir     string   `toml:"static_files_dir"`      // Directory holding the presentation shells (e.g., "www")
	RateLimitPerMinute int      `toml:"rate_limit_per_minute"` // Requests per minute per client IP on recording/translate routes (0 = default 600)
	MaxChunkKB         int      `toml:"max_chunk_kb"`          // Maximum accepted size of one pushed audio chunk in kilobytes
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains settings store configuration
type StorageConfig struct {
	Type        string `toml:"type"`         // "sqlite" (default) or "postgres"
	SQLitePath  string `toml:"sqlite_path"`  // Path of the SQLite database file
	PostgresDSN string `toml:"postgres_dsn"` // Connection string when type is postgres
}

// CredentialsConfig holds the default bearer token. The token is stored in the
// settings store on first use and read back from there afterwards.
type CredentialsConfig struct {
	APIKey string `toml:"api_key"` // Default token (overridden by GROQ_API_KEY)
}

// TranscriptionConfig contains settings for the speech-to-text endpoint
type TranscriptionConfig struct {
	BaseURL        string `toml:"base_url"`        // API base URL (default https://api.groq.com/openai/v1)
	Path           string `toml:"path"`            // Transcription path (default /audio/transcriptions)
	Model          string `toml:"model"`           // Model identifier (default whisper-large-v3-turbo)
	ResponseFormat string `toml:"response_format"` // Response format (default verbose_json)
	TimeoutSeconds int    `toml:"timeout_seconds"` // HTTP timeout in seconds (default 120)
}

// TranslationConfig contains settings for the text-generation endpoint
type TranslationConfig struct {
	Provider         string  `toml:"provider"`           // "openai" (any OpenAI-compatible API, default) or "gemini"
	BaseURL          string  `toml:"base_url"`           // OpenAI-compatible base URL (default https://api.groq.com/openai/v1)
	Model            string  `toml:"model"`              // Model identifier (default llama-3.3-70b-versatile)
	Temperature      float64 `toml:"temperature"`        // Sampling temperature (default 0.3)
	MaxTokens        int     `toml:"max_tokens"`         // Maximum generated tokens (default 1000)
	TimeoutSeconds   int     `toml:"timeout_seconds"`    // HTTP timeout in seconds (default 120)
	GeminiAPIKey     string  `toml:"gemini_api_key"`     // API key for the gemini provider (overridden by GEMINI_API_KEY)
	SkipSameLanguage bool    `toml:"skip_same_language"` // Return the transcript untouched when source == target
}

// RecorderConfig contains audio capture settings
type RecorderConfig struct {
	Device               string `toml:"device"`                  // "browser" (chunks pushed over HTTP, default) or "ffmpeg"
	MimeType             string `toml:"mime_type"`               // MIME type of the captured clip (default audio/webm)
	ChunkBufferSize      int    `toml:"chunk_buffer_size"`       // Capacity of the chunk stream channel
	FFmpegPath           string `toml:"ffmpeg_path"`             // Path to FFmpeg executable
	FFmpegInputFormat    string `toml:"ffmpeg_input_format"`     // Capture backend (e.g., "pulse", "alsa", "avfoundation")
	FFmpegInput          string `toml:"ffmpeg_input"`            // Capture device name (e.g., "default")
	FFmpegSampleRate     int    `toml:"ffmpeg_sample_rate"`      // Audio sample rate in Hz
	FFmpegChannels       int    `toml:"ffmpeg_channels"`         // Number of audio channels
	FFmpegChunkBytes     int    `toml:"ffmpeg_chunk_bytes"`      // Read size for stdout chunks
	FFmpegStartupGraceMs int    `toml:"ffmpeg_startup_grace_ms"` // Time ffmpeg must survive before the device counts as open
	FFmpegStopTimeoutMs  int    `toml:"ffmpeg_stop_timeout_ms"`  // Time allowed for a graceful quit before the process is killed
}

// SynthesisConfig contains speech synthesis settings
type SynthesisConfig struct {
	Engine   string   `toml:"engine"`    // "browser" (default), "command" or "none"
	Command  string   `toml:"command"`   // TTS binary for the command engine (default espeak-ng)
	Args     []string `toml:"args"`      // Arguments; {locale} and {text} are substituted
	AutoPlay bool     `toml:"auto_play"` // Start playback when a pipeline run completes
}

// LanguagesConfig contains the default language pair
type LanguagesConfig struct {
	DefaultSource string `toml:"default_source"` // Default source language code (default "en")
	DefaultTarget string `toml:"default_target"` // Default target language code (default "es")
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// ApplyEnv overlays secrets and a few deployment knobs from the environment.
// It is called after .env files have been loaded.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("GROQ_API_KEY")); v != "" {
		c.Credentials.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		c.Translation.GeminiAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" && c.Storage.Type == "postgres" {
		c.Storage.PostgresDSN = v
	}
}

// Validate validates the configuration and fills defaults
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	// Validate logging config
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// Valid log level
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	switch c.Logging.Format {
	case "json", "console":
		// Valid log format
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.ValidateTranscription(); err != nil {
		return err
	}
	if err := c.ValidateTranslation(); err != nil {
		return err
	}
	if err := c.ValidateRecorder(); err != nil {
		return err
	}
	if err := c.ValidateSynthesis(); err != nil {
		return err
	}

	// Validate default language pair
	if c.Languages.DefaultSource == "" {
		c.Languages.DefaultSource = "en"
	}
	if c.Languages.DefaultTarget == "" {
		c.Languages.DefaultTarget = "es"
	}
	if err := languages.ValidatePair(c.Languages.DefaultSource, c.Languages.DefaultTarget); err != nil {
		return fmt.Errorf("invalid default languages: %w", err)
	}

	if c.Credentials.APIKey == "" {
		fmt.Printf("WARN: No API key configured - a key must already be stored in the settings store\n")
	}

	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	portsSeen := map[int]bool{c.Server.Port: true}
	for _, p := range c.Server.AdditionalPorts {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("invalid additional server port: %d", p)
		}
		if portsSeen[p] {
			return fmt.Errorf("duplicate port configured: %d (primary or additional)", p)
		}
		portsSeen[p] = true
	}

	if c.Server.StaticFilesDir == "" {
		c.Server.StaticFilesDir = "www"
	}
	if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
		return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
	}

	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("invalid rate_limit_per_minute: %d (must be >= 0)", c.Server.RateLimitPerMinute)
	}
	if c.Server.RateLimitPerMinute == 0 {
		c.Server.RateLimitPerMinute = 600
	}

	if c.Server.MaxChunkKB < 0 {
		return fmt.Errorf("invalid max_chunk_kb: %d (must be >= 0)", c.Server.MaxChunkKB)
	}
	if c.Server.MaxChunkKB == 0 {
		c.Server.MaxChunkKB = 1024
	}

	return nil
}

func (c *Config) validateStorage() error {
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			c.Storage.SQLitePath = "data/co-translate.db"
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres_dsn is required when storage type is postgres")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be 'sqlite' or 'postgres')", c.Storage.Type)
	}

	return nil
}

// ValidateTranscription validates the speech-to-text configuration
func (c *Config) ValidateTranscription() error {
	t := &c.Transcription
	if t.BaseURL == "" {
		t.BaseURL = "https://api.groq.com/openai/v1"
	}
	t.BaseURL = strings.TrimRight(t.BaseURL, "/")
	if t.Path == "" {
		t.Path = "/audio/transcriptions"
	}
	if !strings.HasPrefix(t.Path, "/") {
		t.Path = "/" + t.Path
	}
	if t.Model == "" {
		t.Model = "whisper-large-v3-turbo"
	}
	if t.ResponseFormat == "" {
		t.ResponseFormat = "verbose_json"
	}
	switch t.ResponseFormat {
	case "json", "verbose_json":
	default:
		return fmt.Errorf("invalid transcription response_format: %s (must be 'json' or 'verbose_json')", t.ResponseFormat)
	}
	if t.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid transcription timeout_seconds: %d", t.TimeoutSeconds)
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = 120
	}
	return nil
}

// ValidateTranslation validates the text-generation configuration
func (c *Config) ValidateTranslation() error {
	t := &c.Translation
	if t.Provider == "" {
		t.Provider = "openai"
	}

	switch t.Provider {
	case "openai":
		if t.BaseURL == "" {
			t.BaseURL = "https://api.groq.com/openai/v1"
		}
		t.BaseURL = strings.TrimRight(t.BaseURL, "/")
		if t.Model == "" {
			t.Model = "llama-3.3-70b-versatile"
		}
	case "gemini":
		if t.Model == "" {
			t.Model = "gemini-2.0-flash"
		}
		if t.GeminiAPIKey == "" {
			return fmt.Errorf("gemini_api_key is required when translation provider is gemini")
		}
	default:
		return fmt.Errorf("invalid translation provider: %s (must be 'openai' or 'gemini')", t.Provider)
	}

	if t.Temperature == 0 {
		t.Temperature = 0.3
	}
	if t.Temperature < 0 || t.Temperature > 2 {
		return fmt.Errorf("translation temperature must be between 0 and 2: %f", t.Temperature)
	}
	if t.MaxTokens == 0 {
		t.MaxTokens = 1000
	}
	if t.MaxTokens < 0 {
		return fmt.Errorf("translation max_tokens must be positive: %d", t.MaxTokens)
	}
	if t.TimeoutSeconds < 0 {
		return fmt.Errorf("invalid translation timeout_seconds: %d", t.TimeoutSeconds)
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = 120
	}
	return nil
}

// ValidateRecorder validates the capture device configuration
func (c *Config) ValidateRecorder() error {
	r := &c.Recorder
	if r.Device == "" {
		r.Device = "browser"
	}
	if r.MimeType == "" {
		r.MimeType = "audio/webm"
	}
	if r.ChunkBufferSize <= 0 {
		r.ChunkBufferSize = 64
	}

	switch r.Device {
	case "browser":
	case "ffmpeg":
		if r.FFmpegPath == "" {
			r.FFmpegPath = "ffmpeg"
		}
		if r.FFmpegInputFormat == "" {
			return fmt.Errorf("ffmpeg_input_format is required when recorder device is ffmpeg")
		}
		if r.FFmpegInput == "" {
			r.FFmpegInput = "default"
		}
		if r.FFmpegSampleRate == 0 {
			r.FFmpegSampleRate = 16000
		}
		if r.FFmpegChannels == 0 {
			r.FFmpegChannels = 1
		}
		if r.FFmpegChunkBytes == 0 {
			r.FFmpegChunkBytes = 4096
		}
		if r.FFmpegStartupGraceMs == 0 {
			r.FFmpegStartupGraceMs = 300
		}
		if r.FFmpegStopTimeoutMs == 0 {
			r.FFmpegStopTimeoutMs = 3000
		}
		if r.FFmpegSampleRate < 0 || r.FFmpegChannels < 0 || r.FFmpegChunkBytes < 0 {
			return fmt.Errorf("ffmpeg sample rate, channels and chunk bytes must be positive")
		}
		// The clip is Opus in a WebM container regardless of the configured mime type
		r.MimeType = "audio/webm"
	default:
		return fmt.Errorf("invalid recorder device: %s (must be 'browser' or 'ffmpeg')", r.Device)
	}
	return nil
}

// ValidateSynthesis validates the speech engine configuration
func (c *Config) ValidateSynthesis() error {
	s := &c.Synthesis
	if s.Engine == "" {
		s.Engine = "browser"
	}

	switch s.Engine {
	case "browser", "none":
	case "command":
		if s.Command == "" {
			s.Command = "espeak-ng"
		}
		if len(s.Args) == 0 {
			s.Args = []string{"-v", "{locale}", "{text}"}
		}
		hasText := false
		for _, a := range s.Args {
			if strings.Contains(a, "{text}") {
				hasText = true
			}
		}
		if !hasText {
			return fmt.Errorf("synthesis args must contain a {text} placeholder")
		}
	default:
		return fmt.Errorf("invalid synthesis engine: %s (must be 'browser', 'command' or 'none')", s.Engine)
	}
	return nil
}

// GetListenPorts returns the primary port followed by any additional ports
func (c *Config) GetListenPorts() []int {
	ports := []int{c.Server.Port}
	if len(c.Server.AdditionalPorts) > 0 {
		ports = append(ports, c.Server.AdditionalPorts...)
	}
	return ports
}
