package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yegors/co-translate/internal/ai"
	"github.com/yegors/co-translate/internal/ai/gemini"
	"github.com/yegors/co-translate/internal/ai/openai"
	"github.com/yegors/co-translate/internal/api"
	"github.com/yegors/co-translate/internal/audio"
	"github.com/yegors/co-translate/internal/config"
	"github.com/yegors/co-translate/internal/credential"
	"github.com/yegors/co-translate/internal/recorder"
	"github.com/yegors/co-translate/internal/session"
	"github.com/yegors/co-translate/internal/storage/postgres"
	"github.com/yegors/co-translate/internal/storage/sqlite"
	"github.com/yegors/co-translate/internal/synthesis"
	"github.com/yegors/co-translate/internal/transcription"
	"github.com/yegors/co-translate/internal/translation"
	"github.com/yegors/co-translate/internal/websocket"
	"github.com/yegors/co-translate/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

// browserSpeakTimeout bounds how long one browser utterance may take
const browserSpeakTimeout = 2 * time.Minute

// settingsStore is the credential store plus its lifecycle
type settingsStore interface {
	credential.Store
	io.Closer
}

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	envFile := flag.String("env", ".env", "Path to an optional .env file with API keys")
	flag.Parse()

	// Secrets usually live in .env; a missing file is fine
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting Co-Translate server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Settings store backs the persisted API credential
	store, err := openSettingsStore(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to open settings store", logger.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	credentials := credential.NewProvider(store, cfg.Credentials.APIKey, log)

	// Create WebSocket server; it starts once its handlers are set
	wsServer := websocket.NewServer(log)

	// Recording device
	device, sink := newRecordingDevice(cfg, log)
	rec := recorder.New(device, log)

	// Pipeline stages
	transcriber := transcription.NewClient(transcription.Config{
		BaseURL:        cfg.Transcription.BaseURL,
		Path:           cfg.Transcription.Path,
		Model:          cfg.Transcription.Model,
		ResponseFormat: cfg.Transcription.ResponseFormat,
		Timeout:        time.Duration(cfg.Transcription.TimeoutSeconds) * time.Second,
	}, credentials, log)

	provider, err := newChatProvider(ctx, cfg, credentials, log)
	if err != nil {
		log.Error("Failed to create translation provider", logger.Error(err))
		os.Exit(1)
	}
	translator := translation.NewTranslator(provider, translation.Config{
		Model:            cfg.Translation.Model,
		Temperature:      cfg.Translation.Temperature,
		MaxTokens:        cfg.Translation.MaxTokens,
		SkipSameLanguage: cfg.Translation.SkipSameLanguage,
	}, log)

	speaker := synthesis.New(newSpeechEngine(cfg, wsServer, log), log)

	// Session
	sessionManager, err := session.NewManager(rec, sink, transcriber, translator, speaker, session.Options{
		SourceLanguage: cfg.Languages.DefaultSource,
		TargetLanguage: cfg.Languages.DefaultTarget,
		AutoPlay:       cfg.Synthesis.AutoPlay,
	}, log)
	if err != nil {
		log.Error("Failed to create session", logger.Error(err))
		os.Exit(1)
	}
	api.NewBroadcaster(wsServer, sessionManager, log)

	// Start WebSocket server
	go wsServer.Run(ctx)

	// Create API router
	router := api.NewRouter(sessionManager, translator, cfg, log, wsServer)
	handler := router.Routes()

	// --- Setup for multiple HTTP servers ---
	var servers []*http.Server
	allPorts := cfg.GetListenPorts()

	log.Info("Configured listener ports", logger.Any("ports", allPorts))

	// Start a server for each configured port
	for _, port := range allPorts {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, port)
		server := &http.Server{
			Addr:         addr,
			Handler:      handler, // All servers use the same main router
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
		}
		servers = append(servers, server)

		go func(s *http.Server) {
			log.Info("Starting HTTP server", logger.String("addr", s.Addr))
			if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("HTTP server error on startup", logger.String("addr", s.Addr), logger.Error(err))
			}
		}(server)
	}

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	// Release the device and silence playback before the listeners go away
	speaker.Stop()
	if rec.IsRecording() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if _, err := rec.Stop(stopCtx); err != nil {
			log.Warn("Failed to stop active recording", logger.Error(err))
		}
		stopCancel()
	}

	// Shutdown all HTTP servers
	log.Info("Shutting down HTTP servers...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func(srv *http.Server) {
			defer wg.Done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error("HTTP server shutdown error", logger.String("addr", srv.Addr), logger.Error(err))
			} else {
				log.Info("HTTP server shutdown complete", logger.String("addr", srv.Addr))
			}
		}(s)
	}
	wg.Wait()

	// Stops the WebSocket hub
	cancel()

	log.Info("Server fully stopped")
}

func openSettingsStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (settingsStore, error) {
	switch cfg.Storage.Type {
	case "postgres":
		log.Info("Using PostgreSQL settings store")
		return postgres.NewSettingsStorage(ctx, cfg.Storage.PostgresDSN, log)
	default:
		log.Info("Using SQLite settings store", logger.String("path", cfg.Storage.SQLitePath))
		return sqlite.NewSettingsStorage(cfg.Storage.SQLitePath, log)
	}
}

// newRecordingDevice returns the device and, for the browser device, the sink
// that accepts pushed chunks
func newRecordingDevice(cfg *config.Config, log *logger.Logger) (audio.Device, session.ChunkSink) {
	rc := cfg.Recorder
	if rc.Device == "ffmpeg" {
		log.Info("Using local ffmpeg capture",
			logger.String("input_format", rc.FFmpegInputFormat),
			logger.String("input", rc.FFmpegInput))
		return audio.NewFFmpegDevice(audio.FFmpegConfig{
			FFmpegPath:   rc.FFmpegPath,
			InputFormat:  rc.FFmpegInputFormat,
			Input:        rc.FFmpegInput,
			SampleRate:   rc.FFmpegSampleRate,
			Channels:     rc.FFmpegChannels,
			ChunkBytes:   rc.FFmpegChunkBytes,
			BufferSize:   rc.ChunkBufferSize,
			StartupGrace: time.Duration(rc.FFmpegStartupGraceMs) * time.Millisecond,
			StopTimeout:  time.Duration(rc.FFmpegStopTimeoutMs) * time.Millisecond,
		}, log), nil
	}

	log.Info("Using browser capture", logger.String("mime_type", rc.MimeType))
	push := audio.NewPushDevice(rc.MimeType, rc.ChunkBufferSize, log)
	return push, push
}

func newChatProvider(ctx context.Context, cfg *config.Config, credentials ai.CredentialSource, log *logger.Logger) (ai.ChatProvider, error) {
	tc := cfg.Translation
	if tc.Provider == "gemini" {
		return gemini.NewClient(ctx, tc.GeminiAPIKey, tc.BaseURL, log)
	}
	return openai.NewClient(credentials, tc.BaseURL, time.Duration(tc.TimeoutSeconds)*time.Second, log), nil
}

// newSpeechEngine returns nil when synthesis is disabled
func newSpeechEngine(cfg *config.Config, wsServer *websocket.Server, log *logger.Logger) synthesis.Engine {
	switch cfg.Synthesis.Engine {
	case "command":
		return synthesis.NewCommandEngine(cfg.Synthesis.Command, cfg.Synthesis.Args, log)
	case "browser":
		engine := synthesis.NewBrowserEngine(wsServer, browserSpeakTimeout, log)
		wsServer.SetMessageHandler(engine)
		return engine
	default:
		return nil
	}
}
