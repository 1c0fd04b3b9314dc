package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/yegors/co-translate/internal/audio"
	"github.com/yegors/co-translate/internal/config"
	"github.com/yegors/co-translate/internal/recorder"
	"github.com/yegors/co-translate/internal/session"
	"github.com/yegors/co-translate/internal/synthesis"
	"github.com/yegors/co-translate/internal/transcription"
	"github.com/yegors/co-translate/internal/translation"
	"github.com/yegors/co-translate/internal/websocket"
	"github.com/yegors/co-translate/pkg/logger"
)

type stubTranscriber struct {
	mu   sync.Mutex
	got  []byte
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, clip audio.Clip) (transcription.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = clip.Data
	if s.err != nil {
		return transcription.Result{}, s.err
	}
	return transcription.Result{Text: s.text, Language: "english"}, nil
}

type stubTranslator struct {
	mu  sync.Mutex
	out string
	err error
}

func (s *stubTranslator) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *stubTranslator) Translate(_ context.Context, text, source, target string) (translation.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return translation.Result{}, s.err
	}
	return translation.Result{Text: s.out}, nil
}

type testServer struct {
	srv         *httptest.Server
	transcriber *stubTranscriber
	translator  *stubTranslator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()

	static := t.TempDir()
	if err := os.MkdirAll(filepath.Join(static, "dark"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(static, "index.html"), []byte("light shell"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(static, "dark", "index.html"), []byte("dark shell"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Server.CORSAllowedOrigins = []string{"*"}
	cfg.Server.StaticFilesDir = static
	cfg.Server.RateLimitPerMinute = 1000
	cfg.Server.MaxChunkKB = 1
	cfg.Recorder.Device = "browser"
	cfg.Synthesis.Engine = "none"
	cfg.Languages.DefaultSource = "en"
	cfg.Languages.DefaultTarget = "es"

	device := audio.NewPushDevice(audio.DefaultMimeType, 16, log)
	transcriber := &stubTranscriber{text: "Hello, how are you?"}
	translator := &stubTranslator{out: "Hola, ¿cómo estás?"}

	manager, err := session.NewManager(recorder.New(device, log), device, transcriber, translator,
		synthesis.New(nil, log), session.Options{SourceLanguage: "en", TargetLanguage: "es"}, log)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ws := websocket.NewServer(log)
	ctx, cancel := context.WithCancel(context.Background())
	go ws.Run(ctx)
	NewBroadcaster(ws, manager, log)

	srv := httptest.NewServer(NewRouter(manager, translator, cfg, log, ws).Routes())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testServer{srv: srv, transcriber: transcriber, translator: translator}
}

func (ts *testServer) do(t *testing.T, method, path string, body []byte) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, out
}

// TestHealth reports the service as healthy.
func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	status, body := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["status"] != "healthy" || body["message"] != "Voice translation API is running" {
		t.Fatalf("body = %v", body)
	}
	if body["can_speak"] != false {
		t.Fatalf("can_speak = %v, want false without an engine", body["can_speak"])
	}
}

// TestRecordingRoundTrip pushes chunks and gets the translated snapshot back from stop.
func TestRecordingRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	if status, body := ts.do(t, http.MethodPost, "/api/v1/recording/start", nil); status != http.StatusOK || body["status"] != "recording" {
		t.Fatalf("start = %d %v", status, body)
	}
	for _, chunk := range []string{"ab", "cd"} {
		if status, _ := ts.do(t, http.MethodPost, "/api/v1/recording/chunks", []byte(chunk)); status != http.StatusAccepted {
			t.Fatalf("chunk status = %d, want 202", status)
		}
	}

	status, body := ts.do(t, http.MethodPost, "/api/v1/recording/stop", nil)
	if status != http.StatusOK {
		t.Fatalf("stop status = %d, body = %v", status, body)
	}
	if body["status"] != "complete" || body["progress"] != float64(100) {
		t.Fatalf("stop body = %v", body)
	}
	if body["transcript"] != "Hello, how are you?" || body["translation"] != "Hola, ¿cómo estás?" {
		t.Fatalf("texts = %v / %v", body["transcript"], body["translation"])
	}

	ts.transcriber.mu.Lock()
	got := string(ts.transcriber.got)
	ts.transcriber.mu.Unlock()
	if got != "abcd" {
		t.Fatalf("clip = %q, want abcd", got)
	}
}

// TestStopFailureReturnsSession maps a transcription failure to 502 with the failed snapshot.
func TestStopFailureReturnsSession(t *testing.T) {
	ts := newTestServer(t)
	ts.transcriber.mu.Lock()
	ts.transcriber.err = &transcription.FailedError{StatusCode: http.StatusUnauthorized, Err: errors.New("invalid key")}
	ts.transcriber.mu.Unlock()

	ts.do(t, http.MethodPost, "/api/v1/recording/start", nil)
	status, body := ts.do(t, http.MethodPost, "/api/v1/recording/stop", nil)
	if status != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", status)
	}
	if body["upstream_status"] != float64(http.StatusUnauthorized) {
		t.Fatalf("upstream_status = %v", body["upstream_status"])
	}
	snap, _ := body["session"].(map[string]any)
	if snap["status"] != "error" || snap["progress"] != float64(25) {
		t.Fatalf("session = %v", snap)
	}
}

// TestSessionConflicts covers the 409 and 400 mappings.
func TestSessionConflicts(t *testing.T) {
	ts := newTestServer(t)

	if status, _ := ts.do(t, http.MethodPost, "/api/v1/recording/stop", nil); status != http.StatusConflict {
		t.Fatalf("stop while idle = %d, want 409", status)
	}
	if status, _ := ts.do(t, http.MethodPost, "/api/v1/recording/chunks", []byte("x")); status != http.StatusConflict {
		t.Fatalf("chunk while idle = %d, want 409", status)
	}
	if status, _ := ts.do(t, http.MethodPost, "/api/v1/playback/play", nil); status != http.StatusConflict {
		t.Fatalf("play without translation = %d, want 409", status)
	}

	bad := []byte(`{"source_language":"en","target_language":"xx"}`)
	if status, _ := ts.do(t, http.MethodPut, "/api/v1/session/languages", bad); status != http.StatusBadRequest {
		t.Fatalf("unsupported language = %d, want 400", status)
	}

	ts.do(t, http.MethodPost, "/api/v1/recording/start", nil)
	if status, _ := ts.do(t, http.MethodPost, "/api/v1/recording/start", nil); status != http.StatusConflict {
		t.Fatalf("second start = %d, want 409", status)
	}
	good := []byte(`{"source_language":"fr","target_language":"de"}`)
	if status, _ := ts.do(t, http.MethodPut, "/api/v1/session/languages", good); status != http.StatusConflict {
		t.Fatalf("languages while recording = %d, want 409", status)
	}
}

// TestChunkTooLarge rejects chunks over the configured limit and fails the run.
func TestChunkTooLarge(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/v1/recording/start", nil)
	ts.do(t, http.MethodPost, "/api/v1/recording/chunks", []byte("ab"))

	status, body := ts.do(t, http.MethodPost, "/api/v1/recording/chunks", bytes.Repeat([]byte("a"), 2048))
	if status != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", status)
	}
	if body["error"] != "chunk exceeds 1.0 KiB" {
		t.Fatalf("error = %v", body["error"])
	}
	snap, _ := body["session"].(map[string]any)
	if snap["status"] != "error" || snap["is_recording"] != false {
		t.Fatalf("session = %v, want error with the device released", snap)
	}

	// Nothing is left to transcribe
	if status, _ := ts.do(t, http.MethodPost, "/api/v1/recording/stop", nil); status != http.StatusConflict {
		t.Fatalf("stop after oversize chunk = %d, want 409", status)
	}
	ts.transcriber.mu.Lock()
	defer ts.transcriber.mu.Unlock()
	if ts.transcriber.got != nil {
		t.Fatalf("transcribed %q after an aborted recording", ts.transcriber.got)
	}
}

// TestAbortRecording fails the run on request and is rejected while idle.
func TestAbortRecording(t *testing.T) {
	ts := newTestServer(t)

	if status, _ := ts.do(t, http.MethodPost, "/api/v1/recording/abort", nil); status != http.StatusConflict {
		t.Fatalf("abort while idle = %d, want 409", status)
	}

	ts.do(t, http.MethodPost, "/api/v1/recording/start", nil)
	status, body := ts.do(t, http.MethodPost, "/api/v1/recording/abort", []byte(`{"reason":"chunk upload failed"}`))
	if status != http.StatusOK {
		t.Fatalf("abort = %d %v", status, body)
	}
	if body["status"] != "error" || !strings.Contains(body["error"].(string), "chunk upload failed") {
		t.Fatalf("body = %v", body)
	}

	// The device is free for the next run
	if status, _ := ts.do(t, http.MethodPost, "/api/v1/recording/start", nil); status != http.StatusOK {
		t.Fatalf("start after abort = %d, want 200", status)
	}
}

// TestTranslateEndpoint covers validation, success and upstream failure.
func TestTranslateEndpoint(t *testing.T) {
	ts := newTestServer(t)

	if status, body := ts.do(t, http.MethodPost, "/api/v1/translate", []byte(`{"text":"  "}`)); status != http.StatusBadRequest {
		t.Fatalf("empty text = %d %v", status, body)
	}

	status, body := ts.do(t, http.MethodPost, "/api/v1/translate", []byte(`{"text":"Hello, how are you?"}`))
	if status != http.StatusOK {
		t.Fatalf("status = %d, body = %v", status, body)
	}
	if body["translated_text"] != "Hola, ¿cómo estás?" || body["source_language"] != "en" || body["target_language"] != "es" || body["success"] != true {
		t.Fatalf("body = %v", body)
	}

	ts.translator.fail(&translation.FailedError{StatusCode: http.StatusTooManyRequests, Err: errors.New("rate limited")})
	status, body = ts.do(t, http.MethodPost, "/api/v1/translate", []byte(`{"text":"Hello"}`))
	if status != http.StatusBadGateway || body["upstream_status"] != float64(http.StatusTooManyRequests) {
		t.Fatalf("failure = %d %v", status, body)
	}
	if body["original_text"] != "Hello" {
		t.Fatalf("original_text = %v", body["original_text"])
	}
}

// TestStaticShells serves both shells and refuses paths outside the directory.
func TestStaticShells(t *testing.T) {
	ts := newTestServer(t)

	for path, want := range map[string]string{"/": "light shell", "/dark/": "dark shell"} {
		resp, err := http.Get(ts.srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK || !strings.Contains(buf.String(), want) {
			t.Fatalf("GET %s = %d %q", path, resp.StatusCode, buf.String())
		}
		if cc := resp.Header.Get("Cache-Control"); !strings.Contains(cc, "no-cache") {
			t.Fatalf("Cache-Control = %q", cc)
		}
	}

	resp, err := http.Get(ts.srv.URL + "/missing.js")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing file = %d, want 404", resp.StatusCode)
	}
}

// TestGreetingAndReset sends the snapshot to a new WebSocket client and resets a finished run.
func TestGreetingAndReset(t *testing.T) {
	ts := newTestServer(t)

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg websocket.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != websocket.MessageTypeSessionState || msg.Data["status"] != "idle" {
		t.Fatalf("greeting = %+v", msg)
	}

	if status, _ := ts.do(t, http.MethodPost, "/api/v1/session/reset", nil); status != http.StatusOK {
		t.Fatalf("reset while idle = %d, want 200", status)
	}

	ts.do(t, http.MethodPost, "/api/v1/recording/start", nil)
	ts.do(t, http.MethodPost, "/api/v1/recording/stop", nil)

	status, body := ts.do(t, http.MethodPost, "/api/v1/session/reset", nil)
	if status != http.StatusOK || body["status"] != "idle" || body["progress"] != float64(0) {
		t.Fatalf("reset = %d %v", status, body)
	}
	if body["translation"] != "Hola, ¿cómo estás?" {
		t.Fatalf("translation after reset = %v, want kept", body["translation"])
	}
}
