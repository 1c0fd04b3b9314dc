package translation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yegors/co-translate/internal/ai"
	"github.com/yegors/co-translate/internal/ai/openai"
	"github.com/yegors/co-translate/pkg/logger"
)

var defaultConfig = Config{Model: "llama-3.3-70b-versatile", Temperature: 0.3, MaxTokens: 1000}

// TestInstruction renders both languages as "Name (code)".
func TestInstruction(t *testing.T) {
	want := "Translate the input text from English (en) to Spanish (es), preserving tone and meaning. " +
		"Return only the translated text, no explanations or additional formatting."
	if got := Instruction("en", "es"); got != want {
		t.Fatalf("Instruction() = %q", got)
	}
}

// TestTranslateOverHTTP sends the instruction and the transcript verbatim.
func TestTranslateOverHTTP(t *testing.T) {
	var req struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hola mundo"}}]}`))
	}))
	defer srv.Close()

	provider := openai.NewClient(ai.StaticCredential("k"), srv.URL, time.Second, logger.NewNop())
	tr := NewTranslator(provider, defaultConfig, logger.NewNop())

	res, err := tr.Translate(context.Background(), "Hello, how are you?", "en", "es")
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if res.Text != "Hola mundo" {
		t.Fatalf("Text = %q", res.Text)
	}
	if len(req.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(req.Messages))
	}
	if req.Messages[0].Role != "system" || req.Messages[0].Content != Instruction("en", "es") {
		t.Fatalf("system message = %+v", req.Messages[0])
	}
	if req.Messages[1].Role != "user" || req.Messages[1].Content != "Hello, how are you?" {
		t.Fatalf("user message = %+v", req.Messages[1])
	}
}

// TestTranslateStatusFailure maps an HTTP failure to FailedError.
func TestTranslateStatusFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	provider := openai.NewClient(ai.StaticCredential("k"), srv.URL, time.Second, logger.NewNop())
	tr := NewTranslator(provider, defaultConfig, logger.NewNop())

	_, err := tr.Translate(context.Background(), "Hello", "en", "es")
	if !errors.Is(err, ErrTranslationFailed) {
		t.Fatalf("error = %v, want ErrTranslationFailed", err)
	}
	var fe *FailedError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("error = %#v, want status 429", err)
	}
}

type stubProvider struct {
	out   string
	err   error
	calls int
}

func (s *stubProvider) Name() string { return "stub" }

func (s *stubProvider) ChatCompletion(context.Context, []ai.ChatMessage, ai.ChatConfig) (string, error) {
	s.calls++
	return s.out, s.err
}

// TestTranslatePlaceholder substitutes the placeholder for an empty completion.
func TestTranslatePlaceholder(t *testing.T) {
	for _, p := range []*stubProvider{{err: ai.ErrEmptyCompletion}, {out: ""}} {
		tr := NewTranslator(p, defaultConfig, logger.NewNop())
		res, err := tr.Translate(context.Background(), "Hello", "en", "es")
		if err != nil {
			t.Fatalf("Translate() error = %v", err)
		}
		if res.Text != PlaceholderText || !res.Placeholder {
			t.Fatalf("result = %+v, want placeholder", res)
		}
	}
}

// TestTranslateSkipSameLanguage passes text through only when enabled.
func TestTranslateSkipSameLanguage(t *testing.T) {
	p := &stubProvider{out: "Hallo"}
	cfg := defaultConfig
	cfg.SkipSameLanguage = true
	tr := NewTranslator(p, cfg, logger.NewNop())

	res, err := tr.Translate(context.Background(), "Hallo", "de", "de")
	if err != nil || !res.Skipped || res.Text != "Hallo" || p.calls != 0 {
		t.Fatalf("result = %+v, err %v, calls %d", res, err, p.calls)
	}

	tr = NewTranslator(p, defaultConfig, logger.NewNop())
	if _, err := tr.Translate(context.Background(), "Hallo", "de", "de"); err != nil || p.calls != 1 {
		t.Fatalf("err %v, calls %d, want one call", err, p.calls)
	}
}
