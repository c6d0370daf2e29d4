package ai_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/tidewater/ocean-engine/internal/ai"
	"github.com/tidewater/ocean-engine/internal/config"
	"github.com/tidewater/ocean-engine/internal/model"
)

func newClient(t *testing.T, handler http.HandlerFunc) *ai.OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Default().AI
	cfg.BaseURL = srv.URL
	cfg.APIKey = "test-key"
	cfg.Timeout = 2 * time.Second
	cfg.RatePerSecond = 100
	return ai.NewOpenAIClient(cfg)
}

func reply(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"`+content+`"}}]}`)
	}
}

func TestOpenAIClassify(t *testing.T) {
	tests := []struct {
		content string
		want    model.Sentiment
	}{
		{"positive", model.SentimentPositive},
		{"Negative.", model.SentimentNegative},
		{"neutral", model.SentimentNeutral},
		{"I am not sure", model.SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.content, func(t *testing.T) {
			c := newClient(t, reply(tt.content))
			got, err := c.Classify(context.Background(), "Haeundae", "title", "body")
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestOpenAIClassify_SendsRequest(t *testing.T) {
	var body []byte
	var auth string
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		body, _ = io.ReadAll(r.Body)
		reply("positive")(w, r)
	})

	if _, err := c.Classify(context.Background(), "Haeundae", "Beach cleanup succeeds", "body"); err != nil {
		t.Fatalf("classify: %v", err)
	}
	if auth != "Bearer test-key" {
		t.Errorf("unexpected auth header %q", auth)
	}
	prompt := gjson.GetBytes(body, "messages.0.content").String()
	if !strings.Contains(prompt, "Haeundae") || !strings.Contains(prompt, "Beach cleanup succeeds") {
		t.Errorf("prompt missing region or title: %q", prompt)
	}
}

func TestOpenAI_ErrorsAreExternal(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, `{"error":{"message":"overloaded"}}`)
	})

	s, err := c.Classify(context.Background(), "r", "t", "b")
	if !errors.Is(err, model.ErrExternalService) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if s != model.SentimentNeutral {
		t.Errorf("failed classification should report neutral, got %s", s)
	}

	ok, err := c.Verify(context.Background(), []byte("\x89PNG\r\n\x1a\n"), "litter")
	if !errors.Is(err, model.ErrExternalService) || ok {
		t.Errorf("expected rejected verification with ErrExternalService, got %v %v", ok, err)
	}
}

func TestOpenAIVerify(t *testing.T) {
	var body []byte
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		reply("YES")(w, r)
	})

	ok, err := c.Verify(context.Background(), []byte("\x89PNG\r\n\x1a\nrest"), "litter on a beach")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("expected verification to pass")
	}
	url := gjson.GetBytes(body, "messages.0.content.1.image_url.url").String()
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("unexpected image url prefix: %.40s", url)
	}
}

func TestOpenAIVerify_No(t *testing.T) {
	c := newClient(t, reply("NO"))
	ok, err := c.Verify(context.Background(), []byte("img"), "litter")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Error("expected verification to fail")
	}
}

func TestKeywordClassifier(t *testing.T) {
	tests := []struct {
		title string
		want  model.Sentiment
	}{
		{"해운대 해양 생태계 회복 성공", model.SentimentPositive},
		{"해양 오염 피해 확산", model.SentimentNegative},
		{"해양 축제 개최", model.SentimentNeutral},
		{"Oil spill causes damage offshore", model.SentimentNegative},
	}
	for _, tt := range tests {
		got, err := ai.KeywordClassifier{}.Classify(context.Background(), "", tt.title, "")
		if err != nil {
			t.Fatalf("classify: %v", err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.title, tt.want, got)
		}
	}
}
