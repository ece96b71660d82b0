package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

func TestAnthropicClient_Complete(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		if r.URL.Path != "/v1/messages" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-api-key") != "secret" || r.Header.Get("anthropic-version") != AnthropicVersion {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Model != "claude-test" || req.System != "sys" || req.MaxTokens != DefaultMaxTokens ||
			len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"type": "text", "text": `[{"id":0,`},
				{"type": "tool_use", "text": "ignored"},
				{"type": "text", "text": `"score":7}]`},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 10, "output_tokens": 5},
		})
	}))
	defer srv.Close()

	client, err := NewAnthropicClient(HTTPClientConfig{
		BaseURL:  srv.URL + "/v1",
		APIKey:   "secret",
		Model:    "claude-test",
		CacheTTL: time.Minute,
	})
	if err != nil {
		t.Fatalf("NewAnthropicClient() error = %v", err)
	}

	prompt := Prompt{System: "sys", Instruction: "score these"}
	got, err := client.Complete(context.Background(), prompt)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `[{"id":0,"score":7}]` {
		t.Errorf("Complete() = %q", got)
	}

	// 缓存属于实例
	if _, err := client.Complete(context.Background(), prompt); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("请求次数 = %d, want 1", n)
	}
}

func TestGeminiClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("x-goog-api-key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req geminiRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.SystemInstruction == nil || req.SystemInstruction.Parts[0].Text != "sys" ||
			len(req.Contents) != 1 || req.GenerationConfig.MaxOutputTokens != 512 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content":      map[string]any{"role": "model", "parts": []map[string]string{{"text": `{"isTarget":true}`}}},
				"finishReason": "STOP",
			}},
			"usageMetadata": map[string]int{"totalTokenCount": 9},
		})
	}))
	defer srv.Close()

	client, err := NewGeminiClient(HTTPClientConfig{BaseURL: srv.URL + "/v1beta/", APIKey: "secret", Model: "gemini-test"})
	if err != nil {
		t.Fatalf("NewGeminiClient() error = %v", err)
	}
	got, err := client.Complete(context.Background(), Prompt{System: "sys", Instruction: "verify", MaxTokens: 512})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != `{"isTarget":true}` {
		t.Errorf("Complete() = %q", got)
	}
}

func TestProviderClients_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		status   int
		body     string
		wantErr  error
	}{
		{"anthropic非200", ProviderAnthropic, http.StatusTooManyRequests, `{"error":"rate"}`, models.ErrInvalidResponse},
		{"anthropic没有文本块", ProviderAnthropic, http.StatusOK, `{"content":[]}`, models.ErrEmptyResponse},
		{"google没有候选", ProviderGoogle, http.StatusOK, `{"candidates":[]}`, models.ErrEmptyResponse},
		{"google坏JSON", ProviderGoogle, http.StatusOK, `{`, models.ErrInvalidResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			client, err := NewClient(tt.provider, HTTPClientConfig{BaseURL: srv.URL, Model: "m"})
			if err != nil {
				t.Fatal(err)
			}
			_, err = client.Complete(context.Background(), Prompt{Instruction: "x"})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Complete() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	tests := []struct {
		provider  string
		wantURL   string
		wantModel string
	}{
		{ProviderOpenAI, "https://api.openai.com/v1", "gpt-4o-mini"},
		{ProviderAnthropic, "https://api.anthropic.com/v1", "claude-3-5-sonnet-latest"},
		{ProviderGoogle, "https://generativelanguage.googleapis.com/v1beta", "gemini-2.0-flash"},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			client, err := NewClient(tt.provider, HTTPClientConfig{RequestsPerMinute: 30})
			if err != nil {
				t.Fatalf("NewClient() error = %v", err)
			}
			var base *baseClient
			switch c := client.(type) {
			case *HTTPClient:
				base = c.baseClient
			case *AnthropicClient:
				base = c.baseClient
			case *GeminiClient:
				base = c.baseClient
			default:
				t.Fatalf("客户端类型 = %T", client)
			}
			if base.cfg.BaseURL != tt.wantURL || base.cfg.Model != tt.wantModel {
				t.Errorf("默认值 = %s %s", base.cfg.BaseURL, base.cfg.Model)
			}
			if base.limiter == nil {
				t.Error("设置了每分钟请求数时应创建限速器")
			}
		})
	}

	if _, err := NewClient("magic", HTTPClientConfig{}); err == nil {
		t.Error("未知后端应返回错误")
	}
}
