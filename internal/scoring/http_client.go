package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
	"golang.org/x/time/rate"
)

// 远程评分后端
const (
	ProviderOpenAI    = "openai"    // OpenAI兼容的 /chat/completions
	ProviderAnthropic = "anthropic" // Anthropic Messages API
	ProviderGoogle    = "google"    // Gemini generateContent
)

// DefaultMaxTokens 提示词没有指定时的输出上限, Anthropic 要求必填
const DefaultMaxTokens = 4000

// providerDefaults 各后端的默认地址和模型
var providerDefaults = map[string]struct{ BaseURL, Model string }{
	ProviderOpenAI:    {"https://api.openai.com/v1", "gpt-4o-mini"},
	ProviderAnthropic: {"https://api.anthropic.com/v1", "claude-3-5-sonnet-latest"},
	ProviderGoogle:    {"https://generativelanguage.googleapis.com/v1beta", "gemini-2.0-flash"},
}

// HTTPClientConfig 远程评分接口配置, 三种后端共用
type HTTPClientConfig struct {
	BaseURL           string // 例如 https://api.openai.com/v1
	APIKey            string
	Model             string
	Temperature       float32
	Timeout           time.Duration
	RequestsPerMinute int // <=0 不限速
	CacheTTL          time.Duration
	CacheSize         int
}

// NewClient 按后端名创建客户端, BaseURL/Model 为空时使用该后端的默认值
func NewClient(provider string, cfg HTTPClientConfig) (Client, error) {
	defaults, ok := providerDefaults[provider]
	if !ok {
		return nil, fmt.Errorf("未知的评分后端: %q", provider)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}

	switch provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg)
	case ProviderGoogle:
		return NewGeminiClient(cfg)
	default:
		return NewHTTPClient(cfg)
	}
}

// baseClient 三种后端共用的限速、缓存和HTTP收发
// 限速器和缓存都属于实例本身
type baseClient struct {
	cfg     HTTPClientConfig
	client  *http.Client
	limiter *rate.Limiter
	cache   *ResponseCache
}

func newBaseClient(cfg HTTPClientConfig) (*baseClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("评分接口地址不能为空")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("评分模型不能为空")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	b := &baseClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		cache:  NewResponseCache(cfg.CacheTTL, cfg.CacheSize),
	}
	if cfg.RequestsPerMinute > 0 {
		b.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}
	return b, nil
}

// sendFunc 发送一次请求, 返回文本和消耗的token数
type sendFunc func(ctx context.Context, prompt Prompt) (string, int, error)

// complete 缓存命中时不发请求, 否则限速后调用 send 并写回缓存
func (b *baseClient) complete(ctx context.Context, prompt Prompt, send sendFunc) (string, error) {
	key := prompt.Key()
	if !prompt.NoCache {
		if cached, ok := b.cache.Get(key); ok {
			utils.Debugf("💾 评分缓存命中: %s", key[:12])
			return cached, nil
		}
	}

	if b.limiter != nil {
		if err := b.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("等待限速失败: %w", err)
		}
	}

	start := time.Now()
	content, tokens, err := send(ctx, prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", models.ErrEmptyResponse
	}
	utils.Debugf("🤖 评分响应: 耗时=%v, tokens=%d", time.Since(start).Round(time.Millisecond), tokens)

	b.cache.Put(key, content)
	return content, nil
}

// postJSON 发送JSON请求并把200响应解码到 out
func (b *baseClient) postJSON(ctx context.Context, endpoint string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("评分请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: 状态码 %d: %s", models.ErrInvalidResponse, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: 解码响应失败: %v", models.ErrInvalidResponse, err)
	}
	return nil
}

func maxTokens(prompt Prompt) int {
	if prompt.MaxTokens > 0 {
		return prompt.MaxTokens
	}
	return DefaultMaxTokens
}

// HTTPClient 调用 OpenAI 兼容 /chat/completions 的评分后端
type HTTPClient struct {
	*baseClient
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// NewHTTPClient 创建客户端
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &HTTPClient{baseClient: base}, nil
}

// Complete 发送一次对话请求,命中缓存时不发请求
func (c *HTTPClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return c.complete(ctx, prompt, c.send)
}

func (c *HTTPClient) send(ctx context.Context, prompt Prompt) (string, int, error) {
	var messages []chatMessage
	if prompt.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: prompt.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt.UserMessage()})

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + c.cfg.APIKey
	}

	var parsed chatResponse
	err := c.postJSON(ctx, c.cfg.BaseURL+"/chat/completions", headers, chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		MaxTokens:   prompt.MaxTokens,
		Temperature: c.cfg.Temperature,
	}, &parsed)
	if err != nil {
		return "", 0, err
	}
	if len(parsed.Choices) == 0 {
		return "", 0, models.ErrEmptyResponse
	}
	return parsed.Choices[0].Message.Content, parsed.Usage.TotalTokens, nil
}
