package scoring

import (
	"context"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// AnthropicVersion Messages API 版本头
const AnthropicVersion = "2023-06-01"

// AnthropicClient 调用 Anthropic /messages 的评分后端
type AnthropicClient struct {
	*baseClient
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float32            `json:"temperature"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// NewAnthropicClient 创建客户端
func NewAnthropicClient(cfg HTTPClientConfig) (*AnthropicClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &AnthropicClient{baseClient: base}, nil
}

// Complete 发送一次消息请求,命中缓存时不发请求
func (c *AnthropicClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return c.complete(ctx, prompt, c.send)
}

func (c *AnthropicClient) send(ctx context.Context, prompt Prompt) (string, int, error) {
	headers := map[string]string{"anthropic-version": AnthropicVersion}
	if c.cfg.APIKey != "" {
		headers["x-api-key"] = c.cfg.APIKey
	}

	var parsed anthropicResponse
	err := c.postJSON(ctx, c.cfg.BaseURL+"/messages", headers, anthropicRequest{
		Model:       c.cfg.Model,
		MaxTokens:   maxTokens(prompt),
		System:      prompt.System,
		Messages:    []anthropicMessage{{Role: "user", Content: prompt.UserMessage()}},
		Temperature: c.cfg.Temperature,
	}, &parsed)
	if err != nil {
		return "", 0, err
	}

	// 只取文本块
	var b strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	if b.Len() == 0 {
		return "", 0, models.ErrEmptyResponse
	}
	return b.String(), parsed.Usage.InputTokens + parsed.Usage.OutputTokens, nil
}
