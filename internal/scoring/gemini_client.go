package scoring

import (
	"context"
	"net/url"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// GeminiClient 调用 Gemini generateContent 的评分后端
type GeminiClient struct {
	*baseClient
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent `json:"contents"`
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	GenerationConfig  struct {
		MaxOutputTokens int     `json:"maxOutputTokens"`
		Temperature     float32 `json:"temperature"`
	} `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

// NewGeminiClient 创建客户端
func NewGeminiClient(cfg HTTPClientConfig) (*GeminiClient, error) {
	base, err := newBaseClient(cfg)
	if err != nil {
		return nil, err
	}
	return &GeminiClient{baseClient: base}, nil
}

// Complete 发送一次生成请求,命中缓存时不发请求
func (c *GeminiClient) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return c.complete(ctx, prompt, c.send)
}

func (c *GeminiClient) send(ctx context.Context, prompt Prompt) (string, int, error) {
	var req geminiRequest
	req.Contents = []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt.UserMessage()}}}}
	if prompt.System != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}
	req.GenerationConfig.MaxOutputTokens = maxTokens(prompt)
	req.GenerationConfig.Temperature = c.cfg.Temperature

	headers := map[string]string{}
	if c.cfg.APIKey != "" {
		headers["x-goog-api-key"] = c.cfg.APIKey
	}

	endpoint := c.cfg.BaseURL + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	var parsed geminiResponse
	if err := c.postJSON(ctx, endpoint, headers, req, &parsed); err != nil {
		return "", 0, err
	}
	if len(parsed.Candidates) == 0 {
		return "", 0, models.ErrEmptyResponse
	}

	var b strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String(), parsed.UsageMetadata.TotalTokenCount, nil
}
