// Package scoring 链接相关性评分: 大模型客户端、重试策略与结果解析
package scoring

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prompt 一次评分请求
type Prompt struct {
	Kind            PromptKind
	System          string
	Instruction     string
	OutputStructure string
	MaxTokens       int
	NoCache         bool // 重试时跳过缓存读取
}

// UserMessage 指令与输出格式拼成的用户消息
func (p Prompt) UserMessage() string {
	if p.OutputStructure == "" {
		return p.Instruction
	}
	return p.Instruction + "\n\n" + p.OutputStructure
}

// Key 缓存键
func (p Prompt) Key() string {
	sum := sha256.Sum256([]byte(strings.Join([]string{p.System, p.Instruction, p.OutputStructure}, "\x00")))
	return hex.EncodeToString(sum[:])
}

// Client 评分后端,返回模型的原始文本
type Client interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ClientFunc 函数适配器
type ClientFunc func(ctx context.Context, prompt Prompt) (string, error)

// Complete 调用函数本身
func (f ClientFunc) Complete(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}
