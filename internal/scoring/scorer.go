package scoring

import (
	"context"
	"errors"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
)

// ScoreOutcome 一次批量评分的结果
// Valid=false 时 Items 是最后一次能解析的数组(可能为空或不完整)
type ScoreOutcome struct {
	Items    []ScoreItem
	Attempts int
	Valid    bool
	Err      error
}

// Resolve 按候选顺序给出评分
func (o ScoreOutcome) Resolve(candidates []models.Candidate) []models.ScoredResult {
	return Resolve(candidates, o.Items)
}

// Scorer 评分边界: 构造提示词、重试、校验
type Scorer struct {
	client       Client
	retry        RetryPolicy
	systemPrompt string
}

// Option Scorer选项
type Option func(*Scorer)

// WithRetryPolicy 设置重试策略
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *Scorer) { s.retry = p }
}

// WithSystemPrompt 设置系统提示词,空字符串保持默认
func WithSystemPrompt(prompt string) Option {
	return func(s *Scorer) {
		if prompt != "" {
			s.systemPrompt = prompt
		}
	}
}

// NewScorer 创建评分器
func NewScorer(client Client, opts ...Option) *Scorer {
	s := &Scorer{
		client:       client,
		retry:        DefaultRetryPolicy(),
		systemPrompt: DefaultSystemPrompt,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScoreBatch 对一批候选评分,从不返回错误
func (s *Scorer) ScoreBatch(ctx context.Context, candidates []models.Candidate, pageContext string) ScoreOutcome {
	if len(candidates) == 0 {
		return ScoreOutcome{Valid: true}
	}

	prompt, err := buildScorePrompt(s.systemPrompt, candidates, pageContext)
	if err != nil {
		return ScoreOutcome{Err: err}
	}

	var outcome ScoreOutcome
	err = s.retry.Do(ctx, func(attempt int) error {
		outcome.Attempts = attempt
		p := prompt
		p.NoCache = attempt > 1

		text, err := s.client.Complete(ctx, p)
		if err != nil {
			utils.Warnf("⚠️  评分请求失败 (第%d次): %v", attempt, err)
			return err
		}
		items, err := parseScoreItems(text)
		if err != nil {
			utils.Warnf("⚠️  评分响应无法解析 (第%d次): %v", attempt, err)
			return err
		}
		outcome.Items = items
		if err := validateScoreItems(items, len(candidates)); err != nil {
			utils.Warnf("⚠️  评分响应校验失败 (第%d次): %v", attempt, err)
			return err
		}
		return nil
	})

	if err != nil {
		outcome.Err = err
		utils.Errorf("❌ 评分重试用尽 (%d次), 使用最后一次可解析的结果(%d项)", outcome.Attempts, len(outcome.Items))
		return outcome
	}
	outcome.Valid = true
	return outcome
}

// VerifyTarget 打开页面后确认是否为目标页,返回目标名称
func (s *Scorer) VerifyTarget(ctx context.Context, pageURL, pageContext string) (string, bool) {
	prompt := buildVerifyPrompt(s.systemPrompt, pageURL, pageContext)

	var resp verifyResponse
	err := s.retry.Do(ctx, func(attempt int) error {
		p := prompt
		p.NoCache = attempt > 1
		text, err := s.client.Complete(ctx, p)
		if err != nil {
			return err
		}
		resp, err = parseVerifyResponse(text)
		return err
	})
	if err != nil {
		utils.Warnf("⚠️  目标确认失败 [%s]: %v", pageURL, err)
		return "", false
	}
	return resp.ProductName, resp.IsProductPage
}

// DetectTriggers 让模型从页面元素中挑出动态加载触发器
func (s *Scorer) DetectTriggers(ctx context.Context, elements []models.DynamicElement) []models.TriggerDescriptor {
	if len(elements) == 0 {
		return nil
	}
	prompt, err := buildTriggerPrompt(s.systemPrompt, elements)
	if err != nil {
		utils.Warnf("⚠️  构造触发器请求失败: %v", err)
		return nil
	}

	var triggers []models.TriggerDescriptor
	err = s.retry.Do(ctx, func(attempt int) error {
		p := prompt
		p.NoCache = attempt > 1
		text, err := s.client.Complete(ctx, p)
		if err != nil {
			return err
		}
		triggers, err = parseTriggers(text, elements)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		utils.Warnf("⚠️  触发器识别失败: %v", err)
	}
	return triggers
}
