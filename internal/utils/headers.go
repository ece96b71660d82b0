package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// MaxHeaderValueLength 头部值最大长度 (8KB)
const MaxHeaderValueLength = 8192

var (
	// ForbiddenHeaders 由HTTP客户端管理的头部
	ForbiddenHeaders = []string{"Host", "Content-Length", "Transfer-Encoding", "Connection"}

	// SensitiveKeywords 名称包含这些关键字的头部在日志中脱敏
	SensitiveKeywords = []string{"authorization", "cookie", "token", "key", "secret", "password", "credential"}

	headerNamePattern  = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	headerValuePattern = regexp.MustCompile(`^[\x20-\x7E\t]*$`)
)

// HeaderPolicy 头部校验与脱敏
type HeaderPolicy struct {
	forbidden map[string]bool
	sensitive []string
}

// NewHeaderPolicy 创建默认策略
func NewHeaderPolicy() *HeaderPolicy {
	forbidden := make(map[string]bool, len(ForbiddenHeaders))
	for _, h := range ForbiddenHeaders {
		forbidden[strings.ToLower(h)] = true
	}
	return &HeaderPolicy{forbidden: forbidden, sensitive: SensitiveKeywords}
}

// Check 校验单个头部
func (p *HeaderPolicy) Check(name, value string) error {
	switch {
	case p.forbidden[strings.ToLower(name)]:
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由HTTP客户端自动管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s'", name),
		}
	case name == "":
		return &models.ValidationError{Field: "name", Reason: "头部名称不能为空"}
	case !headerNamePattern.MatchString(name):
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称只能包含字母、数字和连字符",
			Suggestion: "例如 'X-Custom-Header'",
		}
	case len(value) > MaxHeaderValueLength:
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	case !headerValuePattern.MatchString(value):
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含非法字符",
			Suggestion: "移除控制字符和非ASCII字符",
		}
	}
	return nil
}

// Validate 校验所有头部,返回第一个错误
func (p *HeaderPolicy) Validate(headers http.Header) error {
	for name, values := range headers {
		for _, value := range values {
			if err := p.Check(name, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// IsSensitive 名称是否包含敏感关键字
func (p *HeaderPolicy) IsSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range p.sensitive {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// RedactValue 脱敏单个值: Bearer只保留前缀,长值保留首尾4位
func (p *HeaderPolicy) RedactValue(name, value string) string {
	if !p.IsSensitive(name) {
		return value
	}
	if strings.HasPrefix(value, "Bearer ") {
		return "Bearer ***"
	}
	if len(value) > 8 {
		return value[:4] + "***" + value[len(value)-4:]
	}
	return "***"
}

// Redact 返回可以写进日志的头部,每个名称只取第一个值
func (p *HeaderPolicy) Redact(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		out[name] = p.RedactValue(name, values[0])
	}
	return out
}

// RedactString 按名称排序的 "Name: value" 列表
func (p *HeaderPolicy) RedactString(headers http.Header) string {
	redacted := p.Redact(headers)
	names := make([]string, 0, len(redacted))
	for name := range redacted {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+redacted[name])
	}
	return strings.Join(parts, ", ")
}
