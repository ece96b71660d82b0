package crawlers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/temoto/robotstxt"
)

// RobotsPolicy robots.txt 允许/禁止判断,按主机缓存
// 获取或解析失败时放行
type RobotsPolicy struct {
	client    *http.Client
	userAgent string
	ttl       time.Duration
	enabled   bool

	mu    sync.RWMutex
	cache map[string]robotsEntry
}

type robotsEntry struct {
	fetched time.Time
	rules   *robotstxt.RobotsData
}

// NewRobotsPolicy 创建robots策略,enabled=false 时一律放行
func NewRobotsPolicy(enabled bool, userAgent string, ttl time.Duration, client *http.Client) *RobotsPolicy {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RobotsPolicy{
		client:    client,
		userAgent: userAgent,
		ttl:       ttl,
		enabled:   enabled,
		cache:     make(map[string]robotsEntry),
	}
}

// Allowed 判断目标URL是否允许访问
func (p *RobotsPolicy) Allowed(ctx context.Context, target *url.URL) bool {
	if target == nil || !target.IsAbs() {
		return false
	}
	if p == nil || !p.enabled {
		return true
	}

	rules, err := p.rules(ctx, target)
	if err != nil {
		log.Debug().Msgf("robots.txt 获取失败,默认放行 [%s]: %v", target.Host, err)
		return true
	}

	group := rules.FindGroup(p.userAgent)
	if group == nil {
		return true
	}
	path := target.EscapedPath()
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return group.Test(path)
}

func (p *RobotsPolicy) rules(ctx context.Context, target *url.URL) (*robotstxt.RobotsData, error) {
	host := strings.ToLower(target.Host)

	p.mu.RLock()
	entry, ok := p.cache[host]
	p.mu.RUnlock()
	if ok && time.Since(entry.fetched) < p.ttl {
		return entry.rules, nil
	}

	robotsURL := target.Scheme + "://" + target.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("构建robots请求失败: %w", err)
	}
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("获取robots.txt失败: %w", err)
	}
	defer resp.Body.Close()

	// 4xx 视为没有限制,5xx 视为全部禁止,与 robotstxt 的约定一致
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("解析robots.txt失败: %w", err)
	}

	p.mu.Lock()
	p.cache[host] = robotsEntry{fetched: time.Now(), rules: data}
	p.mu.Unlock()

	return data, nil
}
