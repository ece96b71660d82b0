package crawlers

import (
	"sync"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// Registry 全局URL去重表
// 所有URL的登记都通过 MarkIfNew,检查和插入在同一把锁内完成
type Registry struct {
	seen map[string]struct{}
	mu   sync.Mutex
}

// NewRegistry 创建去重表
func NewRegistry() *Registry {
	return &Registry{
		seen: make(map[string]struct{}),
	}
}

// MarkIfNew 首次见到该URL时登记并返回true,否则返回false
func (r *Registry) MarkIfNew(rawURL string) bool {
	key := registryKey(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	return true
}

// Contains 是否已登记
func (r *Registry) Contains(rawURL string) bool {
	key := registryKey(rawURL)

	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.seen[key]
	return ok
}

// Seed 预先登记一批URL (起始页)
func (r *Registry) Seed(urls ...string) {
	for _, u := range urls {
		r.MarkIfNew(u)
	}
}

// Len 已登记数量
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// registryKey 规范化后的键,解析失败时退回原串
func registryKey(rawURL string) string {
	canonical, err := models.CanonicalURL(rawURL)
	if err != nil {
		return rawURL
	}
	return canonical
}
