package crawlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/exhaustion"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

const (
	triggerMarker = "data-bimcrawler-trigger"
	scrollMarker  = "data-bimcrawler-scroll"
)

// locateTriggerJS 按DOM id或 标签+文本+class 查找触发元素,找到后打上标记属性
// 返回是否找到
const locateTriggerJS = `(marker, d) => {
	document.querySelectorAll('[' + marker + ']').forEach(el => el.removeAttribute(marker));
	const norm = s => (s || '').replace(/\s+/g, ' ').trim();
	let el = null;
	if (d.dom_id) {
		el = document.getElementById(d.dom_id);
	}
	if (!el) {
		const candidates = Array.from(document.querySelectorAll(d.tag || '*'));
		let best = 0;
		for (const c of candidates) {
			let score = 0;
			const text = norm(c.textContent).slice(0, 100);
			if (d.text && text === d.text) score += 4;
			else if (d.text && text.startsWith(d.text)) score += 2;
			if (d.class && norm(c.getAttribute('class')) === d.class) score += 2;
			if (d.href && c.getAttribute('href') === d.href) score += 3;
			if (d.aria_label && c.getAttribute('aria-label') === d.aria_label) score += 3;
			if (score > best) { best = score; el = c; }
		}
	}
	if (!el) return false;
	el.setAttribute(marker, '1');
	return true;
}`

// snapshotJS 统计链接数、各条目选择器数量和滚动高度
const snapshotJS = `(selectors) => {
	const items = {};
	for (const s of selectors) {
		try { items[s] = document.querySelectorAll(s).length; } catch (e) { items[s] = 0; }
	}
	return JSON.stringify({
		links: document.querySelectorAll('a[href]').length,
		items: items,
		height: document.documentElement.scrollHeight
	});
}`

// visibleCountJS 可见元素数量
const visibleCountJS = `(selector) => {
	let n = 0;
	try {
		document.querySelectorAll(selector).forEach(el => {
			const r = el.getBoundingClientRect();
			const st = getComputedStyle(el);
			if (r.width > 0 && r.height > 0 && st.visibility !== 'hidden' && st.display !== 'none') n++;
		});
	} catch (e) {}
	return n;
}`

// scrollContainersJS 标记内部可滚动容器,文档容器固定为0
const scrollContainersJS = `(marker) => {
	const out = [{id: 0, label: 'document', document: true}];
	let id = 1;
	document.querySelectorAll('body *').forEach(el => {
		if (id > 20) return;
		const st = getComputedStyle(el);
		const scrollable = (st.overflowY === 'auto' || st.overflowY === 'scroll') && el.scrollHeight > el.clientHeight + 10;
		if (!scrollable) return;
		el.setAttribute(marker, String(id));
		const label = el.tagName.toLowerCase() + (el.id ? '#' + el.id : '') + (el.className && typeof el.className === 'string' ? '.' + el.className.trim().split(/\s+/).join('.') : '');
		out.push({id: id, label: label.slice(0, 80), document: false});
		id++;
	});
	return JSON.stringify(out);
}`

// scrollToBottomJS 滚动到底部,返回是否已到边界
const scrollToBottomJS = `(marker, id) => {
	let el = document.scrollingElement || document.documentElement;
	if (id !== 0) {
		el = document.querySelector('[' + marker + '="' + id + '"]');
		if (!el) return true;
	}
	el.scrollTop = el.scrollHeight;
	if (id === 0) window.scrollTo(0, document.documentElement.scrollHeight);
	return el.scrollTop + el.clientHeight >= el.scrollHeight - 2;
}`

// RodSession 基于go-rod页面的会话
type RodSession struct {
	page     *rod.Page
	pool     *PagePool
	startURL string
	closed   bool
}

var _ exhaustion.PageSession = (*RodSession)(nil)

// URL 当前页面地址
func (s *RodSession) URL() string {
	if s.closed {
		return s.startURL
	}
	info, err := s.page.Info()
	if err != nil || info.URL == "" {
		return s.startURL
	}
	return info.URL
}

// HTML 当前DOM
func (s *RodSession) HTML(ctx context.Context) (string, error) {
	if s.closed {
		return "", models.ErrSessionClosed
	}
	return s.page.Context(ctx).HTML()
}

// Click 定位、检查可见性后点击
func (s *RodSession) Click(ctx context.Context, trigger models.TriggerDescriptor) (bool, error) {
	if s.closed {
		return false, models.ErrSessionClosed
	}
	page := s.page.Context(ctx)

	el := trigger.Element
	desc := map[string]string{
		"dom_id":     el.DomID,
		"tag":        el.Tag,
		"text":       el.TextContent,
		"class":      el.ClassNames,
		"href":       el.Href,
		"aria_label": el.AriaLabel,
	}
	res, err := page.Eval(locateTriggerJS, triggerMarker, desc)
	if err != nil {
		return false, fmt.Errorf("定位触发元素失败: %w", err)
	}
	if !res.Value.Bool() {
		return false, nil
	}

	elements, err := page.Elements("[" + triggerMarker + "]")
	if err != nil || len(elements) == 0 {
		return false, nil
	}
	target := elements.First()

	visible, err := target.Visible()
	if err != nil || !visible {
		return false, nil
	}
	_ = target.ScrollIntoView()
	if err := target.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("点击失败: %w", err)
	}
	return true, nil
}

// Count 可见的匹配元素数量
func (s *RodSession) Count(ctx context.Context, selector string) (int, error) {
	if s.closed {
		return 0, models.ErrSessionClosed
	}
	res, err := s.page.Context(ctx).Eval(visibleCountJS, selector)
	if err != nil {
		return 0, err
	}
	return res.Value.Int(), nil
}

// Snapshot 页面内容计数
func (s *RodSession) Snapshot(ctx context.Context, itemSelectors []string) (exhaustion.Snapshot, error) {
	var snap exhaustion.Snapshot
	if s.closed {
		return snap, models.ErrSessionClosed
	}
	if itemSelectors == nil {
		itemSelectors = []string{}
	}
	res, err := s.page.Context(ctx).Eval(snapshotJS, itemSelectors)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal([]byte(res.Value.Str()), &snap); err != nil {
		return snap, fmt.Errorf("解析页面快照失败: %w", err)
	}
	return snap, nil
}

// ScrollContainers 可滚动容器列表
func (s *RodSession) ScrollContainers(ctx context.Context) ([]exhaustion.ScrollContainer, error) {
	if s.closed {
		return nil, models.ErrSessionClosed
	}
	res, err := s.page.Context(ctx).Eval(scrollContainersJS, scrollMarker)
	if err != nil {
		return nil, err
	}
	var containers []exhaustion.ScrollContainer
	if err := json.Unmarshal([]byte(res.Value.Str()), &containers); err != nil {
		return nil, fmt.Errorf("解析滚动容器失败: %w", err)
	}
	return containers, nil
}

// ScrollToBottom 滚动容器到底部
func (s *RodSession) ScrollToBottom(ctx context.Context, containerID int) (bool, error) {
	if s.closed {
		return false, models.ErrSessionClosed
	}
	res, err := s.page.Context(ctx).Eval(scrollToBottomJS, scrollMarker, containerID)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// Close 归还标签页
func (s *RodSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.pool.Release(s.page)
	return nil
}
