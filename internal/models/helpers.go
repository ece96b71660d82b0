package models

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// CanonicalURL 规范化URL: 小写scheme/host,去掉默认端口和fragment
// 空路径补为"/"
func CanonicalURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("无效的URL: %w", err)
	}
	return canonicalize(parsed), nil
}

func canonicalize(u *url.URL) string {
	c := *u
	c.Scheme = strings.ToLower(c.Scheme)
	host := strings.ToLower(c.Hostname())
	port := c.Port()
	if (c.Scheme == "http" && port == "80") || (c.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	c.Host = host
	c.Fragment = ""
	c.RawFragment = ""
	if c.Path == "" {
		c.Path = "/"
	}
	return c.String()
}

// ResolveURL 相对于页面URL解析链接并规范化
func ResolveURL(base *url.URL, href string) (*url.URL, string, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, "", err
	}
	abs := base.ResolveReference(ref)
	return abs, canonicalize(abs), nil
}

// RelativePath 返回 path+query,用于展示和子节点键
func RelativePath(u *url.URL) string {
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

// SameDomain 判断主机是否相同,忽略 www. 前缀和大小写
func SameDomain(host, domain string) bool {
	return foldHost(host) == foldHost(domain)
}

func foldHost(h string) string {
	h = strings.ToLower(h)
	if i := strings.LastIndex(h, ":"); i >= 0 && !strings.Contains(h[i:], "]") {
		h = h[:i]
	}
	return strings.TrimPrefix(h, "www.")
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}
