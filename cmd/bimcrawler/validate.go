package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
)

// ValidateFlags 校验命令行参数范围
func ValidateFlags(targetURL, urlFile, taskFile string, maxPages int, low, high float64) error {
	sources := 0
	for _, s := range []string{targetURL, urlFile, taskFile} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return fmt.Errorf("--url, --url-file 和 --task 只能指定一个")
	}

	if targetURL != "" {
		if err := models.ValidateURL(targetURL); err != nil {
			return fmt.Errorf("无效的目标URL: %w", err)
		}
	}
	if maxPages < 0 || maxPages > 10000 {
		return fmt.Errorf("最大页数必须在1-10000之间,当前值: %d", maxPages)
	}
	if low < 0 || low > 10 || high < 0 || high > 10 {
		return fmt.Errorf("阈值必须在0-10之间,当前值: %.1f/%.1f", low, high)
	}
	if low >= high {
		return fmt.Errorf("低阈值(%.1f)必须小于高阈值(%.1f)", low, high)
	}
	return nil
}

// NormalizeURL 没有协议时补https
func NormalizeURL(urlStr string) (string, error) {
	urlStr = strings.TrimSpace(urlStr)
	if urlStr == "" {
		return "", nil
	}
	if !strings.Contains(urlStr, "://") {
		urlStr = "https://" + urlStr
	}
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
