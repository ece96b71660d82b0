package crawlers

import (
	"bytes"
	"compress/flate"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/andybalholm/brotli"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultUserAgent 与真实Chrome一致的UA
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"

	// DefaultMaxBodySize 页面体积上限 10MB
	DefaultMaxBodySize = 10 * 1024 * 1024
)

// FetchResult 一次页面获取的结果
type FetchResult struct {
	URL        string
	FinalURL   string // 跟随重定向后的地址
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// FetcherConfig 抓取器配置
type FetcherConfig struct {
	Timeout            time.Duration
	UserAgent          string
	MaxBodySize        int
	InsecureSkipVerify bool
}

// PageFetcher 基于Colly的单页抓取器
// 每次Fetch克隆一个同步collector,不跟随页面中的链接,不重试
type PageFetcher struct {
	collector      *colly.Collector
	headerProvider models.HeaderProvider
	robots         *RobotsPolicy
}

// NewPageFetcher 创建抓取器
func NewPageFetcher(cfg FetcherConfig, headerProvider models.HeaderProvider, robots *RobotsPolicy) *PageFetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.MaxBodySize(cfg.MaxBodySize),
	)
	c.SetRequestTimeout(cfg.Timeout)

	// 自签名证书的站点在内网/测试环境很常见
	if cfg.InsecureSkipVerify {
		c.WithTransport(&http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		})
		log.Debug().Msg("抓取器: TLS证书验证已禁用")
	}

	log.Debug().Msgf("抓取器: 超时=%v, 体积上限=%d bytes", cfg.Timeout, cfg.MaxBodySize)

	return &PageFetcher{
		collector:      c,
		headerProvider: headerProvider,
		robots:         robots,
	}
}

// Fetch 获取页面HTML
func (f *PageFetcher) Fetch(ctx context.Context, pageURL string) (*FetchResult, error) {
	target, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}
	if f.robots != nil && !f.robots.Allowed(ctx, target) {
		return nil, fmt.Errorf("%w: %s", models.ErrRobotsDisallowed, pageURL)
	}

	c := f.collector.Clone()
	c.Context = ctx

	var result *FetchResult
	var fetchErr error

	c.OnRequest(func(r *colly.Request) {
		if f.headerProvider == nil {
			return
		}
		headers, err := f.headerProvider.GetHeaders()
		if err != nil {
			log.Warn().Msgf("获取HTTP头部失败: %v", err)
			return
		}
		for name, values := range headers {
			if len(values) > 0 {
				r.Headers.Set(name, values[0])
			}
		}
	})

	c.OnResponse(func(r *colly.Response) {
		body := r.Body
		encoding := r.Headers.Get("Content-Encoding")
		if encoding != "" {
			decoded, err := decompressResponse(encoding, r.Body)
			if err != nil {
				log.Warn().Msgf("解压响应失败 [%s] (编码=%s): %v", pageURL, encoding, err)
			} else {
				body = decoded
			}
		}
		result = &FetchResult{
			URL:        pageURL,
			FinalURL:   r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       body,
			Headers:    r.Headers.Clone(),
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = fmt.Errorf("%w [%s] 状态码=%d: %v", models.ErrFetchFailed, pageURL, status, err)
	})

	if err := c.Visit(pageURL); err != nil && fetchErr == nil {
		fetchErr = fmt.Errorf("%w [%s]: %v", models.ErrFetchFailed, pageURL, err)
	}
	if fetchErr != nil {
		return nil, fetchErr
	}
	if result == nil {
		return nil, fmt.Errorf("%w [%s]: 没有响应", models.ErrFetchFailed, pageURL)
	}

	log.Debug().Msgf("获取页面: %s (状态码=%d, %d bytes)", pageURL, result.StatusCode, len(result.Body))
	return result, nil
}

// decompressResponse 根据Content-Encoding解码响应体
// gzip 已由Colly处理,这里只处理 br 和 deflate
func decompressResponse(contentEncoding string, body []byte) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(contentEncoding))

	switch encoding {
	case "br":
		decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(body)))
		if err != nil {
			return nil, fmt.Errorf("brotli读取失败: %w", err)
		}
		return decoded, nil

	case "deflate":
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()

		decoded, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("deflate读取失败: %w", err)
		}
		return decoded, nil

	default:
		return body, nil
	}
}
