package crawlers

import (
	"context"
	"fmt"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/exhaustion"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// BrowserConfig 浏览器配置
type BrowserConfig struct {
	Headless       bool
	Stealth        bool
	BinPath        string        // 为空时由launcher自动查找/下载
	NavTimeout     time.Duration // 导航+加载超时 (默认:30s)
	BlockResources bool          // 拦截图片/字体/媒体
	Resource       ResourceMonitorConfig
}

// Browser 驱动Chromium,为内容展开提供页面会话
type Browser struct {
	cfg            BrowserConfig
	browser        *rod.Browser
	pool           *PagePool
	monitor        *ResourceMonitor
	headerProvider models.HeaderProvider
}

// NewBrowser 启动并连接浏览器
func NewBrowser(cfg BrowserConfig, headerProvider models.HeaderProvider) (*Browser, error) {
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 30 * time.Second
	}

	l := launcher.New().Headless(cfg.Headless)
	if cfg.BinPath != "" {
		l = l.Bin(cfg.BinPath)
	}
	// 允许自签名、过期或主机名不匹配的HTTPS站点
	l = l.Set("ignore-certificate-errors")

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("启动浏览器失败: %w", err)
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	log.Debug().Msgf("浏览器已启动: %s (headless=%v, stealth=%v)", controlURL, cfg.Headless, cfg.Stealth)

	monitor := NewResourceMonitor(cfg.Resource)
	monitor.StartMonitoring(time.Second)

	var blocked []proto.NetworkResourceType
	if cfg.BlockResources {
		blocked = []proto.NetworkResourceType{
			proto.NetworkResourceTypeImage,
			proto.NetworkResourceTypeFont,
			proto.NetworkResourceTypeMedia,
		}
	}

	return &Browser{
		cfg:            cfg,
		browser:        rb,
		pool:           NewPagePool(rb, monitor, cfg.Stealth, blocked),
		monitor:        monitor,
		headerProvider: headerProvider,
	}, nil
}

// OpenSession 打开页面并等待加载完成
// 资源不足时返回错误,调用方跳过该页的内容展开
func (b *Browser) OpenSession(ctx context.Context, pageURL string) (exhaustion.PageSession, error) {
	if ok, reason := b.monitor.CheckResourceAvailability(); !ok {
		return nil, fmt.Errorf("资源不足,无法打开浏览器会话: %s", reason)
	}
	if pressure := b.monitor.MemoryPressure(); pressure != "normal" {
		log.Warn().Str("pressure", pressure).Int("tabs", b.pool.Size()).Msg("⚠️ 内存紧张")
	}

	page, err := b.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if b.headerProvider != nil {
		if err := applyHeaders(page, b.headerProvider); err != nil {
			log.Warn().Msgf("设置浏览器请求头失败: %v", err)
		}
	}

	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		b.pool.Release(page)
		return nil, fmt.Errorf("导航到 %s 失败: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		log.Warn().Msgf("等待页面加载超时 [%s]: %v", pageURL, err)
	}

	return &RodSession{page: page, pool: b.pool, startURL: pageURL}, nil
}

// applyHeaders User-Agent 走专门的覆盖接口,其余作为额外请求头
func applyHeaders(page *rod.Page, provider models.HeaderProvider) error {
	headers, err := provider.GetHeaders()
	if err != nil {
		return err
	}

	var extra []string
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		switch name {
		case "User-Agent":
			if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: values[0]}); err != nil {
				return err
			}
		case "Accept-Encoding":
			// 由浏览器自行协商
		default:
			extra = append(extra, name, values[0])
		}
	}
	if len(extra) == 0 {
		return nil
	}
	_, err = page.SetExtraHeaders(extra)
	return err
}

// Close 关闭浏览器
func (b *Browser) Close() {
	b.pool.Close()
	b.monitor.StopMonitoring()
	if err := b.browser.Close(); err != nil {
		log.Warn().Err(err).Msg("关闭浏览器失败")
	}
	log.Debug().Msg("浏览器已关闭")
}
