package core

import (
	"net/http"
	"sync"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/config"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/crawlers"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
)

// HeaderManager 按层合并请求头部,实现 HeaderProvider
// 优先级: 默认 < config.yaml 的 fetch.headers < 头部文件 < 命令行
type HeaderManager struct {
	defaults http.Header
	config   http.Header
	file     http.Header
	cli      http.Header

	policy *utils.HeaderPolicy
	loader *config.HeaderFileLoader

	mu     sync.Mutex
	loaded bool
	merged http.Header
}

// NewHeaderManager 创建头部管理器
// headersFile 为空时不读取头部文件
func NewHeaderManager(userAgent string, configHeaders map[string]string, headersFile string, cliHeaders []string) (*HeaderManager, error) {
	cli, err := models.CliHeaders(cliHeaders).Parse()
	if err != nil {
		return nil, err
	}

	hm := &HeaderManager{
		defaults: defaultHeaders(userAgent),
		config:   toHeader(configHeaders),
		file:     make(http.Header),
		cli:      cli,
		policy:   utils.NewHeaderPolicy(),
	}
	if headersFile != "" {
		hm.loader = config.NewHeaderFileLoader(headersFile)
	}
	return hm, nil
}

func defaultHeaders(userAgent string) http.Header {
	if userAgent == "" {
		userAgent = crawlers.DefaultUserAgent
	}
	return http.Header{
		"User-Agent":      {userAgent},
		"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		"Accept-Language": {"en-US,en;q=0.9"},
		"Accept-Encoding": {"gzip, deflate, br"},
	}
}

func toHeader(m map[string]string) http.Header {
	h := make(http.Header, len(m))
	for name, value := range m {
		h.Set(name, value)
	}
	return h
}

// load 读取头部文件,只执行一次
func (hm *HeaderManager) load() error {
	if hm.loaded {
		return nil
	}
	if hm.loader != nil {
		values, err := hm.loader.Load()
		if err != nil {
			utils.Errorf("加载头部文件失败: %v", err)
			return err
		}
		hm.file = toHeader(values)
		if len(values) > 0 {
			utils.Debugf("从 %s 加载了 %d 个头部: %s", hm.loader.Path(), len(values), hm.policy.RedactString(hm.file))
		}
	}
	hm.loaded = true
	return nil
}

// Validate 按 默认 → 配置 → 文件 → 命令行 的顺序校验
func (hm *HeaderManager) Validate() error {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if err := hm.load(); err != nil {
		return err
	}
	return hm.validateLocked()
}

func (hm *HeaderManager) validateLocked() error {
	layers := []struct {
		name    string
		headers http.Header
	}{
		{"默认", hm.defaults},
		{"配置文件", hm.config},
		{"头部文件", hm.file},
		{"命令行", hm.cli},
	}
	for _, layer := range layers {
		if err := hm.policy.Validate(layer.headers); err != nil {
			utils.Errorf("%s头部验证失败: %v", layer.name, err)
			return err
		}
	}
	return nil
}

func (hm *HeaderManager) mergeLocked() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.file, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetHeaders 实现 HeaderProvider,首次调用时加载并校验,之后返回缓存结果的副本
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	if hm.merged == nil {
		if err := hm.load(); err != nil {
			return nil, err
		}
		if err := hm.validateLocked(); err != nil {
			return nil, err
		}
		hm.merged = hm.mergeLocked()
		utils.Debugf("有效请求头部: %s", hm.policy.RedactString(hm.merged))
	}
	return hm.merged.Clone(), nil
}

// SafeHeaders 脱敏后的有效头部,用于展示
func (hm *HeaderManager) SafeHeaders() (map[string]string, error) {
	headers, err := hm.GetHeaders()
	if err != nil {
		return nil, err
	}
	return hm.policy.Redact(headers), nil
}
