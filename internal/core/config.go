package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/crawlers"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/exhaustion"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/models"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/scoring"
	"github.com/BIM-Engine-Team/BIM-Category-URL-Crawler/internal/utils"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀,例如 BIMCRAWLER_SCORER_API_KEY
const EnvPrefix = "BIMCRAWLER"

// 评分后端
const (
	ProviderStatic    = "static" // 离线启发式评分
	ProviderOpenAI    = scoring.ProviderOpenAI
	ProviderAnthropic = scoring.ProviderAnthropic
	ProviderGoogle    = scoring.ProviderGoogle
)

// Config 应用程序配置
type Config struct {
	Explore    ExploreSection    `mapstructure:"explore"`
	Fetch      FetchSection      `mapstructure:"fetch"`
	Exhaustion ExhaustionSection `mapstructure:"exhaustion"`
	Scorer     ScorerSection     `mapstructure:"scorer"`
	Browser    BrowserSection    `mapstructure:"browser"`
	Resource   ResourceSection   `mapstructure:"resource"`
	Logging    LoggingConfig     `mapstructure:"logging"`
	Output     OutputConfig      `mapstructure:"output"`
}

// ExploreSection 探索循环配置
type ExploreSection struct {
	MaxPages         int           `mapstructure:"max_pages"`
	Delay            time.Duration `mapstructure:"delay"`
	LowThreshold     float64       `mapstructure:"low_threshold"`
	HighThreshold    float64       `mapstructure:"high_threshold"`
	EnableExhaustion bool          `mapstructure:"enable_exhaustion"`
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
}

// FetchSection 静态抓取配置
type FetchSection struct {
	Timeout            time.Duration     `mapstructure:"timeout"`
	UserAgent          string            `mapstructure:"user_agent"`
	MaxBodySize        int               `mapstructure:"max_body_size"`
	InsecureSkipVerify bool              `mapstructure:"insecure_skip_verify"`
	Headers            map[string]string `mapstructure:"headers"`
	HeadersFile        string            `mapstructure:"headers_file"`
	RespectRobots      bool              `mapstructure:"respect_robots"`
	RobotsTTL          time.Duration     `mapstructure:"robots_ttl"`
}

// ExhaustionSection 动态内容展开配置
type ExhaustionSection struct {
	PaginationCap      int           `mapstructure:"pagination_cap"`
	LoadMoreCap        int           `mapstructure:"load_more_cap"`
	ScrollAttempts     int           `mapstructure:"scroll_attempts"`
	ScrollNoChangeStop int           `mapstructure:"scroll_no_change_stop"`
	WaitTimeout        time.Duration `mapstructure:"wait_timeout"`
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	InfiniteScroll     bool          `mapstructure:"infinite_scroll"`
	ItemSelectors      []string      `mapstructure:"item_selectors"`
	LoadingSelectors   []string      `mapstructure:"loading_selectors"`
}

// ScorerSection 评分器配置
type ScorerSection struct {
	Provider          string        `mapstructure:"provider"`
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	Temperature       float32       `mapstructure:"temperature"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	CacheSize         int           `mapstructure:"cache_size"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RetryBaseDelay    time.Duration `mapstructure:"retry_base_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
	SystemPrompt      string        `mapstructure:"system_prompt"`
}

// BrowserSection 浏览器配置
type BrowserSection struct {
	Enabled        bool          `mapstructure:"enabled"`
	Headless       bool          `mapstructure:"headless"`
	Stealth        bool          `mapstructure:"stealth"`
	BinPath        string        `mapstructure:"bin_path"`
	NavTimeout     time.Duration `mapstructure:"nav_timeout"`
	BlockResources bool          `mapstructure:"block_resources"`
}

// ResourceSection 浏览器资源限制 (单位MB)
type ResourceSection struct {
	SafetyReserveMB   int64 `mapstructure:"safety_reserve_mb"`
	SafetyThresholdMB int64 `mapstructure:"safety_threshold_mb"`
	CPULoadThreshold  int   `mapstructure:"cpu_load_threshold"`
	MaxTabs           int   `mapstructure:"max_tabs"`
	TabMemoryMB       int64 `mapstructure:"tab_memory_mb"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig 日志轮转配置
type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	BaseDir          string `mapstructure:"base_dir"`
	DomainSeparation bool   `mapstructure:"domain_separation"`
	SaveTree         bool   `mapstructure:"save_tree"`
	Database         string `mapstructure:"database"` // 为空时不写sqlite
}

// LoadConfig 加载配置文件
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".bimcrawler"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 配置文件不存在时使用默认值
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, &models.ConfigError{FilePath: configPath, Cause: err}
		}
	} else {
		utils.Debugf("使用配置文件: %s", v.ConfigFileUsed())
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("explore.max_pages", models.DefaultMaxPages)
	v.SetDefault("explore.delay", models.DefaultDelay)
	v.SetDefault("explore.low_threshold", models.DefaultLowThreshold)
	v.SetDefault("explore.high_threshold", models.DefaultHighThreshold)
	v.SetDefault("explore.enable_exhaustion", true)
	v.SetDefault("explore.page_timeout", DefaultPageTimeout)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.user_agent", crawlers.DefaultUserAgent)
	v.SetDefault("fetch.max_body_size", crawlers.DefaultMaxBodySize)
	v.SetDefault("fetch.insecure_skip_verify", false)
	v.SetDefault("fetch.headers", map[string]string{})
	v.SetDefault("fetch.headers_file", "")
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.robots_ttl", time.Hour)

	ex := exhaustion.DefaultConfig()
	v.SetDefault("exhaustion.pagination_cap", ex.PaginationCap)
	v.SetDefault("exhaustion.load_more_cap", ex.LoadMoreCap)
	v.SetDefault("exhaustion.scroll_attempts", ex.ScrollAttempts)
	v.SetDefault("exhaustion.scroll_no_change_stop", ex.ScrollNoChangeStop)
	v.SetDefault("exhaustion.wait_timeout", ex.WaitTimeout)
	v.SetDefault("exhaustion.poll_interval", ex.PollInterval)
	v.SetDefault("exhaustion.infinite_scroll", ex.InfiniteScroll)
	v.SetDefault("exhaustion.item_selectors", ex.ItemSelectors)
	v.SetDefault("exhaustion.loading_selectors", ex.LoadingSelectors)

	retry := scoring.DefaultRetryPolicy()
	v.SetDefault("scorer.provider", ProviderStatic)
	v.SetDefault("scorer.base_url", "") // 为空时使用各后端的默认地址
	v.SetDefault("scorer.api_key", "")
	v.SetDefault("scorer.model", "") // 为空时使用各后端的默认模型
	v.SetDefault("scorer.temperature", 0.1)
	v.SetDefault("scorer.timeout", 60*time.Second)
	v.SetDefault("scorer.requests_per_minute", 50)
	v.SetDefault("scorer.cache_ttl", 24*time.Hour)
	v.SetDefault("scorer.cache_size", 1000)
	v.SetDefault("scorer.max_attempts", retry.MaxAttempts)
	v.SetDefault("scorer.retry_base_delay", retry.BaseDelay)
	v.SetDefault("scorer.retry_max_delay", retry.MaxDelay)
	v.SetDefault("scorer.system_prompt", "")

	v.SetDefault("browser.enabled", true)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.bin_path", "")
	v.SetDefault("browser.nav_timeout", 30*time.Second)
	v.SetDefault("browser.block_resources", true)

	v.SetDefault("resource.safety_reserve_mb", 512)
	v.SetDefault("resource.safety_threshold_mb", 256)
	v.SetDefault("resource.cpu_load_threshold", 90)
	v.SetDefault("resource.max_tabs", 4)
	v.SetDefault("resource.tab_memory_mb", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.base_dir", "output")
	v.SetDefault("output.domain_separation", true)
	v.SetDefault("output.save_tree", true)
	v.SetDefault("output.database", "")
}

// CLIOverrides 命令行覆盖项,零值或nil表示未设置
type CLIOverrides struct {
	MaxPages         int
	Delay            *time.Duration
	LowThreshold     *float64
	HighThreshold    *float64
	EnableExhaustion *bool
	RespectRobots    *bool
	Headless         *bool
	Browser          *bool
	Provider         string
	Model            string
	APIKey           string
	OutputDir        string
	Database         string
	LogLevel         string
}

// MergeCLIFlags 合并命令行参数到配置,命令行优先于配置文件
func (c *Config) MergeCLIFlags(o CLIOverrides) {
	if o.MaxPages > 0 {
		c.Explore.MaxPages = o.MaxPages
	}
	if o.Delay != nil {
		c.Explore.Delay = *o.Delay
	}
	if o.LowThreshold != nil {
		c.Explore.LowThreshold = *o.LowThreshold
	}
	if o.HighThreshold != nil {
		c.Explore.HighThreshold = *o.HighThreshold
	}
	if o.EnableExhaustion != nil {
		c.Explore.EnableExhaustion = *o.EnableExhaustion
	}
	if o.RespectRobots != nil {
		c.Fetch.RespectRobots = *o.RespectRobots
	}
	if o.Headless != nil {
		c.Browser.Headless = *o.Headless
	}
	if o.Browser != nil {
		c.Browser.Enabled = *o.Browser
	}
	if o.Provider != "" {
		c.Scorer.Provider = o.Provider
	}
	if o.Model != "" {
		c.Scorer.Model = o.Model
	}
	if o.APIKey != "" {
		c.Scorer.APIKey = o.APIKey
	}
	if o.OutputDir != "" {
		c.Output.BaseDir = o.OutputDir
	}
	if o.Database != "" {
		c.Output.Database = o.Database
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
}

// Validate 检查跨字段约束
func (c *Config) Validate() error {
	switch c.Scorer.Provider {
	case ProviderStatic, ProviderOpenAI, ProviderAnthropic, ProviderGoogle:
	default:
		return fmt.Errorf("未知的评分器: %q (可选: %s, %s, %s, %s)", c.Scorer.Provider,
			ProviderStatic, ProviderOpenAI, ProviderAnthropic, ProviderGoogle)
	}
	if c.Explore.MaxPages < 1 {
		return fmt.Errorf("explore.max_pages 必须大于0")
	}
	if c.Explore.LowThreshold >= c.Explore.HighThreshold {
		return fmt.Errorf("explore.low_threshold(%.1f) 必须小于 explore.high_threshold(%.1f)",
			c.Explore.LowThreshold, c.Explore.HighThreshold)
	}
	if c.Scorer.MaxAttempts < 1 {
		return fmt.Errorf("scorer.max_attempts 必须大于0")
	}
	return nil
}

// ExploreConfig 生成单次探索配置
func (c *Config) ExploreConfig(startURL string) models.ExploreConfig {
	return models.ExploreConfig{
		StartURL:         startURL,
		MaxPages:         c.Explore.MaxPages,
		Delay:            c.Explore.Delay,
		LowThreshold:     c.Explore.LowThreshold,
		HighThreshold:    c.Explore.HighThreshold,
		EnableExhaustion: c.Explore.EnableExhaustion,
		RespectRobots:    c.Fetch.RespectRobots,
	}
}

// FetcherConfig 生成抓取器配置
func (c *Config) FetcherConfig() crawlers.FetcherConfig {
	return crawlers.FetcherConfig{
		Timeout:            c.Fetch.Timeout,
		UserAgent:          c.Fetch.UserAgent,
		MaxBodySize:        c.Fetch.MaxBodySize,
		InsecureSkipVerify: c.Fetch.InsecureSkipVerify,
	}
}

// ExhaustionConfig 生成展开引擎配置
func (c *Config) ExhaustionConfig() exhaustion.Config {
	e := c.Exhaustion
	return exhaustion.Config{
		PaginationCap:      e.PaginationCap,
		LoadMoreCap:        e.LoadMoreCap,
		ScrollAttempts:     e.ScrollAttempts,
		ScrollNoChangeStop: e.ScrollNoChangeStop,
		WaitTimeout:        e.WaitTimeout,
		PollInterval:       e.PollInterval,
		ItemSelectors:      e.ItemSelectors,
		LoadingSelectors:   e.LoadingSelectors,
		InfiniteScroll:     e.InfiniteScroll,
	}
}

// HTTPClientConfig 生成评分HTTP客户端配置
func (c *Config) HTTPClientConfig() scoring.HTTPClientConfig {
	s := c.Scorer
	return scoring.HTTPClientConfig{
		BaseURL:           s.BaseURL,
		APIKey:            s.APIKey,
		Model:             s.Model,
		Temperature:       s.Temperature,
		Timeout:           s.Timeout,
		RequestsPerMinute: s.RequestsPerMinute,
		CacheTTL:          s.CacheTTL,
		CacheSize:         s.CacheSize,
	}
}

// RetryPolicy 生成评分重试策略
func (c *Config) RetryPolicy() scoring.RetryPolicy {
	p := scoring.DefaultRetryPolicy()
	p.MaxAttempts = c.Scorer.MaxAttempts
	p.BaseDelay = c.Scorer.RetryBaseDelay
	p.MaxDelay = c.Scorer.RetryMaxDelay
	return p
}

// BrowserConfig 生成浏览器配置
func (c *Config) BrowserConfig() crawlers.BrowserConfig {
	const mb = 1024 * 1024
	return crawlers.BrowserConfig{
		Headless:       c.Browser.Headless,
		Stealth:        c.Browser.Stealth,
		BinPath:        c.Browser.BinPath,
		NavTimeout:     c.Browser.NavTimeout,
		BlockResources: c.Browser.BlockResources,
		Resource: crawlers.ResourceMonitorConfig{
			SafetyReserveMemory: c.Resource.SafetyReserveMB * mb,
			SafetyThreshold:     c.Resource.SafetyThresholdMB * mb,
			CPULoadThreshold:    c.Resource.CPULoadThreshold,
			MaxTabsLimit:        c.Resource.MaxTabs,
			TabMemoryUsage:      c.Resource.TabMemoryMB * mb,
		},
	}
}

// LogConfig 生成日志配置
func (c *Config) LogConfig() utils.LogConfig {
	return utils.LogConfig{
		Level:      c.Logging.Level,
		LogDir:     c.Logging.LogDir,
		MaxSize:    c.Logging.Rotation.MaxSize,
		MaxBackups: c.Logging.Rotation.MaxBackups,
		MaxAge:     c.Logging.Rotation.MaxAge,
		Compress:   c.Logging.Rotation.Compress,
	}
}
