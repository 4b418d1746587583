package core

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/CompCrawl/internal/crawlers"
	"github.com/RecoveryAshes/CompCrawl/internal/models"
	"github.com/RecoveryAshes/CompCrawl/internal/storage"
	"github.com/RecoveryAshes/CompCrawl/internal/utils"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 应用程序配置
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Output   storage.Config `mapstructure:"output"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	Resource ResourceConfig `mapstructure:"resource"`
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

// BrowserConfig 页面驱动配置,非空时覆盖站点设置
type BrowserConfig struct {
	Driver string `mapstructure:"driver"`
}

// ResourceConfig 按系统资源限制并发页面数
type ResourceConfig struct {
	CapPages            bool  `mapstructure:"cap_pages"`
	SafetyReserveMemory int64 `mapstructure:"safety_reserve_memory_mb"`
	PageMemoryUsage     int64 `mapstructure:"page_memory_mb"`
}

// monitorConfig 转换为资源监控配置(MB -> 字节)
func (rc ResourceConfig) monitorConfig() crawlers.ResourceMonitorConfig {
	cfg := crawlers.DefaultResourceMonitorConfig()
	if rc.SafetyReserveMemory > 0 {
		cfg.SafetyReserveMemory = rc.SafetyReserveMemory * 1024 * 1024
	}
	if rc.PageMemoryUsage > 0 {
		cfg.PageMemoryUsage = rc.PageMemoryUsage * 1024 * 1024
	}
	return cfg
}

// LogConfig 转换为日志初始化参数
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

// LoadConfig 加载应用配置文件
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
			v.AddConfigPath(filepath.Join(home, ".compcrawl"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 搜索路径下没有配置文件时使用默认值
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return &config, nil
}

// setDefaults 设置默认配置值
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)

	v.SetDefault("output.backend", "file")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.dsn", "")

	v.SetDefault("browser.driver", "")

	v.SetDefault("resource.cap_pages", true)
	v.SetDefault("resource.safety_reserve_memory_mb", 1024)
	v.SetDefault("resource.page_memory_mb", 100)
}

// Overrides 命令行参数,零值表示不覆盖
type Overrides struct {
	MaxPages int
	Browser  string
	Output   string
	LogLevel string
}

// MergeCLIFlags 合并命令行参数到应用配置
func (c *Config) MergeCLIFlags(o Overrides) {
	if o.Output != "" {
		c.Output.Dir = o.Output
	}
	if o.LogLevel != "" {
		c.Logging.Level = o.LogLevel
	}
	if o.Browser != "" {
		c.Browser.Driver = o.Browser
	}
}

// ApplyTo 把应用配置和命令行参数中的抓取相关项写入站点设置
// 优先级: 站点设置 < 应用配置 < 命令行
func (c *Config) ApplyTo(site *models.SiteConfig, o Overrides) {
	if c.Browser.Driver != "" {
		site.Settings.Browser = c.Browser.Driver
	}
	if o.Browser != "" {
		site.Settings.Browser = o.Browser
	}
	if o.MaxPages > 0 {
		site.Settings.MaxParallelPages = o.MaxPages
	}
}

// LoadSiteConfig 加载站点配置(YAML或JSON),填充默认设置
// 只解码,不验证;调用方在合并命令行参数后调用 Validate
func LoadSiteConfig(path string) (*models.SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ConfigError{Scope: path, Reason: "读取站点配置失败", Cause: err}
	}
	return ParseSiteConfig(data, path)
}

// ParseSiteConfig 解析站点配置内容
// 使用 YAML 解析(JSON 是其子集),保留目标名和分组名的大小写
func ParseSiteConfig(data []byte, source string) (*models.SiteConfig, error) {
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &models.ConfigError{Scope: source, Reason: "站点配置格式错误", Cause: err}
	}
	if raw == nil {
		return nil, &models.ConfigError{Scope: source, Reason: "站点配置为空"}
	}

	site := &models.SiteConfig{Settings: models.DefaultSettings()}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		ZeroFields:       true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
		),
		Result: site,
	})
	if err != nil {
		return nil, fmt.Errorf("创建配置解码器失败: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, &models.ConfigError{Scope: source, Reason: "站点配置字段无法解析", Cause: err}
	}
	if site.Settings.Headers == nil {
		site.Settings.Headers = map[string]string{}
	}
	return site, nil
}
