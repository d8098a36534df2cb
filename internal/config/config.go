package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ConfigModule 配置模块接口
type ConfigModule interface {
	SetDefaults()
	Validate() error
	Merge(other ConfigModule) error
}

// Config 查看器配置聚合器
type Config struct {
	// 流列表
	Viewer *ViewerConfig `yaml:"viewer" json:"viewer" toml:"viewer"`

	// 信令服务端点
	Signaling *SignalingConfig `yaml:"signaling" json:"signaling" toml:"signaling"`

	// WebRTC会话与重连策略
	WebRTC *WebRTCConfig `yaml:"webrtc" json:"webrtc" toml:"webrtc"`

	// 状态API
	WebServer *WebServerConfig `yaml:"webserver" json:"webserver" toml:"webserver"`

	Metrics *MetricsConfig `yaml:"metrics" json:"metrics" toml:"metrics"`

	Logging *LoggingConfig `yaml:"logging" json:"logging" toml:"logging"`

	// 生命周期管理配置
	Lifecycle LifecycleConfig `yaml:"lifecycle" json:"lifecycle" toml:"lifecycle"`
}

// LifecycleConfig 生命周期管理配置
type LifecycleConfig struct {
	// 优雅关闭超时时间
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" toml:"shutdown_timeout"`

	// 组件启动超时时间
	StartupTimeout time.Duration `yaml:"startup_timeout" json:"startup_timeout" toml:"startup_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	cfg := &Config{
		Viewer:    DefaultViewerConfig(),
		Signaling: DefaultSignalingConfig(),
		WebRTC:    DefaultWebRTCConfig(),
		WebServer: DefaultWebServerConfig(),
		Metrics:   DefaultMetricsConfig(),
		Logging:   DefaultLoggingConfig(),
	}

	cfg.Lifecycle.ShutdownTimeout = 30 * time.Second
	cfg.Lifecycle.StartupTimeout = 60 * time.Second

	return cfg
}

// LoadConfigFromFile 从文件加载配置，按扩展名选择 YAML 或 TOML
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		return ParseTOML(data)
	default:
		return ParseYAML(data)
	}
}

// ParseYAML 解析YAML配置，未出现的字段保持默认值
func ParseYAML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse yaml config: %w", err)
	}
	return cfg.finish()
}

// ParseTOML 解析TOML配置
func ParseTOML(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse toml config: %w", err)
	}
	return cfg.finish()
}

func (c *Config) finish() (*Config, error) {
	c.fillMissingModules()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return c, nil
}

// fillMissingModules 显式写成 null 的模块恢复为默认值
func (c *Config) fillMissingModules() {
	if c.Viewer == nil {
		c.Viewer = DefaultViewerConfig()
	}
	if c.Signaling == nil {
		c.Signaling = DefaultSignalingConfig()
	}
	if c.WebRTC == nil {
		c.WebRTC = DefaultWebRTCConfig()
	}
	if c.WebServer == nil {
		c.WebServer = DefaultWebServerConfig()
	}
	if c.Metrics == nil {
		c.Metrics = DefaultMetricsConfig()
	}
	if c.Logging == nil {
		c.Logging = DefaultLoggingConfig()
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	modules := []struct {
		name   string
		module interface{ Validate() error }
		isNil  bool
	}{
		{"viewer", c.Viewer, c.Viewer == nil},
		{"signaling", c.Signaling, c.Signaling == nil},
		{"webrtc", c.WebRTC, c.WebRTC == nil},
		{"webserver", c.WebServer, c.WebServer == nil},
		{"metrics", c.Metrics, c.Metrics == nil},
		{"logging", c.Logging, c.Logging == nil},
	}

	for _, m := range modules {
		if m.isNil {
			continue
		}
		if err := m.module.Validate(); err != nil {
			return fmt.Errorf("invalid %s config: %w", m.name, err)
		}
	}

	if err := c.validateLifecycleConfig(); err != nil {
		return fmt.Errorf("invalid lifecycle config: %w", err)
	}

	return c.validateCrossModuleCompatibility()
}

// validateLifecycleConfig 验证生命周期配置
func (c *Config) validateLifecycleConfig() error {
	if c.Lifecycle.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive, got: %v", c.Lifecycle.ShutdownTimeout)
	}
	if c.Lifecycle.StartupTimeout <= 0 {
		return fmt.Errorf("startup timeout must be positive, got: %v", c.Lifecycle.StartupTimeout)
	}
	return nil
}

// validateCrossModuleCompatibility 检查端口冲突
func (c *Config) validateCrossModuleCompatibility() error {
	if c.WebServer == nil || c.Metrics == nil || !c.Metrics.External.Enabled {
		return nil
	}
	if c.WebServer.Port == c.Metrics.External.Port {
		return fmt.Errorf("port conflict: metrics port %d already used by webserver", c.Metrics.External.Port)
	}
	return nil
}

// Merge 合并其他配置
func (c *Config) Merge(other *Config) error {
	if other == nil {
		return nil
	}

	c.fillMissingModules()

	pairs := []struct {
		name  string
		dst   ConfigModule
		src   ConfigModule
		isNil bool
	}{
		{"viewer", c.Viewer, other.Viewer, other.Viewer == nil},
		{"signaling", c.Signaling, other.Signaling, other.Signaling == nil},
		{"webrtc", c.WebRTC, other.WebRTC, other.WebRTC == nil},
		{"webserver", c.WebServer, other.WebServer, other.WebServer == nil},
		{"metrics", c.Metrics, other.Metrics, other.Metrics == nil},
	}

	for _, p := range pairs {
		if p.isNil {
			continue
		}
		if err := p.dst.Merge(p.src); err != nil {
			return fmt.Errorf("failed to merge %s config: %w", p.name, err)
		}
	}

	if other.Logging != nil {
		if err := c.Logging.Merge(other.Logging); err != nil {
			return fmt.Errorf("failed to merge logging config: %w", err)
		}
	}

	if other.Lifecycle.ShutdownTimeout != 0 {
		c.Lifecycle.ShutdownTimeout = other.Lifecycle.ShutdownTimeout
	}
	if other.Lifecycle.StartupTimeout != 0 {
		c.Lifecycle.StartupTimeout = other.Lifecycle.StartupTimeout
	}

	return nil
}

// String 返回配置的字符串表示
func (c *Config) String() string {
	webInfo := "disabled"
	if c.WebServer != nil {
		webInfo = fmt.Sprintf("%s:%d", c.WebServer.Host, c.WebServer.Port)
	}

	streams := 0
	if c.Viewer != nil {
		streams = len(c.Viewer.Streams)
	}

	signaling := ""
	if c.Signaling != nil {
		signaling = c.Signaling.BaseURL
	}

	return fmt.Sprintf("Config{WebServer: %s, Signaling: %s, Streams: %d}", webInfo, signaling, streams)
}

// SaveToFile 保存配置到文件
func (c *Config) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfigFromEnv 从环境变量加载配置
func LoadConfigFromEnv() *Config {
	cfg := DefaultConfig()
	cfg.ApplyEnv()
	return cfg
}

// ApplyEnv 用环境变量覆盖当前配置
func (c *Config) ApplyEnv() {
	c.fillMissingModules()

	if streams := os.Getenv("BDWIND_VIEWER_STREAMS"); streams != "" {
		c.Viewer.Streams = ParseStreamList(streams)
	}
	if base := os.Getenv("BDWIND_VIEWER_SIGNALING_URL"); base != "" {
		c.Signaling.BaseURL = base
	}
	if delay := os.Getenv("BDWIND_VIEWER_RETRY_DELAY"); delay != "" {
		if d, err := time.ParseDuration(delay); err == nil {
			c.WebRTC.RetryDelay = d
		}
	}

	env := LoadLoggingConfigFromEnv()
	if os.Getenv("BDWIND_VIEWER_LOG_LEVEL") != "" {
		c.Logging.Level = env.Level
	}
	if os.Getenv("BDWIND_VIEWER_LOG_FORMAT") != "" {
		c.Logging.Format = env.Format
	}
	if os.Getenv("BDWIND_VIEWER_LOG_OUTPUT") != "" {
		c.Logging.Output = env.Output
	}
	if os.Getenv("BDWIND_VIEWER_LOG_FILE") != "" {
		c.Logging.File = env.File
	}
}
