package config

import (
	"fmt"
	"strings"
)

// MetricsConfig Metrics配置模块
type MetricsConfig struct {
	// Namespace 指标名前缀
	Namespace string `yaml:"namespace" json:"namespace" toml:"namespace"`

	// 外部暴露配置（默认禁用，为Prometheus等外部工具提供数据）
	External ExternalMetricsConfig `yaml:"external" json:"external" toml:"external"`
}

// ExternalMetricsConfig 外部监控配置
type ExternalMetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" toml:"enabled"`
	Port    int    `yaml:"port" json:"port" toml:"port"`
	Path    string `yaml:"path" json:"path" toml:"path"`
	Host    string `yaml:"host" json:"host" toml:"host"`
}

// DefaultMetricsConfig 返回默认的Metrics配置
func DefaultMetricsConfig() *MetricsConfig {
	config := &MetricsConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults 设置默认值
func (c *MetricsConfig) SetDefaults() {
	c.Namespace = "bdwind_viewer"
	c.External = ExternalMetricsConfig{
		Enabled: false,
		Port:    9090,
		Path:    "/metrics",
		Host:    "0.0.0.0",
	}
}

// Validate 验证配置
func (c *MetricsConfig) Validate() error {
	if strings.ContainsAny(c.Namespace, " -.") {
		return fmt.Errorf("invalid metrics namespace: %q", c.Namespace)
	}

	// 外部暴露仅在启用时验证
	if !c.External.Enabled {
		return nil
	}
	if c.External.Port < 1 || c.External.Port > 65535 {
		return fmt.Errorf("invalid external metrics port: %d", c.External.Port)
	}
	if !strings.HasPrefix(c.External.Path, "/") {
		return fmt.Errorf("external metrics path must start with '/': %s", c.External.Path)
	}
	if c.External.Host == "" {
		return fmt.Errorf("external metrics host cannot be empty")
	}
	return nil
}

// Merge 合并其他配置模块
func (c *MetricsConfig) Merge(other ConfigModule) error {
	otherConfig, ok := other.(*MetricsConfig)
	if !ok {
		return fmt.Errorf("cannot merge different config types")
	}

	if otherConfig.Namespace != "" {
		c.Namespace = otherConfig.Namespace
	}
	if otherConfig.External.Enabled {
		c.External.Enabled = true
	}
	if otherConfig.External.Port != 0 {
		c.External.Port = otherConfig.External.Port
	}
	if otherConfig.External.Path != "" {
		c.External.Path = otherConfig.External.Path
	}
	if otherConfig.External.Host != "" {
		c.External.Host = otherConfig.External.Host
	}
	return nil
}

// GetExternalEndpoint 获取外部metrics端点地址
func (c *MetricsConfig) GetExternalEndpoint() string {
	return fmt.Sprintf("http://%s:%d%s", c.External.Host, c.External.Port, c.External.Path)
}
