package config

import (
	"fmt"
	"time"
)

// WebServerConfig 状态API服务器配置
type WebServerConfig struct {
	Enabled    bool      `yaml:"enabled" json:"enabled" toml:"enabled"`
	Host       string    `yaml:"host" json:"host" toml:"host"`
	Port       int       `yaml:"port" json:"port" toml:"port"`
	EnableTLS  bool      `yaml:"enable_tls" json:"enable_tls" toml:"enable_tls"`
	TLS        TLSConfig `yaml:"tls" json:"tls" toml:"tls"`
	EnableCORS bool      `yaml:"enable_cors" json:"enable_cors" toml:"enable_cors"`

	// StatusPushInterval websocket 心跳间隔
	StatusPushInterval time.Duration `yaml:"status_push_interval" json:"status_push_interval" toml:"status_push_interval"`
}

// TLSConfig TLS配置
type TLSConfig struct {
	CertFile string `yaml:"cert_file" json:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file" toml:"key_file"`
}

// DefaultWebServerConfig 返回默认的WebServer配置
func DefaultWebServerConfig() *WebServerConfig {
	config := &WebServerConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults 设置默认值
func (c *WebServerConfig) SetDefaults() {
	c.Enabled = true
	c.Host = "0.0.0.0"
	c.Port = 8080
	c.EnableTLS = false
	c.TLS = TLSConfig{}
	c.EnableCORS = true
	c.StatusPushInterval = 30 * time.Second
}

// Validate 验证配置
func (c *WebServerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Port)
	}

	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}

	if c.EnableTLS {
		if c.TLS.CertFile == "" {
			return fmt.Errorf("TLS cert file is required when TLS is enabled")
		}
		if c.TLS.KeyFile == "" {
			return fmt.Errorf("TLS key file is required when TLS is enabled")
		}
	}

	if c.StatusPushInterval <= 0 {
		return fmt.Errorf("status push interval must be positive, got: %v", c.StatusPushInterval)
	}

	return nil
}

// Merge 合并其他配置模块
func (c *WebServerConfig) Merge(other ConfigModule) error {
	otherConfig, ok := other.(*WebServerConfig)
	if !ok {
		return fmt.Errorf("cannot merge different config types")
	}

	// 合并非默认值
	if otherConfig.Host != "" && otherConfig.Host != "0.0.0.0" {
		c.Host = otherConfig.Host
	}
	if otherConfig.Port != 0 && otherConfig.Port != 8080 {
		c.Port = otherConfig.Port
	}
	if otherConfig.EnableTLS {
		c.EnableTLS = true
	}
	if otherConfig.TLS.CertFile != "" {
		c.TLS.CertFile = otherConfig.TLS.CertFile
	}
	if otherConfig.TLS.KeyFile != "" {
		c.TLS.KeyFile = otherConfig.TLS.KeyFile
	}
	if otherConfig.StatusPushInterval != 0 {
		c.StatusPushInterval = otherConfig.StatusPushInterval
	}

	return nil
}
