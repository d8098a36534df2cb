package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// SignalingConfig 远端信令服务配置
type SignalingConfig struct {
	// BaseURL 信令服务地址，例如 http://localhost:8083
	BaseURL string `yaml:"base_url" json:"base_url" toml:"base_url"`

	// ICEServersPath ICE服务器配置端点
	ICEServersPath string `yaml:"ice_servers_path" json:"ice_servers_path" toml:"ice_servers_path"`

	// CodecPath 编解码器端点，{id} 为流标识占位符
	CodecPath string `yaml:"codec_path" json:"codec_path" toml:"codec_path"`

	// ReceiverPath offer/answer 交换端点
	ReceiverPath string `yaml:"receiver_path" json:"receiver_path" toml:"receiver_path"`

	// RequestTimeout 单次HTTP请求超时
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout" toml:"request_timeout"`
}

// DefaultSignalingConfig 返回默认信令配置
func DefaultSignalingConfig() *SignalingConfig {
	config := &SignalingConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults 设置默认值
func (c *SignalingConfig) SetDefaults() {
	c.BaseURL = "http://localhost:8083"
	c.ICEServersPath = "/api/ice-servers"
	c.CodecPath = "/stream/codec/{id}"
	c.ReceiverPath = "/stream/receiver/{id}"
	c.RequestTimeout = 10 * time.Second
}

// Validate 验证配置
func (c *SignalingConfig) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base url must be http or https, got %q", c.BaseURL)
	}
	if u.Host == "" {
		return fmt.Errorf("base url must have a host: %q", c.BaseURL)
	}

	if !strings.HasPrefix(c.ICEServersPath, "/") {
		return fmt.Errorf("ice servers path must start with '/': %s", c.ICEServersPath)
	}
	for name, path := range map[string]string{"codec": c.CodecPath, "receiver": c.ReceiverPath} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s path must start with '/': %s", name, path)
		}
		if !strings.Contains(path, "{id}") {
			return fmt.Errorf("%s path must contain the {id} placeholder: %s", name, path)
		}
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got: %v", c.RequestTimeout)
	}
	return nil
}

// Merge 合并其他配置模块
func (c *SignalingConfig) Merge(other ConfigModule) error {
	otherConfig, ok := other.(*SignalingConfig)
	if !ok {
		return fmt.Errorf("cannot merge different config types")
	}

	if otherConfig.BaseURL != "" {
		c.BaseURL = otherConfig.BaseURL
	}
	if otherConfig.ICEServersPath != "" {
		c.ICEServersPath = otherConfig.ICEServersPath
	}
	if otherConfig.CodecPath != "" {
		c.CodecPath = otherConfig.CodecPath
	}
	if otherConfig.ReceiverPath != "" {
		c.ReceiverPath = otherConfig.ReceiverPath
	}
	if otherConfig.RequestTimeout != 0 {
		c.RequestTimeout = otherConfig.RequestTimeout
	}
	return nil
}
