package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// WebRTCConfig 会话建立与重连策略
type WebRTCConfig struct {
	// FallbackICEServers 远端未返回任何ICE服务器时使用
	FallbackICEServers []ICEServerConfig `yaml:"fallback_ice_servers" json:"fallback_ice_servers" toml:"fallback_ice_servers"`

	// GatherTimeout ICE候选收集的最长等待时间，超时后仍提交offer
	GatherTimeout time.Duration `yaml:"gather_timeout" json:"gather_timeout" toml:"gather_timeout"`

	// RetryDelay 失败或断开后重建会话前的固定延迟
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" toml:"retry_delay"`

	// RetryJitter 叠加在RetryDelay上的随机抖动上限，0表示不抖动
	RetryJitter time.Duration `yaml:"retry_jitter" json:"retry_jitter" toml:"retry_jitter"`

	// IncludeLoopback 是否收集回环地址候选
	IncludeLoopback bool `yaml:"include_loopback" json:"include_loopback" toml:"include_loopback"`

	// DisableMDNS 关闭 mDNS 候选
	DisableMDNS bool `yaml:"disable_mdns" json:"disable_mdns" toml:"disable_mdns"`
}

// ICEServerConfig ICE服务器配置
type ICEServerConfig struct {
	URLs       []string `yaml:"urls" json:"urls" toml:"urls"`
	Username   string   `yaml:"username,omitempty" json:"username,omitempty" toml:"username"`
	Credential string   `yaml:"credential,omitempty" json:"credential,omitempty" toml:"credential"`
}

// DefaultWebRTCConfig 返回默认的WebRTC配置
func DefaultWebRTCConfig() *WebRTCConfig {
	config := &WebRTCConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults 设置默认值
func (c *WebRTCConfig) SetDefaults() {
	c.FallbackICEServers = []ICEServerConfig{}
	c.GatherTimeout = 5 * time.Second
	c.RetryDelay = 3 * time.Second
	c.RetryJitter = 0
	c.IncludeLoopback = false
	c.DisableMDNS = false
}

// Validate 验证配置
func (c *WebRTCConfig) Validate() error {
	if c.GatherTimeout <= 0 {
		return fmt.Errorf("gather timeout must be positive, got: %v", c.GatherTimeout)
	}
	if c.RetryDelay <= 0 {
		return fmt.Errorf("retry delay must be positive, got: %v", c.RetryDelay)
	}
	if c.RetryJitter < 0 {
		return fmt.Errorf("retry jitter cannot be negative, got: %v", c.RetryJitter)
	}

	for i, server := range c.FallbackICEServers {
		if err := validateICEServer(&server); err != nil {
			return fmt.Errorf("invalid ICE server %d: %w", i, err)
		}
	}
	return nil
}

// validateICEServer 验证ICE服务器配置
func validateICEServer(server *ICEServerConfig) error {
	if len(server.URLs) == 0 {
		return fmt.Errorf("ICE server must have at least one URL")
	}

	for j, urlStr := range server.URLs {
		if err := validateICEServerURL(urlStr); err != nil {
			return fmt.Errorf("invalid URL %d: %w", j, err)
		}

		// TURN服务器需要认证信息
		if strings.HasPrefix(urlStr, "turn:") || strings.HasPrefix(urlStr, "turns:") {
			if server.Username == "" {
				return fmt.Errorf("TURN server requires username")
			}
			if server.Credential == "" {
				return fmt.Errorf("TURN server requires credential")
			}
		}
	}

	return nil
}

// validateICEServerURL 验证ICE服务器URL
func validateICEServerURL(urlStr string) error {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	switch parsedURL.Scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return fmt.Errorf("invalid scheme: %s (must be one of: stun, stuns, turn, turns)", parsedURL.Scheme)
	}

	// STUN/TURN URL 的主机名在 Opaque 中
	hostPart := parsedURL.Opaque
	if hostPart == "" {
		hostPart = parsedURL.Host
	}
	if hostPart == "" {
		return fmt.Errorf("URL must have a host")
	}
	if i := strings.Index(hostPart, "?"); i >= 0 {
		hostPart = hostPart[:i]
	}

	host, port, err := net.SplitHostPort(hostPart)
	if err != nil {
		host = hostPart
	} else if port == "" {
		return fmt.Errorf("port cannot be empty when specified")
	}
	if net.ParseIP(host) == nil && len(host) > 253 {
		return fmt.Errorf("hostname too long: %s", host)
	}

	return nil
}

// Merge 合并其他配置模块
func (c *WebRTCConfig) Merge(other ConfigModule) error {
	otherConfig, ok := other.(*WebRTCConfig)
	if !ok {
		return fmt.Errorf("cannot merge different config types")
	}

	if len(otherConfig.FallbackICEServers) > 0 {
		c.FallbackICEServers = otherConfig.FallbackICEServers
	}
	if otherConfig.GatherTimeout != 0 {
		c.GatherTimeout = otherConfig.GatherTimeout
	}
	if otherConfig.RetryDelay != 0 {
		c.RetryDelay = otherConfig.RetryDelay
	}
	if otherConfig.RetryJitter != 0 {
		c.RetryJitter = otherConfig.RetryJitter
	}
	if otherConfig.IncludeLoopback {
		c.IncludeLoopback = true
	}
	if otherConfig.DisableMDNS {
		c.DisableMDNS = true
	}

	return nil
}

// AddICEServer 添加备用ICE服务器
func (c *WebRTCConfig) AddICEServer(urls []string, username, credential string) error {
	server := ICEServerConfig{
		URLs:       urls,
		Username:   username,
		Credential: credential,
	}

	if err := validateICEServer(&server); err != nil {
		return fmt.Errorf("invalid ICE server: %w", err)
	}

	c.FallbackICEServers = append(c.FallbackICEServers, server)
	return nil
}
