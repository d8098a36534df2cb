package config

import (
	"fmt"
	"strings"
)

// ViewerConfig 需要保持在线的流
type ViewerConfig struct {
	// Streams 流标识列表，顺序即启动顺序
	Streams []string `yaml:"streams" json:"streams" toml:"streams"`
}

// DefaultViewerConfig 返回默认的流配置
func DefaultViewerConfig() *ViewerConfig {
	config := &ViewerConfig{}
	config.SetDefaults()
	return config
}

// SetDefaults 设置默认值
func (c *ViewerConfig) SetDefaults() {
	c.Streams = []string{}
}

// Validate 验证配置。空列表是合法的，由上层报告为"无可用流"
func (c *ViewerConfig) Validate() error {
	seen := make(map[string]struct{}, len(c.Streams))
	for i, id := range c.Streams {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("stream %d: identifier cannot be empty", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("stream %q configured more than once", id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Merge 合并其他配置模块
func (c *ViewerConfig) Merge(other ConfigModule) error {
	otherConfig, ok := other.(*ViewerConfig)
	if !ok {
		return fmt.Errorf("cannot merge different config types")
	}

	if len(otherConfig.Streams) > 0 {
		c.Streams = append([]string(nil), otherConfig.Streams...)
	}
	return nil
}

// ParseStreamList 解析逗号分隔的流列表
func ParseStreamList(value string) []string {
	var streams []string
	for _, part := range strings.Split(value, ",") {
		if id := strings.TrimSpace(part); id != "" {
			streams = append(streams, id)
		}
	}
	return streams
}
