package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	// Level 日志等级 (trace, debug, info, warn, error)
	Level string `yaml:"level" json:"level" toml:"level"`

	// Format 日志格式 (text, json)
	Format string `yaml:"format" json:"format" toml:"format"`

	// Output 输出目标 (stdout, stderr, file)
	Output string `yaml:"output" json:"output" toml:"output"`

	// File 日志文件路径 (当Output为file时使用)
	File string `yaml:"file" json:"file" toml:"file"`

	EnableTimestamp bool `yaml:"enable_timestamp" json:"enable_timestamp" toml:"enable_timestamp"`
	EnableCaller    bool `yaml:"enable_caller" json:"enable_caller" toml:"enable_caller"`
	EnableColors    bool `yaml:"enable_colors" json:"enable_colors" toml:"enable_colors"`

	// PionLevel pion 内部日志等级，默认只输出警告以上
	PionLevel string `yaml:"pion_level" json:"pion_level" toml:"pion_level"`
}

// DefaultLoggingConfig 返回默认日志配置
func DefaultLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:           "info",
		Format:          "text",
		Output:          "stdout",
		File:            "",
		EnableTimestamp: true,
		EnableCaller:    false,
		EnableColors:    true,
		PionLevel:       "warn",
	}
}

// Validate 验证日志配置
func (c *LoggingConfig) Validate() error {
	if _, err := logrus.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Level)
	}
	if c.PionLevel != "" {
		if _, err := logrus.ParseLevel(c.PionLevel); err != nil {
			return fmt.Errorf("invalid pion log level: %s", c.PionLevel)
		}
	}

	if c.Format != "text" && c.Format != "json" {
		return fmt.Errorf("invalid log format: %s, must be 'text' or 'json'", c.Format)
	}

	if c.Output != "stdout" && c.Output != "stderr" && c.Output != "file" {
		return fmt.Errorf("invalid log output: %s, must be 'stdout', 'stderr', or 'file'", c.Output)
	}

	if c.Output == "file" && c.File == "" {
		return fmt.Errorf("log file path is required when output is 'file'")
	}

	return nil
}

// Merge 合并日志配置
func (c *LoggingConfig) Merge(other *LoggingConfig) error {
	if other == nil {
		return nil
	}

	if other.Level != "" {
		c.Level = other.Level
	}
	if other.Format != "" {
		c.Format = other.Format
	}
	if other.Output != "" {
		c.Output = other.Output
	}
	if other.File != "" {
		c.File = other.File
	}
	if other.PionLevel != "" {
		c.PionLevel = other.PionLevel
	}

	c.EnableTimestamp = other.EnableTimestamp
	c.EnableCaller = other.EnableCaller
	c.EnableColors = other.EnableColors

	return c.Validate()
}

// LoadLoggingConfigFromEnv 从环境变量加载日志配置
func LoadLoggingConfigFromEnv() *LoggingConfig {
	config := DefaultLoggingConfig()

	if level := os.Getenv("BDWIND_VIEWER_LOG_LEVEL"); level != "" {
		config.Level = strings.ToLower(level)
	}
	if format := os.Getenv("BDWIND_VIEWER_LOG_FORMAT"); format != "" {
		config.Format = format
	}
	if output := os.Getenv("BDWIND_VIEWER_LOG_OUTPUT"); output != "" {
		config.Output = output
	}
	if file := os.Getenv("BDWIND_VIEWER_LOG_FILE"); file != "" {
		config.File = file
	}
	if timestamp := os.Getenv("BDWIND_VIEWER_LOG_TIMESTAMP"); timestamp != "" {
		config.EnableTimestamp = strings.ToLower(timestamp) == "true"
	}
	if caller := os.Getenv("BDWIND_VIEWER_LOG_CALLER"); caller != "" {
		config.EnableCaller = strings.ToLower(caller) == "true"
	}
	if colors := os.Getenv("BDWIND_VIEWER_LOG_COLORS"); colors != "" {
		config.EnableColors = strings.ToLower(colors) == "true"
	}

	return config
}

// SetupLogger 根据配置设置 logrus
func SetupLogger(config *LoggingConfig) error {
	if config == nil {
		config = DefaultLoggingConfig()
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid logging config: %w", err)
	}

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}
	logrus.SetLevel(level)

	var output io.Writer
	switch config.Output {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	case "file":
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %s: %w", config.File, err)
		}
		output = file
	}
	logrus.SetOutput(output)

	if config.Format == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FullTimestamp:   config.EnableTimestamp,
			ForceColors:     config.EnableColors,
		})
	}

	logrus.SetReportCaller(config.EnableCaller)

	return nil
}

// ParseLogLevel 解析日志等级字符串
func ParseLogLevel(level string) (string, error) {
	normalizedLevel := strings.ToLower(strings.TrimSpace(level))

	if _, err := logrus.ParseLevel(normalizedLevel); err != nil {
		return "info", fmt.Errorf("invalid log level: %s", level)
	}

	return normalizedLevel, nil
}

// GetLoggerWithPrefix 获取带组件名的logger
func GetLoggerWithPrefix(prefix string) *logrus.Entry {
	return logrus.WithField("component", prefix)
}

// SetGlobalLogLevel 动态设置全局日志等级
func SetGlobalLogLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	logrus.SetLevel(logLevel)
	return nil
}

// GetGlobalLogLevel 获取当前全局日志等级
func GetGlobalLogLevel() string {
	return logrus.GetLevel().String()
}
