package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// on_empty 取值
const (
	OnEmptyRefuse = "refuse"
	OnEmptyAllow  = "allow"
)

// CreateDefaultConfig 创建默认配置文件
func CreateDefaultConfig(filePath string) error {
	return os.WriteFile(filePath, []byte(DefaultConfigContent), 0644)
}

// LoadConfig 从 YAML 文件加载配置，文件不存在时自动创建默认配置
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := CreateDefaultConfig(filePath); err != nil {
			return nil, err
		}
		data = []byte(DefaultConfigContent)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filePath, err)
	}

	setDefaultValues(&cfg, data)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查枚举类取值
func (c *Config) Validate() error {
	switch strings.ToLower(c.AdBlock.Engine) {
	case "builtin", "urlfilter":
	default:
		return fmt.Errorf("adblock.engine: unknown engine %q", c.AdBlock.Engine)
	}
	switch c.AdBlock.OnEmpty {
	case OnEmptyRefuse, OnEmptyAllow:
	default:
		return fmt.Errorf("adblock.on_empty: must be %q or %q, got %q", OnEmptyRefuse, OnEmptyAllow, c.AdBlock.OnEmpty)
	}
	switch c.AdBlock.UnknownOptions {
	case "skip", "ignore":
	default:
		return fmt.Errorf("adblock.unknown_options: must be \"skip\" or \"ignore\", got %q", c.AdBlock.UnknownOptions)
	}
	if c.AdBlock.BlockStatus < 100 || c.AdBlock.BlockStatus > 599 {
		return fmt.Errorf("adblock.block_status: %d is not an HTTP status", c.AdBlock.BlockStatus)
	}
	if c.AdBlock.DecisionCacheSize < 0 {
		return fmt.Errorf("adblock.decision_cache_size: must not be negative")
	}
	switch strings.ToLower(c.System.LogLevel) {
	case "debug", "info", "warn", "warning", "error", "fatal":
	default:
		return fmt.Errorf("system.log_level: unknown level %q", c.System.LogLevel)
	}
	return nil
}
