package config

import (
	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"
)

// setDefaultValues 设置配置文件中缺失字段的默认值
func setDefaultValues(cfg *Config, rawData []byte) {
	setAPIDefaults(cfg, rawData)
	setAdBlockDefaults(cfg, rawData)
	setSystemDefaults(cfg)
}

// setAPIDefaults 设置接口配置的默认值
func setAPIDefaults(cfg *Config, rawData []byte) {
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = "127.0.0.1:8090"
	}
	// 未写 api.enabled 时默认启用，显式 false 保持不变
	if !cfg.API.Enabled && !explicitlyFalse(rawData, "api") {
		cfg.API.Enabled = true
	}
}

// setAdBlockDefaults 设置广告拦截配置的默认值
func setAdBlockDefaults(cfg *Config, rawData []byte) {
	if !cfg.AdBlock.Enable && !explicitlyFalse(rawData, "adblock") {
		cfg.AdBlock.Enable = true
	}
	if cfg.AdBlock.Engine == "" {
		cfg.AdBlock.Engine = "builtin"
	}
	if len(cfg.AdBlock.Lists) == 0 {
		cfg.AdBlock.Lists = []string{"blocklists/*"}
	}
	if cfg.AdBlock.CacheDir == "" {
		cfg.AdBlock.CacheDir = "./adblock_cache"
	}
	if cfg.AdBlock.MaxListSize == 0 {
		cfg.AdBlock.MaxListSize = 50 * datasize.MB
	}
	if cfg.AdBlock.MaxConcurrentLoads == 0 {
		cfg.AdBlock.MaxConcurrentLoads = 4
	}
	if cfg.AdBlock.DownloadTimeoutSeconds == 0 {
		cfg.AdBlock.DownloadTimeoutSeconds = 30
	}
	if cfg.AdBlock.OnEmpty == "" {
		cfg.AdBlock.OnEmpty = OnEmptyRefuse
	}
	if cfg.AdBlock.UnknownOptions == "" {
		cfg.AdBlock.UnknownOptions = "skip"
	}
	if cfg.AdBlock.BlockStatus == 0 {
		cfg.AdBlock.BlockStatus = 403
	}
	// decision_cache_size 为 0 表示禁用缓存，这里不设默认值
}

// setSystemDefaults 设置系统配置的默认值
func setSystemDefaults(cfg *Config) {
	if cfg.System.LogLevel == "" {
		cfg.System.LogLevel = "info"
	}
}

// explicitSwitches 记录原始 YAML 中显式填写的开关。
// 反序列化到 bool 后无法区分"未填写"和"false"。
type explicitSwitches struct {
	API struct {
		Enabled *bool `yaml:"enabled"`
	} `yaml:"api"`
	AdBlock struct {
		Enable *bool `yaml:"enable"`
	} `yaml:"adblock"`
}

func explicitlyFalse(rawData []byte, section string) bool {
	var sw explicitSwitches
	if err := yaml.Unmarshal(rawData, &sw); err != nil {
		return false
	}
	switch section {
	case "api":
		return sw.API.Enabled != nil && !*sw.API.Enabled
	case "adblock":
		return sw.AdBlock.Enable != nil && !*sw.AdBlock.Enable
	}
	return false
}
