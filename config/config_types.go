package config

import "github.com/c2h5oh/datasize"

// Config 主配置结构
type Config struct {
	API     APIConfig     `yaml:"api" json:"api"`
	AdBlock AdBlockConfig `yaml:"adblock" json:"adblock"`
	System  SystemConfig  `yaml:"system" json:"system"`
}

// APIConfig 决策接口与管理接口配置
type APIConfig struct {
	Enabled    bool   `yaml:"enabled" json:"enabled"`
	ListenAddr string `yaml:"listen_addr,omitempty" json:"listen_addr"`
}

// AdBlockConfig 广告拦截配置
type AdBlockConfig struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Engine string `yaml:"engine,omitempty" json:"engine"` // builtin, urlfilter
	// 规则列表：本地路径、glob 或 http(s) URL，按顺序加载
	Lists               []string `yaml:"lists,omitempty" json:"lists"`
	CacheDir            string   `yaml:"cache_dir,omitempty" json:"cache_dir"`
	UpdateIntervalHours int      `yaml:"update_interval_hours,omitempty" json:"update_interval_hours"`

	// 单个列表的最大体积，如 "50MB"
	MaxListSize            datasize.ByteSize `yaml:"max_list_size,omitempty" json:"max_list_size"`
	MaxConcurrentLoads     int               `yaml:"max_concurrent_loads,omitempty" json:"max_concurrent_loads"`
	DownloadTimeoutSeconds int               `yaml:"download_timeout_seconds,omitempty" json:"download_timeout_seconds"`

	OnEmpty           string `yaml:"on_empty,omitempty" json:"on_empty"`               // refuse, allow
	UnknownOptions    string `yaml:"unknown_options,omitempty" json:"unknown_options"` // skip, ignore
	DecisionCacheSize int    `yaml:"decision_cache_size,omitempty" json:"decision_cache_size"`
	BlockStatus       int    `yaml:"block_status,omitempty" json:"block_status"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	LogLevel string `yaml:"log_level,omitempty" json:"log_level"`
}
