package config

// DefaultConfigContent 默认配置文件内容，包含详细说明
const DefaultConfigContent = `# mitmblock 配置文件

# 决策接口配置（供代理的请求钩子调用）
api:
  # 是否启用 HTTP 接口，默认 true
  enabled: true
  # 监听地址
  listen_addr: "127.0.0.1:8090"

# 广告拦截配置
adblock:
  # 是否启用拦截，默认 true
  enable: true
  # 匹配引擎：builtin（内置索引）或 urlfilter（AdGuard urlfilter）
  engine: builtin
  # 规则列表，按顺序加载。支持本地路径、glob 和 http(s) URL
  lists:
    - "blocklists/*"
#    - "https://easylist.to/easylist/easylist.txt"
  # 远程列表的缓存目录
  cache_dir: ./adblock_cache
  # 远程列表更新间隔（小时），0 表示不自动更新
  update_interval_hours: 24
  # 单个列表的最大体积
  max_list_size: 50MB
  # 并发读取的列表数
  max_concurrent_loads: 4
  # 远程列表下载超时（秒）
  download_timeout_seconds: 30
  # 没有可用规则时的策略：refuse（拒绝启动）或 allow（不拦截继续运行）
  on_empty: refuse
  # 未知选项的策略：skip（该规则永不匹配）或 ignore（忽略未知选项）
  unknown_options: skip
  # 每个规则快照的决策缓存条目数，0 表示禁用
  decision_cache_size: 10000
  # 中间件拦截时返回的 HTTP 状态码
  block_status: 403

# 系统配置
system:
  # 日志级别: debug, info, warn, error. 默认 info
  log_level: "info"
`
