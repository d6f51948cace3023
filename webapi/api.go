package webapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"mitmblock/adblock"
	"mitmblock/config"
	"mitmblock/logger"
)

// APIResponse 统一的 API 响应格式
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// DecideResult /api/decide 的返回格式
type DecideResult struct {
	URL        string `json:"url"`
	Domain     string `json:"domain,omitempty"`
	Type       string `json:"type"`
	Decision   string `json:"decision"`
	Rule       string `json:"rule,omitempty"`
	Generation uint64 `json:"generation"`
}

// Server 决策接口与管理接口服务器
type Server struct {
	cfg      *config.Config
	manager  *adblock.AdBlockManager
	listener *http.Server
}

// NewServer 创建新的 API 服务器
func NewServer(cfg *config.Config, manager *adblock.AdBlockManager) *Server {
	s := &Server{
		cfg:     cfg,
		manager: manager,
	}
	s.listener = &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler 返回注册好全部路由的 handler
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/decide", s.handleDecide)
	mux.HandleFunc("/api/reload", s.handleReload)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sources", s.handleSources)
	mux.HandleFunc("/api/toggle", s.handleToggle)

	return s.corsMiddleware(mux)
}

// BlockingMiddleware 用配置中的 block_status 拦截被规则阻止的请求
func (s *Server) BlockingMiddleware(next http.Handler) http.Handler {
	return Middleware(s.manager, s.cfg.AdBlock.BlockStatus, next)
}

// Start 启动 API 服务，阻塞直到服务停止
func (s *Server) Start() error {
	if !s.cfg.API.Enabled {
		logger.Info("[API] HTTP API is disabled")
		return nil
	}

	logger.Infof("[API] decision hook listening on http://%s", s.cfg.API.ListenAddr)
	if err := s.listener.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("[API] shutting down HTTP API...")
	return s.listener.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if s.manager.Generation() == 0 {
		status = "no_rules"
	}
	s.writeJSONSuccess(w, status, map[string]interface{}{
		"status":     status,
		"generation": s.manager.Generation(),
	})
}
