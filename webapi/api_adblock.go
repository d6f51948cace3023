package webapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"mitmblock/adblock"
	"mitmblock/logger"
)

// decideRequest /api/decide 的 POST 请求体
type decideRequest struct {
	URL          string `json:"url"`
	Domain       string `json:"domain"`
	Type         string `json:"type"`
	SecFetchDest string `json:"sec_fetch_dest"`
	Accept       string `json:"accept"`
}

// handleDecide 代理请求钩子：判断一个请求是否应被拦截
func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	switch r.Method {
	case http.MethodGet:
		q := r.URL.Query()
		req = decideRequest{
			URL:          q.Get("url"),
			Domain:       q.Get("domain"),
			Type:         q.Get("type"),
			SecFetchDest: q.Get("sec_fetch_dest"),
			Accept:       q.Get("accept"),
		}
	case http.MethodPost:
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	default:
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	if req.URL == "" {
		s.writeJSONError(w, "Missing url parameter", http.StatusBadRequest)
		return
	}

	rc := adblock.RequestContext{Domain: req.Domain}
	if req.Type != "" {
		t, ok := adblock.ParseResourceType(req.Type)
		if !ok {
			s.writeJSONError(w, "Unknown resource type: "+req.Type, http.StatusBadRequest)
			return
		}
		rc.Type = t
	} else {
		rc.Type = ClassifyTransport(req.SecFetchDest, req.Accept)
	}

	res := s.manager.Match(req.URL, rc)
	typ := rc.Type
	if typ == adblock.TypeUnknown {
		typ = adblock.ClassifyURL(req.URL)
	}
	s.writeJSONSuccess(w, "ok", DecideResult{
		URL:        req.URL,
		Domain:     req.Domain,
		Type:       typ.String(),
		Decision:   res.Decision.String(),
		Rule:       res.Rule(),
		Generation: s.manager.Generation(),
	})
}

// handleReload 重新加载规则列表；?update=1 时先强制下载远程列表
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	update := r.URL.Query().Get("update")
	if update == "1" || strings.EqualFold(update, "true") {
		res, err := s.manager.Update(r.Context(), true)
		if err != nil {
			s.reloadFailed(w, err)
			return
		}
		s.writeJSONSuccess(w, "Lists updated and reloaded", res)
		return
	}

	report, err := s.manager.Reload(r.Context())
	if err != nil {
		s.reloadFailed(w, err)
		return
	}
	s.writeJSONSuccess(w, "Rules reloaded", map[string]interface{}{
		"generation": s.manager.Generation(),
		"report":     report,
	})
}

func (s *Server) reloadFailed(w http.ResponseWriter, err error) {
	logger.Errorf("[API] reload failed: %v", err)
	status := http.StatusInternalServerError
	if errors.Is(err, adblock.ErrNoRulesLoaded) || errors.Is(err, adblock.ErrNoSources) {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSONError(w, "Reload failed, previous rules kept: "+err.Error(), status)
}

// handleStatus 返回拦截统计
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSONSuccess(w, "AdBlock status retrieved successfully", s.manager.GetStats())
}

// handleSources 返回远程列表状态
func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}
	sources := s.manager.GetSources()
	if sources == nil {
		sources = []adblock.SourceStatus{}
	}
	s.writeJSONSuccess(w, "AdBlock sources retrieved successfully", sources)
}

// handleToggle 动态启用或禁用拦截
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, "Invalid request method", http.StatusMethodNotAllowed)
		return
	}

	var payload struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Enabled == nil {
		s.writeJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.manager.SetEnabled(*payload.Enabled)
	s.writeJSONSuccess(w, "AdBlock toggled", map[string]bool{"enabled": *payload.Enabled})
}
