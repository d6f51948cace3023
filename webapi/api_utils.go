package webapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"mitmblock/adblock"
)

// writeJSONError 写入 JSON 错误响应
func (s *Server) writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, APIResponse{
		Success: false,
		Message: message,
	})
}

// writeJSONSuccess 写入 JSON 成功响应
func (s *Server) writeJSONSuccess(w http.ResponseWriter, message string, data interface{}) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func writeJSON(w http.ResponseWriter, statusCode int, resp APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// corsMiddleware CORS 中间件
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// fetchDestTypes 将 Sec-Fetch-Dest 映射为资源类型
var fetchDestTypes = map[string]adblock.ResourceType{
	"image":    adblock.TypeImage,
	"script":   adblock.TypeScript,
	"style":    adblock.TypeStylesheet,
	"document": adblock.TypeDocument,
	"iframe":   adblock.TypeSubdocument,
	"frame":    adblock.TypeSubdocument,
	"font":     adblock.TypeFont,
	"audio":    adblock.TypeMedia,
	"video":    adblock.TypeMedia,
	"track":    adblock.TypeMedia,
	"object":   adblock.TypeObject,
	"embed":    adblock.TypeObject,
	"empty":    adblock.TypeXMLHTTPRequest,
}

// ClassifyTransport 根据请求头推断资源类型。Sec-Fetch-Dest 优先，其次 Accept；
// 都无法判断时返回 TypeUnknown，由匹配器按 URL 后缀分类。
func ClassifyTransport(secFetchDest, accept string) adblock.ResourceType {
	if t, ok := fetchDestTypes[strings.ToLower(strings.TrimSpace(secFetchDest))]; ok {
		return t
	}

	accept = strings.ToLower(accept)
	first := accept
	if i := strings.IndexByte(first, ','); i >= 0 {
		first = first[:i]
	}
	switch {
	case strings.HasPrefix(first, "text/css"):
		return adblock.TypeStylesheet
	case strings.HasPrefix(first, "text/html"):
		return adblock.TypeDocument
	case strings.HasPrefix(first, "image/"):
		return adblock.TypeImage
	case strings.Contains(first, "javascript"):
		return adblock.TypeScript
	case strings.HasPrefix(first, "font/"):
		return adblock.TypeFont
	case strings.HasPrefix(first, "video/"), strings.HasPrefix(first, "audio/"):
		return adblock.TypeMedia
	}
	return adblock.TypeUnknown
}

// requestingDomain 取 Origin 或 Referer 的主机名
func requestingDomain(r *http.Request) string {
	if origin := r.Header.Get("Origin"); origin != "" && origin != "null" {
		if host := adblock.HostOf(origin); host != "" {
			return host
		}
	}
	return adblock.HostOf(r.Referer())
}

// absoluteURL 还原请求的完整 URL
func absoluteURL(r *http.Request) string {
	if r.URL.IsAbs() {
		return r.URL.String()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0]))
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}
