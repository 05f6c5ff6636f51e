package handlers

import (
	"net/http"

	"github.com/sjmatta/poolstall/api"
	"github.com/sjmatta/poolstall/config"
)

// =============================================================================
// ℹ️ 信息端点 Handler
// =============================================================================

// InfoHandler 根端点与实现细节端点的处理器（纯说明性，不属于核心契约）。
type InfoHandler struct {
	mode     config.Mode
	poolSize int
}

// NewInfoHandler 创建信息处理器。
func NewInfoHandler(mode config.Mode, poolSize int) *InfoHandler {
	return &InfoHandler{mode: mode, poolSize: poolSize}
}

// HandleRoot 处理 GET /，返回当前模式与使用说明。
func (h *InfoHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	resp := api.RootResponse{
		Mode: string(h.mode),
		Endpoints: map[string]string{
			"/api/v1/chat/stream": "Stream endpoint (demonstrates the problem/solution)",
			"/api/v1/info":        "Information about current implementation",
			"/health":             "Health check endpoint (canary for pool exhaustion)",
		},
		Testing: map[string]string{
			"bounded_mode":   "Set POOLSTALL_MODE=bounded and test with pool_size+1 concurrent requests",
			"unbounded_mode": "Default mode, handles unlimited concurrent requests",
			"demo":           "Use the Makefile demo targets to measure /health latency under load",
		},
	}

	if h.mode == config.ModeBounded {
		resp.Warning = "BOUNDED MODE: limited concurrent streams, /health will stall under load"
	} else {
		resp.Info = "UNBOUNDED MODE: unlimited concurrent streams, /health always responsive"
	}

	WriteJSON(w, http.StatusOK, resp)
}

// HandleInfo 处理 GET /api/v1/info，返回当前实现的细节说明。
func (h *InfoHandler) HandleInfo(w http.ResponseWriter, r *http.Request) {
	if h.mode == config.ModeBounded {
		WriteSuccess(w, api.ImplementationInfo{
			Implementation: "bounded",
			PoolSize:       h.poolSize,
			Problem:        "blocking upstream reads while holding a fixed-capacity worker slot",
			Symptoms: []string{
				"worker pool exhaustion under concurrent streaming load",
				"/health becomes unresponsive while slots are held",
				"requests queue when the pool is full",
			},
		})
		return
	}

	WriteSuccess(w, api.ImplementationInfo{
		Implementation: "unbounded",
		PoolUsage:      "none (fully async)",
		Solution:       "channel-based upstream consumption with disconnect checks at every chunk boundary",
		Benefits: []string{
			"no pool exhaustion under concurrent load",
			"/health always responsive",
			"resources released promptly on client disconnect",
			"scales to thousands of concurrent streams",
		},
	})
}
