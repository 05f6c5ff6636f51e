package api

import "time"

// =============================================================================
// 📦 HTTP 响应类型
// =============================================================================

// HealthResponse 健康检查响应。
// 其内容始终是合法 JSON；池饱和只通过延迟体现，不改变响应内容。
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Message   string    `json:"message,omitempty"`
}

// RootResponse 根端点的使用说明响应
type RootResponse struct {
	Mode      string            `json:"mode"`
	Endpoints map[string]string `json:"endpoints"`
	Testing   map[string]string `json:"testing"`
	Warning   string            `json:"warning,omitempty"`
	Info      string            `json:"info,omitempty"`
}

// ImplementationInfo /api/v1/info 的实现细节响应
type ImplementationInfo struct {
	Implementation string   `json:"implementation"`
	PoolSize       int      `json:"pool_size,omitempty"`
	PoolUsage      string   `json:"pool_usage,omitempty"`
	Problem        string   `json:"problem,omitempty"`
	Solution       string   `json:"solution,omitempty"`
	Symptoms       []string `json:"symptoms,omitempty"`
	Benefits       []string `json:"benefits,omitempty"`
}

// VersionInfo /version 端点响应
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}
