// =============================================================================
// 📦 Poolstall 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:   DefaultServerConfig(),
		Mode:     ModeUnbounded,
		Pool:     DefaultPoolConfig(),
		Upstream: DefaultUpstreamConfig(),
		Log:      DefaultLogConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:    8000,
		MetricsPort: 9091,
		ReadTimeout: 30 * time.Second,
		// 流式响应持续数十秒，写超时必须覆盖完整 stream 时长
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultPoolConfig 返回默认 worker 池配置
// 池容量故意很小，方便用少量并发请求触发饥饿现象
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxWorkers:       4,
		HealthProbeDelay: 100 * time.Millisecond,
	}
}

// DefaultUpstreamConfig 返回默认上游配置
func DefaultUpstreamConfig() UpstreamConfig {
	return UpstreamConfig{
		BaseURL:        "http://localhost:8001",
		Chunks:         20,
		Delay:          time.Second,
		Timeout:        5 * time.Minute,
		ConnectTimeout: 60 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "console",
		OutputPaths:  []string{"stdout"},
		EnableCaller: false,
	}
}
