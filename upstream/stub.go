package upstream

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🐢 /slow_stream 端点
// =============================================================================

// StreamHandler 返回 mock LLM 的 /slow_stream 处理函数。
// 查询参数 chunks（数量）与 delay（间隔，支持 "1.5" 秒数或 "1500ms"
// Duration 写法）可覆盖默认节奏。故意很慢，用来模拟 LLM 补全接口。
func StreamHandler(defaults Generator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gen := defaults

		if v := r.URL.Query().Get("chunks"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "invalid chunks parameter", http.StatusBadRequest)
				return
			}
			gen.Chunks = n
		}

		if v := r.URL.Query().Get("delay"); v != "" {
			d, err := parseDelay(v)
			if err != nil {
				http.Error(w, "invalid delay parameter", http.StatusBadRequest)
				return
			}
			gen.Delay = d
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		start := time.Now()
		err := gen.Emit(r.Context(), func(chunk StreamChunk) error {
			if _, werr := fmt.Fprintf(w, "data: %s\n\n", chunk.Data); werr != nil {
				return werr
			}
			flusher.Flush()
			return nil
		})

		if err != nil {
			// 客户端断开是正常的提前终止，不是错误
			logger.Debug("slow stream ended early",
				zap.Error(err),
				zap.Duration("elapsed", time.Since(start)),
			)
			return
		}

		logger.Info("slow stream completed",
			zap.Int("chunks", gen.Chunks),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

// parseDelay 解析 delay 参数，兼容秒数小数（"1.5"）与 Duration（"1500ms"）两种写法。
func parseDelay(v string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		if secs < 0 {
			return 0, fmt.Errorf("negative delay %q", v)
		}
		return time.Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid delay %q", v)
	}
	return d, nil
}
