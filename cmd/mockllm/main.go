// =============================================================================
// Mock LLM 上游服务
// =============================================================================
// 独立的慢速流式上游，用来复现池饱和场景
//
// 使用方法:
//
//	mockllm                      # 监听 :8001，默认 20 chunks x 1s
//	mockllm --port 9001
//	mockllm --chunks 5 --delay 200ms
// =============================================================================

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/internal/server"
	"github.com/sjmatta/poolstall/upstream"
)

func main() {
	port := flag.Int("port", 8001, "Listen port")
	chunks := flag.Int("chunks", 20, "Default chunk count per stream")
	delay := flag.Duration("delay", time.Second, "Default delay between chunks")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	defaults := upstream.Generator{Chunks: *chunks, Delay: *delay}

	mux := http.NewServeMux()
	mux.HandleFunc("/slow_stream", upstream.StreamHandler(defaults, logger))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "healthy",
			"service": "mock-llm",
		})
	})

	manager := server.NewManager(mux, server.Config{
		Addr:        fmt.Sprintf(":%d", *port),
		ReadTimeout: 30 * time.Second,
		// 一条流最长 chunks x delay，写超时要留足余量
		WriteTimeout:    2 * time.Duration(*chunks) * *delay,
		ShutdownTimeout: 10 * time.Second,
	}, logger)

	if err := manager.Start(); err != nil {
		logger.Fatal("Failed to start mock LLM server", zap.Error(err))
	}

	logger.Info("Mock LLM server started",
		zap.Int("port", *port),
		zap.Int("chunks", *chunks),
		zap.Duration("delay", *delay),
	)

	manager.WaitForShutdown()

	logger.Info("Mock LLM server stopped")
}
