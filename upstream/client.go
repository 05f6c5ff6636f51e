package upstream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/config"
	"github.com/sjmatta/poolstall/types"
)

// =============================================================================
// 📡 慢速上游客户端
// =============================================================================

// Client 消费 mock LLM 的 /slow_stream 端点。
//
// 两种读取方式对应两种 relay 实现：
//   - StreamBlocking：调用方 goroutine 在每次读取上同步阻塞，
//     bounded relay 在持有 worker 槽位期间使用（这正是被复现的缺陷模式）。
//   - Stream：返回 channel，由内部 goroutine 喂数据，
//     unbounded relay 在 chunk 边界让出控制权。
type Client struct {
	baseURL string
	chunks  int
	delay   time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewClient 创建上游客户端。
func NewClient(cfg config.UpstreamConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		chunks:  cfg.Chunks,
		delay:   cfg.Delay,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: cfg.ConnectTimeout,
				}).DialContext,
			},
		},
		logger: logger.With(zap.String("component", "upstream_client")),
	}
}

func (c *Client) streamURL() string {
	return fmt.Sprintf("%s/slow_stream?chunks=%d&delay=%s",
		c.baseURL,
		c.chunks,
		strconv.FormatFloat(c.delay.Seconds(), 'f', -1, 64),
	)
}

// open 发起流式请求。非 2xx 与连接失败都映射为对该请求终态的 UPSTREAM_ERROR。
func (c *Client) open(ctx context.Context) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.streamURL(), nil)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to build upstream request").WithCause(err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "upstream unreachable").
			WithCause(err).
			WithHTTPStatus(http.StatusBadGateway)
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("upstream returned status %d", resp.StatusCode)).
			WithHTTPStatus(http.StatusBadGateway)
	}

	return resp.Body, nil
}

// StreamBlocking 同步消费上游流，对每个 chunk 调用 relay。
// 调用方的 goroutine 在整个流期间阻塞；这是 bounded 模式刻意保留的
// 缺陷形态。ctx 取消（客户端断开）会让底层读取在一个 chunk 间隔内
// 解除阻塞并返回 ctx.Err()。relay 返回错误时立即终止。
func (c *Client) StreamBlocking(ctx context.Context, relay func(chunk StreamChunk) error) error {
	body, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	reader := bufio.NewReader(body)
	index := 0

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			return types.NewError(types.ErrUpstreamError, "upstream read failed").
				WithCause(err).
				WithHTTPStatus(http.StatusBadGateway)
		}

		data, ok := parseDataLine(line)
		if !ok {
			continue
		}
		if string(data) == "[DONE]" {
			return nil
		}

		index++
		if err := relay(StreamChunk{Index: index, Data: data}); err != nil {
			return err
		}
	}
}

// Stream 异步消费上游流，chunk 通过 channel 送出，流结束时关闭。
// 读取错误以带 Err 的最后一个 chunk 送出。消费方停止读取后，
// 内部 goroutine 随 ctx 取消而退出，不会泄漏。
func (c *Client) Stream(ctx context.Context) (<-chan StreamChunk, error) {
	body, err := c.open(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		reader := bufio.NewReader(body)
		index := 0

		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				if err == io.EOF || ctx.Err() != nil {
					return
				}
				errChunk := StreamChunk{
					Err: types.NewError(types.ErrUpstreamError, "upstream read failed").
						WithCause(err).
						WithHTTPStatus(http.StatusBadGateway),
				}
				select {
				case ch <- errChunk:
				case <-ctx.Done():
				}
				return
			}

			data, ok := parseDataLine(line)
			if !ok {
				continue
			}
			if string(data) == "[DONE]" {
				return
			}

			index++
			select {
			case ch <- StreamChunk{Index: index, Data: data}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch, nil
}

// parseDataLine 提取 SSE data 行的负载，空行与非 data 行返回 ok=false。
func parseDataLine(line string) ([]byte, bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data:") {
		return nil, false
	}
	return []byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), true
}
