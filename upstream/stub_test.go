package upstream

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStubServer(t *testing.T, defaults Generator) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(StreamHandler(defaults, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func readDataLines(t *testing.T, body *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := body.ReadString('\n')
		if err != nil {
			break
		}
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "data:") {
			lines = append(lines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return lines
}

func TestStreamHandler_EmitsAllChunks(t *testing.T) {
	srv := newStubServer(t, Generator{Chunks: 3, Delay: time.Millisecond})

	resp, err := http.Get(srv.URL + "/slow_stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := readDataLines(t, bufio.NewReader(resp.Body))
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "chunk 1 of 3")
	assert.Contains(t, lines[2], "chunk 3 of 3")
}

func TestStreamHandler_QueryParamsOverrideDefaults(t *testing.T) {
	srv := newStubServer(t, Generator{Chunks: 20, Delay: time.Second})

	// delay 支持秒数小数写法（与 curl 演示保持一致）
	resp, err := http.Get(srv.URL + "/slow_stream?chunks=2&delay=0.001")
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := readDataLines(t, bufio.NewReader(resp.Body))
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "chunk 2 of 2")
}

func TestStreamHandler_DurationDelayParam(t *testing.T) {
	srv := newStubServer(t, Generator{Chunks: 20, Delay: time.Second})

	resp, err := http.Get(srv.URL + "/slow_stream?chunks=2&delay=1ms")
	require.NoError(t, err)
	defer resp.Body.Close()

	lines := readDataLines(t, bufio.NewReader(resp.Body))
	require.Len(t, lines, 2)
}

func TestStreamHandler_InvalidParams(t *testing.T) {
	srv := newStubServer(t, Generator{Chunks: 5, Delay: time.Millisecond})

	for _, url := range []string{
		"/slow_stream?chunks=0",
		"/slow_stream?chunks=abc",
		"/slow_stream?delay=-1",
		"/slow_stream?delay=oops",
	} {
		resp, err := http.Get(srv.URL + url)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, url)
	}
}

// 客户端断开后，stub 必须停止产出（不把序列跑完）。
func TestStreamHandler_ClientDisconnect(t *testing.T) {
	const delay = 30 * time.Millisecond
	srv := newStubServer(t, Generator{Chunks: 100, Delay: delay})

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/slow_stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	// 读到第一个 chunk 后断开
	reader := bufio.NewReader(resp.Body)
	_, err = reader.ReadString('\n')
	require.NoError(t, err)
	cancel()

	// 给 handler 一个间隔的时间感知断开并退出；
	// 之后 server 关闭不应被未退出的 handler 卡住。
	time.Sleep(2 * delay)
}
