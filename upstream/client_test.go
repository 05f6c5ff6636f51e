package upstream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/config"
	"github.com/sjmatta/poolstall/types"
)

func newTestClient(t *testing.T, baseURL string, chunks int, delay time.Duration) *Client {
	t.Helper()
	return NewClient(config.UpstreamConfig{
		BaseURL:        baseURL,
		Chunks:         chunks,
		Delay:          delay,
		Timeout:        10 * time.Second,
		ConnectTimeout: time.Second,
	}, zap.NewNop())
}

// 客户端把自己的 chunks/delay 配置放进查询参数。
func TestClient_StreamURL(t *testing.T) {
	c := newTestClient(t, "http://localhost:8001/", 5, 1500*time.Millisecond)
	assert.Equal(t, "http://localhost:8001/slow_stream?chunks=5&delay=1.5", c.streamURL())
}

func TestClient_StreamBlocking_Order(t *testing.T) {
	srv := newStubServer(t, Generator{Chunks: 5, Delay: time.Millisecond})
	c := newTestClient(t, srv.URL, 5, time.Millisecond)

	var got []StreamChunk
	err := c.StreamBlocking(context.Background(), func(chunk StreamChunk) error {
		got = append(got, chunk)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i, chunk := range got {
		assert.Equal(t, i+1, chunk.Index)
		assert.Contains(t, string(chunk.Data), fmt.Sprintf("chunk %d of 5", i+1))
	}
}

func TestClient_Stream_Order(t *testing.T) {
	srv := newStubServer(t, Generator{Chunks: 5, Delay: time.Millisecond})
	c := newTestClient(t, srv.URL, 5, time.Millisecond)

	ch, err := c.Stream(context.Background())
	require.NoError(t, err)

	var got []StreamChunk
	for chunk := range ch {
		require.Nil(t, chunk.Err)
		got = append(got, chunk)
	}
	require.Len(t, got, 5)
	for i, chunk := range got {
		assert.Equal(t, i+1, chunk.Index)
	}
}

func TestClient_Unreachable(t *testing.T) {
	// 没有监听者的端口：连接被拒，对该请求终态失败
	c := newTestClient(t, "http://127.0.0.1:1", 5, time.Millisecond)

	err := c.StreamBlocking(context.Background(), func(chunk StreamChunk) error {
		t.Fatal("should not receive chunks from unreachable upstream")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.False(t, types.IsRetryable(err))

	_, err = c.Stream(context.Background())
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

func TestClient_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, 5, time.Millisecond)
	err := c.StreamBlocking(context.Background(), func(chunk StreamChunk) error { return nil })
	require.Error(t, err)
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
}

// 取消必须在一个 chunk 间隔之内让阻塞读取返回。
func TestClient_StreamBlocking_Cancel(t *testing.T) {
	const delay = 50 * time.Millisecond
	srv := newStubServer(t, Generator{Chunks: 100, Delay: delay})
	c := newTestClient(t, srv.URL, 100, delay)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		count := 0
		done <- c.StreamBlocking(ctx, func(chunk StreamChunk) error {
			count++
			if count == 2 {
				cancel()
			}
			return nil
		})
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(3 * delay):
		t.Fatal("blocking stream did not unblock within one chunk interval after cancel")
	}
}

// 消费方停止后 ctx 取消要能让内部 goroutine 退出。
func TestClient_Stream_CancelStopsProducer(t *testing.T) {
	const delay = 20 * time.Millisecond
	srv := newStubServer(t, Generator{Chunks: 100, Delay: delay})
	c := newTestClient(t, srv.URL, 100, delay)

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := c.Stream(ctx)
	require.NoError(t, err)

	first, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, 1, first.Index)

	cancel()

	// channel 必须在一个间隔内关闭
	deadline := time.After(3 * delay)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("stream channel not closed after cancel")
		}
	}
}
