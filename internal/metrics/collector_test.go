package metrics

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sjmatta/poolstall/internal/pool"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.httpRequestDuration)
	assert.NotNil(t, collector.streamsActive)
	assert.NotNil(t, collector.poolAcquireWait)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	// 记录请求
	collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond)

	// 验证指标
	count := testutil.CollectAndCount(collector.httpRequestsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_StreamLifecycle(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.StreamStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.streamsActive))

	collector.StreamFinished("bounded", "completed", 5*time.Second, 5)
	assert.Equal(t, 0.0, testutil.ToFloat64(collector.streamsActive))

	count := testutil.CollectAndCount(collector.streamsTotal)
	assert.Greater(t, count, 0)
}

func TestCollector_RegisterPool(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	p := pool.New(4)
	collector.RegisterPool(p)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	// GaugeFunc 直接反映池的当前状态
	assert.Equal(t, 4, p.Capacity())
	assert.Equal(t, 1, p.InUse())
}

func TestCollector_RecordPoolAcquireWait(t *testing.T) {
	logger := zap.NewNop()
	collector := NewCollector(nextTestNamespace(), logger)

	collector.RecordPoolAcquireWait("health", 2*time.Second)
	collector.RecordPoolAcquireWait("stream", 10*time.Millisecond)

	count := testutil.CollectAndCount(collector.poolAcquireWait)
	assert.Greater(t, count, 0)
}
