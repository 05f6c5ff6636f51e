package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerPool_InvalidCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-1) })
}

func TestWorkerPool_AcquireRelease(t *testing.T) {
	p := New(2)

	release1, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release2, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, p.InUse())

	release1()
	assert.Equal(t, 1, p.InUse())
	release2()
	assert.Equal(t, 0, p.InUse())

	stats := p.Stats()
	assert.Equal(t, int64(2), stats.Acquired)
	assert.Equal(t, int64(2), stats.Released)
}

func TestWorkerPool_ReleaseIdempotent(t *testing.T) {
	p := New(1)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	release()
	release() // second call must be a no-op
	release()

	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, int64(1), p.Stats().Released)

	// The slot must be reusable after a double release.
	release, err = p.Acquire(context.Background())
	require.NoError(t, err)
	release()
}

// Exhausting a pool of capacity N blocks the N+1th acquire until a slot frees.
func TestWorkerPool_ExhaustionQueues(t *testing.T) {
	const capacity = 4
	p := New(capacity)

	releases := make([]func(), 0, capacity)
	for i := 0; i < capacity; i++ {
		release, err := p.Acquire(context.Background())
		require.NoError(t, err)
		releases = append(releases, release)
	}
	assert.Equal(t, capacity, p.InUse())

	acquired := make(chan struct{})
	go func() {
		release, err := p.Acquire(context.Background())
		if err == nil {
			release()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("acquire succeeded while pool was exhausted")
	case <-time.After(100 * time.Millisecond):
	}

	// Freeing one slot unblocks the queued acquire.
	releases[0]()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("queued acquire did not proceed after a slot was released")
	}

	for _, release := range releases[1:] {
		release()
	}
}

// Cancelling a queued acquire releases the waiter without consuming a slot.
func TestWorkerPool_AcquireCancelled(t *testing.T) {
	p := New(1)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, p.InUse())

	release()
	assert.Equal(t, 0, p.InUse())
}

func TestWorkerPool_TryAcquire(t *testing.T) {
	p := New(1)

	release, ok := p.TryAcquire()
	require.True(t, ok)

	_, ok = p.TryAcquire()
	assert.False(t, ok)

	release()
	release2, ok := p.TryAcquire()
	require.True(t, ok)
	release2()
}

func TestWorkerPool_Run(t *testing.T) {
	p := New(1)

	wantErr := errors.New("task failed")
	err := p.Run(context.Background(), func(ctx context.Context) error {
		assert.Equal(t, 1, p.InUse())
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 0, p.InUse())
}

// A panic between acquire and release must still release the slot.
func TestWorkerPool_RunReleasesOnPanic(t *testing.T) {
	p := New(1)

	err := p.Run(context.Background(), func(ctx context.Context) error {
		panic("boom")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")

	// Slot must be free again.
	assert.Equal(t, 0, p.InUse())
	release, ok := p.TryAcquire()
	require.True(t, ok)
	release()
}

func TestWorkerPool_RunCancelledBeforeSlot(t *testing.T) {
	p := New(1)

	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err = p.Run(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

// Capacity invariant under heavy concurrent load: in-use never exceeds capacity.
func TestWorkerPool_CapacityInvariant(t *testing.T) {
	const capacity = 4
	const workers = 64

	p := New(capacity)
	var peak atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.Run(context.Background(), func(ctx context.Context) error {
				n := int32(p.InUse())
				for {
					old := peak.Load()
					if n <= old || peak.CompareAndSwap(old, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, int(peak.Load()), capacity)
	assert.Equal(t, 0, p.InUse())
	assert.Equal(t, int64(workers), p.Stats().Acquired)
	assert.Equal(t, int64(workers), p.Stats().Released)
}
