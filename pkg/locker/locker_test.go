package locker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	l := NewMemoryLocker()

	var mu sync.Mutex
	inSection := 0
	maxSeen := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "slot:doc-1", time.Second)
			require.NoError(t, err)
			defer release()

			mu.Lock()
			inSection++
			if inSection > maxSeen {
				maxSeen = inSection
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inSection--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen, "only one holder at a time")
}

func TestMemoryLockerKeysAreIndependent(t *testing.T) {
	l := NewMemoryLocker()

	releaseA, err := l.Acquire(context.Background(), "slot:doc-1", time.Second)
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := l.Acquire(ctx, "slot:doc-2", time.Second)
	require.NoError(t, err, "a different key is not blocked")
	releaseB()
}

func TestMemoryLockerAcquireHonoursContext(t *testing.T) {
	l := NewMemoryLocker()

	release, err := l.Acquire(context.Background(), "slot:doc-1", time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "slot:doc-1", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Once the holder releases, the key is usable again even though an
	// abandoned waiter took the mutex in the background.
	release()

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	release2, err := l.Acquire(ctx2, "slot:doc-1", time.Second)
	require.NoError(t, err)
	release2()
}
