package locks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Release(t *testing.T) {
	r := NewRegistry()

	release, err := r.Acquire(context.Background(), "acme__widgets.git")
	require.NoError(t, err)
	release()

	// Reacquirable after release.
	release, err = r.Acquire(context.Background(), "acme__widgets.git")
	require.NoError(t, err)
	release()
}

func TestAcquire_SameKeySerializes(t *testing.T) {
	r := NewRegistry()
	const key = "acme__widgets.git"
	const workers = 8

	var mu sync.Mutex
	var active, maxActive int

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Do(context.Background(), key, func(context.Context) error {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive, "operations on one key must never overlap")
}

func TestAcquire_DifferentKeysConcurrent(t *testing.T) {
	r := NewRegistry()

	// Hold key A, then verify key B is acquirable without waiting.
	releaseA, err := r.Acquire(context.Background(), "a")
	require.NoError(t, err)
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := r.Acquire(ctx, "b")
	require.NoError(t, err, "different key must not block on a's holder")
	releaseB()
}

func TestAcquire_ContextTimeout(t *testing.T) {
	r := NewRegistry()
	const key = "contended"

	release, err := r.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = r.Acquire(ctx, key)
	require.Error(t, err)

	var terr *AcquireTimeoutError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, key, terr.Key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_ErrorPropagatedAndLockReleased(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")

	err := r.Do(context.Background(), "k", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// Lock must be free again after the failed operation.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release, err := r.Acquire(ctx, "k")
	require.NoError(t, err)
	release()
}

func TestDo_PanicStillObservable(t *testing.T) {
	// A release func returned by Acquire is idempotent even if called
	// twice on a weird exit path.
	r := NewRegistry()
	release, err := r.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release() // second call is a no-op

	assert.Equal(t, 0, r.Len())
}

func TestRegistry_EvictsAtZeroRefs(t *testing.T) {
	r := NewRegistry()

	release, err := r.Acquire(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, 1, r.Len())
	release()
	assert.Equal(t, 0, r.Len())

	// A timed-out waiter also drops its reference.
	hold, err := r.Acquire(context.Background(), "b")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	_, err = r.Acquire(ctx, "b")
	cancel()
	require.Error(t, err)
	assert.Equal(t, 1, r.Len())

	hold()
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_ConcurrentFirstAccess(t *testing.T) {
	// Many goroutines hitting a fresh key must agree on one entry and
	// leave the registry empty afterwards.
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Do(context.Background(), "fresh", func(context.Context) error {
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Len())
}
