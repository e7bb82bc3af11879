package engine_test

import (
	"context"
	"testing"
	"time"

	"crosslink-server/internal/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairKeyCanonicalizes(t *testing.T) {
	assert.Equal(t, engine.PairKey(10, 11), engine.PairKey(11, 10))
	assert.NotEqual(t, engine.PairKey(10, 11), engine.PairKey(10, 12))
}

func TestPairLockerMutualExclusion(t *testing.T) {
	l := engine.NewPairLocker()
	key := engine.PairKey(1, 2)

	release, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, key)
	assert.ErrorIs(t, err, engine.ErrBusy)

	release()

	// released lock is acquirable again
	release2, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)
	release2()
}

func TestPairLockerCancellationIsNotBusy(t *testing.T) {
	l := engine.NewPairLocker()
	key := engine.PairKey(1, 2)

	release, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)
	defer release()

	// the caller walking away is not contention worth retrying
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, engine.ErrBusy)
}

func TestPairLockerIndependentPairs(t *testing.T) {
	l := engine.NewPairLocker()

	release1, err := l.Acquire(context.Background(), engine.PairKey(1, 2))
	require.NoError(t, err)
	defer release1()

	// a different pair is not blocked
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	release2, err := l.Acquire(ctx, engine.PairKey(3, 4))
	require.NoError(t, err)
	release2()
}

func TestPairLockerHandsOffToWaiter(t *testing.T) {
	l := engine.NewPairLocker()
	key := engine.PairKey(7, 8)

	release, err := l.Acquire(context.Background(), key)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(context.Background(), key)
		if err == nil {
			r()
		}
		close(acquired)
	}()

	time.Sleep(20 * time.Millisecond)
	release()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the released lock")
	}
}
