package assistant

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsQueue(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 1}, zerolog.Nop())
	require.NoError(t, p.Start(context.Background()))

	running := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) {
		close(running)
		<-release
	}))
	<-running

	var queuedCancelled atomic.Bool
	require.NoError(t, p.Submit(func(ctx context.Context) {
		queuedCancelled.Store(ctx.Err() != nil)
	}))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolFull)
	assert.Equal(t, 1, p.QueueDepth())

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	p.Stop()

	assert.True(t, queuedCancelled.Load())
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrPoolStopped)
}

func TestPoolRecoversFromPanics(t *testing.T) {
	p := NewPool(PoolConfig{Workers: 1, QueueSize: 2}, zerolog.Nop())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
}
