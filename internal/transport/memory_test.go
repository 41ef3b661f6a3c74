package transport

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDisconnectReleasesSubscriptions(t *testing.T) {
	m := NewMemory()
	baseline := runtime.NumGoroutine()

	var streams []<-chan Message
	for i := 0; i < 50; i++ {
		ch, err := m.Subscribe(context.Background(), "/csync/laptop")
		require.NoError(t, err)
		streams = append(streams, ch)
	}
	require.Equal(t, 50, m.Subscribers())

	m.Disconnect()
	assert.Zero(t, m.Subscribers())
	for _, ch := range streams {
		_, ok := <-ch
		assert.False(t, ok)
	}
	require.Eventually(t, func() bool { return runtime.NumGoroutine() <= baseline },
		2*time.Second, 10*time.Millisecond)
}

func TestMemoryCancelEndsSubscription(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := m.Subscribe(ctx, "/csync/laptop")
	require.NoError(t, err)

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after cancel")
	}
	assert.Zero(t, m.Subscribers())

	// Disconnect after the cancel-driven drop must not close twice.
	m.Disconnect()
}
