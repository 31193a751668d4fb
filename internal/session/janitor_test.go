package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ent0n29/agora/internal/debate"
)

func TestJanitorPurgesIdleSessions(t *testing.T) {
	store := NewInMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := store.Create(ctx, "Tax sugar", debate.PositionFor, debate.PositionAgainst)
	require.NoError(t, err)

	var purged atomic.Int64
	j := NewJanitor(store, 30*time.Millisecond, zap.NewNop())
	j.SetSweepHook(func(n, _ int) { purged.Add(int64(n)) })

	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx, 10*time.Millisecond)
	}()

	assert.Eventually(t, func() bool { return purged.Load() == 1 }, time.Second, 10*time.Millisecond)
	_, err = store.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	cancel()
	<-done
}

func TestJanitorKeepsRecentSessions(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "Tax sugar", debate.PositionFor, debate.PositionAgainst)
	require.NoError(t, err)

	remaining := -1
	j := NewJanitor(store, time.Hour, nil)
	j.SetSweepHook(func(_, r int) { remaining = r })
	n, err := j.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 1, remaining)
}
