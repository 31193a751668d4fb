package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/agora/internal/debate"
)

func TestInMemoryStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewInMemoryStore()
	})
}

func TestSQLiteStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		path := filepath.Join(t.TempDir(), "agora.db")
		store, err := NewSQLiteStore(context.Background(), path, true)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func TestPostgresStoreContract(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	runStoreContract(t, func(t *testing.T) Store {
		store, err := NewPostgresStore(context.Background(), url, true)
		require.NoError(t, err)
		t.Cleanup(func() { _ = store.Close() })
		return store
	})
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("create get", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		created, err := store.Create(ctx, "  Zoos should close  ", debate.PositionFor, debate.PositionAgainst)
		require.NoError(t, err)
		assert.NotEmpty(t, created.ID)
		assert.Equal(t, "Zoos should close", created.Topic)
		assert.Equal(t, debate.PhaseSetup, created.Phase)
		assert.Equal(t, 1, created.Version)

		got, err := store.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, debate.PositionFor, got.UserPosition)
		assert.Equal(t, debate.PositionAgainst, got.AIPosition)
		assert.Empty(t, got.Turns)

		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("save round trip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sess, err := store.Create(ctx, "Remote work is better", debate.PositionAgainst, debate.PositionFor)
		require.NoError(t, err)

		conf := 0.75
		at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		sess.Phase = debate.PhaseOpening
		sess.CurrentRound = 1
		sess.Metadata[debate.MetaCategory] = "society"
		sess.Turns = append(sess.Turns,
			debate.Turn{ID: "t1", Role: debate.RoleUser, Content: "Offices matter.", Timestamp: at,
				Metadata: map[string]string{debate.MetaClass: string(debate.ClassNormalArgument)}},
			debate.Turn{ID: "t2", Role: debate.RoleAssistant, Persona: debate.PersonaDebaterFor,
				Content: "Remote work saves time.", Confidence: &conf, Reasoning: "commute data", Timestamp: at,
				Metadata: map[string]string{debate.MetaPurpose: debate.PurposeArgument}},
		)
		sess.Memory = &debate.MemorySummary{Content: "Earlier...", Covered: 1, UpdatedAt: at}
		require.NoError(t, store.Save(ctx, sess))
		assert.Equal(t, 2, sess.Version)

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, debate.PhaseOpening, got.Phase)
		assert.Equal(t, 1, got.CurrentRound)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, "society", got.Meta(debate.MetaCategory))
		require.Len(t, got.Turns, 2)
		assert.Equal(t, "t1", got.Turns[0].ID)
		assert.Nil(t, got.Turns[0].Confidence)
		require.NotNil(t, got.Turns[1].Confidence)
		assert.InDelta(t, 0.75, *got.Turns[1].Confidence, 1e-9)
		assert.Equal(t, debate.PersonaDebaterFor, got.Turns[1].Persona)
		assert.Equal(t, debate.PurposeArgument, got.Turns[1].Purpose())
		assert.True(t, at.Equal(got.Turns[1].Timestamp))
		require.NotNil(t, got.Memory)
		assert.Equal(t, 1, got.Memory.Covered)
		assert.Nil(t, got.Evaluation)

		got.Turns = append(got.Turns, debate.Turn{ID: "t3", Role: debate.RoleUser, Content: "More.", Timestamp: at})
		got.Evaluation = &debate.Report{
			Scores: map[debate.Dimension]float64{debate.DimensionConsistency: 0.6},
			Source: debate.ReportSourceRubric,
		}
		require.NoError(t, store.Save(ctx, got))
		again, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Len(t, again.Turns, 3)
		require.NotNil(t, again.Evaluation)
		assert.InDelta(t, 0.6, again.Evaluation.Scores[debate.DimensionConsistency], 1e-9)
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sess, err := store.Create(ctx, "Tax sugar", debate.PositionFor, debate.PositionAgainst)
		require.NoError(t, err)

		sess.Turns = append(sess.Turns, debate.Turn{ID: "unsaved", Role: debate.RoleUser})
		sess.Phase = debate.PhaseClosing

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Empty(t, got.Turns)
		assert.Equal(t, debate.PhaseSetup, got.Phase)
	})

	t.Run("stale save conflicts", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sess, err := store.Create(ctx, "Tax sugar", debate.PositionFor, debate.PositionAgainst)
		require.NoError(t, err)

		first, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		second, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)

		first.CurrentRound = 1
		require.NoError(t, store.Save(ctx, first))
		second.CurrentRound = 7
		assert.ErrorIs(t, store.Save(ctx, second), ErrConflict)

		got, err := store.Get(ctx, sess.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.CurrentRound)
	})

	t.Run("delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sess, err := store.Create(ctx, "Tax sugar", debate.PositionFor, debate.PositionAgainst)
		require.NoError(t, err)
		sess.Turns = append(sess.Turns, debate.Turn{ID: "t1", Role: debate.RoleUser, Content: "x", Timestamp: time.Now()})
		require.NoError(t, store.Save(ctx, sess))

		require.NoError(t, store.Delete(ctx, sess.ID))
		_, err = store.Get(ctx, sess.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, store.Delete(ctx, sess.ID), ErrNotFound)
		assert.ErrorIs(t, store.Save(ctx, sess), ErrNotFound)
	})

	t.Run("purge idle", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		_, err := store.Create(ctx, "Old", debate.PositionFor, debate.PositionAgainst)
		require.NoError(t, err)
		_, err = store.Create(ctx, "Older", debate.PositionFor, debate.PositionAgainst)
		require.NoError(t, err)

		purged, err := store.PurgeIdle(ctx, time.Now().UTC().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 0, purged)

		purged, err = store.PurgeIdle(ctx, time.Now().UTC().Add(time.Second))
		require.NoError(t, err)
		assert.Equal(t, 2, purged)
		n, err := store.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("concurrent saves keep one winner", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		sess, err := store.Create(ctx, "Tax sugar", debate.PositionFor, debate.PositionAgainst)
		require.NoError(t, err)

		const writers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			ok        int
			conflicts int
		)
		for i := 0; i < writers; i++ {
			attempt := sess.Clone()
			attempt.CurrentRound = i + 1
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := store.Save(ctx, attempt)
				mu.Lock()
				defer mu.Unlock()
				if err == nil {
					ok++
					return
				}
				if errors.Is(err, ErrConflict) {
					conflicts++
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, ok)
		assert.Equal(t, writers-1, conflicts)
	})
}

func TestNewStoreSelectsDriver(t *testing.T) {
	ctx := context.Background()

	store, err := NewStore(ctx, Config{})
	require.NoError(t, err)
	assert.Equal(t, "memory", store.Driver())

	store, err = NewStore(ctx, Config{SQLitePath: filepath.Join(t.TempDir(), "a.db"), AutoMigrate: true})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", store.Driver())
	require.NoError(t, store.Close())

	_, err = NewStore(ctx, Config{Driver: "postgres"})
	assert.Error(t, err)
	_, err = NewStore(ctx, Config{Driver: "cassandra"})
	assert.Error(t, err)
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "m.db"), false)
	require.NoError(t, err)
	defer store.Close()

	applied, err := store.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, applied)

	applied, err = store.Migrate(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)
}
