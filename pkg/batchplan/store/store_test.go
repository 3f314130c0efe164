package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDecision() types.Decision {
	return types.Decision{
		ID:               "d-1",
		Workers:          4,
		BatchSize:        16,
		Backend:          types.BackendIsolated,
		EstimatedSpeedup: 3.2,
		Reason:           types.ReasonCostModel,
		Adaptive:         true,
		CreatedAt:        time.Now().UTC().Truncate(time.Second),
	}
}

func TestStorePutGetDecision(t *testing.T) {
	s := openTestStore(t)
	want := sampleDecision()

	require.NoError(t, s.PutDecision("v1/task/100", want))

	got, err := s.GetDecision("v1/task/100")
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.Workers, got.Workers)
	assert.Equal(t, want.BatchSize, got.BatchSize)
	assert.Equal(t, want.Backend, got.Backend)
	assert.Equal(t, want.Reason, got.Reason)
}

func TestStoreGetMissing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetDecision("absent")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreDelete(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutDecision("k", sampleDecision()))
	require.NoError(t, s.Delete("k"))

	_, err := s.GetDecision("k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreKeys(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.PutDecision("v1/a/10", sampleDecision()))
	require.NoError(t, s.PutDecision("v1/b/20", sampleDecision()))

	keys, err := s.Keys()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v1/a/10", "v1/b/20"}, keys)
}

func TestDecisionCacheMissIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	cache := NewDecisionCache(s)

	_, ok, err := cache.Get("absent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDecisionCacheRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cache := NewDecisionCache(s)
	want := sampleDecision()

	require.NoError(t, cache.Put("k", want))

	got, ok, err := cache.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.ID, got.ID)
}

func TestDecisionCacheClosedStoreErrors(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	cache := NewDecisionCache(s)
	require.NoError(t, s.Close())

	_, _, err = cache.Get("k")
	assert.Error(t, err, "a closed store surfaces an error for the planner to treat as a miss")
	assert.False(t, errors.Is(err, ErrNotFound))
}
