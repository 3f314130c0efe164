package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
)

var echoTask = func(item any) (any, error) { return item, nil }

func init() {
	pool.Register("cmd-test-echo", echoTask)
}

func TestRunMemoRoundTrip(t *testing.T) {
	_, ok := cachedRun(echoTask, 3)
	assert.False(t, ok)

	results := []pool.Result{
		{Index: 0, Value: 1},
		{Index: 1, Value: 2},
		{Index: 2, Value: 3},
	}
	rememberRun(echoTask, 3, results)

	got, ok := cachedRun(echoTask, 3)
	require.True(t, ok)
	assert.Equal(t, results, got)

	_, ok = cachedRun(echoTask, 4)
	assert.False(t, ok, "a different dataset size is a different run")
}

func TestRunMemoSkipsUnregisteredFunctions(t *testing.T) {
	anon := func(item any) (any, error) { return item, nil }

	rememberRun(anon, 3, []pool.Result{{Index: 0}})
	_, ok := cachedRun(anon, 3)
	assert.False(t, ok)
}
