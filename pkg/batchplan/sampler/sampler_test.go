package sampler

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/batchplan/pkg/batchplan/pool"
	"github.com/jamesainslie/batchplan/pkg/batchplan/types"
)

var echoTask = func(item any) (any, error) { return item, nil }

func init() {
	pool.Register("sampler-test-echo", echoTask)
	pool.RegisterType(0)
}

func TestSampleStatistics(t *testing.T) {
	fn := func(item any) (any, error) {
		time.Sleep(2 * time.Millisecond)
		return item, nil
	}
	data := FromSlice([]any{1, 2, 3, 4, 5, 6, 7, 8})

	report, err := Sample(fn, data, 5)
	require.NoError(t, err)

	assert.Len(t, report.Samples, 5)
	assert.Empty(t, report.ItemErrors)
	assert.GreaterOrEqual(t, report.PerItem, 2*time.Millisecond)
	assert.NotEqual(t, types.WorkloadClass(""), report.Class)
}

func TestSampleLeavesDatasetIntact(t *testing.T) {
	fn := func(item any) (any, error) { return item, nil }
	data := FromSeq(intSeq(20))

	_, err := Sample(fn, data, 5)
	require.NoError(t, err)

	assert.Len(t, collect(data), 20)
}

func TestSamplePartialFailures(t *testing.T) {
	fn := func(item any) (any, error) {
		if item.(int)%2 == 1 {
			return nil, fmt.Errorf("odd item %d", item)
		}
		return item, nil
	}
	data := FromSlice([]any{0, 1, 2, 3, 4, 5})

	report, err := Sample(fn, data, 6)
	require.NoError(t, err)

	assert.Len(t, report.Samples, 3)
	assert.Len(t, report.ItemErrors, 3)
}

func TestSamplePanicBecomesItemError(t *testing.T) {
	fn := func(item any) (any, error) {
		if item.(int) == 0 {
			panic("boom")
		}
		return item, nil
	}
	data := FromSlice([]any{0, 1, 2})

	report, err := Sample(fn, data, 3)
	require.NoError(t, err)

	require.Len(t, report.ItemErrors, 1)
	assert.Contains(t, report.ItemErrors[0].Error(), "panic")
}

func TestSampleAllItemsFail(t *testing.T) {
	fn := func(item any) (any, error) { return nil, errors.New("nope") }
	data := FromSlice([]any{1, 2, 3})

	_, err := Sample(fn, data, 3)
	assert.ErrorIs(t, err, ErrSamplingFailed)
}

func TestSampleEmptyDataset(t *testing.T) {
	fn := func(item any) (any, error) { return item, nil }
	data := FromSlice(nil)

	_, err := Sample(fn, data, 5)
	assert.ErrorIs(t, err, ErrSamplingFailed)
}

func TestVariability(t *testing.T) {
	uniform := &Report{Samples: []types.Sample{
		{Wall: 10 * time.Millisecond},
		{Wall: 10 * time.Millisecond},
		{Wall: 10 * time.Millisecond},
	}}
	assert.Zero(t, uniform.Variability())

	// Mean 20ms, population stddev 10ms.
	spread := &Report{Samples: []types.Sample{
		{Wall: 10 * time.Millisecond},
		{Wall: 10 * time.Millisecond},
		{Wall: 30 * time.Millisecond},
		{Wall: 30 * time.Millisecond},
	}}
	assert.InDelta(t, 0.5, spread.Variability(), 1e-9)

	single := &Report{Samples: []types.Sample{{Wall: time.Millisecond}}}
	assert.Zero(t, single.Variability())
}

func TestCheckTransferability(t *testing.T) {
	report := &Report{}
	err := report.CheckTransferability(echoTask, 42)
	require.NoError(t, err)
	assert.Greater(t, report.ItemBytes, int64(0))
}

func TestCheckTransferabilityUnregisteredFunc(t *testing.T) {
	report := &Report{}
	anon := func(item any) (any, error) { return item, nil }

	err := report.CheckTransferability(anon, 42)
	assert.ErrorIs(t, err, ErrNotTransferable)
	assert.Zero(t, report.ItemBytes)
}

func TestCheckTransferabilityUnencodableItem(t *testing.T) {
	report := &Report{}
	err := report.CheckTransferability(echoTask, make(chan int))
	assert.ErrorIs(t, err, ErrNotTransferable)
}
