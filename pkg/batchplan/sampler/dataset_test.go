package sampler

import (
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intSeq(n int) iter.Seq[any] {
	return func(yield func(any) bool) {
		for i := 0; i < n; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

func collect(d *Dataset) []any {
	var out []any
	for item := range d.All() {
		out = append(out, item)
	}
	return out
}

// Sampling a prefix of a single-pass sequence must not cost the caller
// any items: a full traversal afterwards yields all N in order.
func TestDatasetReconstruction(t *testing.T) {
	const n = 10

	for k := 0; k < n; k++ {
		d := FromSeq(intSeq(n))

		taken := d.take(k)
		require.Len(t, taken, k)

		got := collect(d)
		require.Len(t, got, n, "sampleSize=%d", k)
		for i, item := range got {
			assert.Equal(t, i, item)
		}
	}
}

func TestDatasetReplayAfterFullTraversal(t *testing.T) {
	d := FromSeq(intSeq(5))
	first := collect(d)
	second := collect(d)
	assert.Equal(t, first, second)
}

func TestDatasetTakeBeyondLength(t *testing.T) {
	d := FromSeq(intSeq(3))
	taken := d.take(10)
	assert.Len(t, taken, 3)
	assert.Len(t, collect(d), 3)
}

func TestDatasetLen(t *testing.T) {
	d := FromSeq(intSeq(4))
	_, known := d.Len()
	assert.False(t, known, "length unknown before the remainder drains")

	d.Materialize()
	n, known := d.Len()
	assert.True(t, known)
	assert.Equal(t, 4, n)

	s := FromSlice([]any{1, 2, 3})
	n, known = s.Len()
	assert.True(t, known)
	assert.Equal(t, 3, n)
}

func TestDatasetFromSliceNotCopied(t *testing.T) {
	items := []any{1, 2, 3}
	d := FromSlice(items)
	assert.Equal(t, items, d.Materialize())
}
