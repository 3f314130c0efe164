package adaptive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationWindowAverage(t *testing.T) {
	w := newDurationWindow(5)
	assert.Zero(t, w.average())
	assert.Zero(t, w.depth())

	w.observe(10 * time.Millisecond)
	w.observe(20 * time.Millisecond)
	assert.Equal(t, 15*time.Millisecond, w.average())
	assert.Equal(t, 2, w.depth())
}

func TestDurationWindowEvictsOldest(t *testing.T) {
	w := newDurationWindow(3)
	w.observe(time.Millisecond)
	w.observe(2 * time.Millisecond)
	w.observe(3 * time.Millisecond)
	w.observe(10 * time.Millisecond)

	assert.Equal(t, 3, w.depth())
	assert.Equal(t, 5*time.Millisecond, w.average())
}

func TestDurationWindowNeverExceedsCapacity(t *testing.T) {
	w := newDurationWindow(4)
	for i := 0; i < 20; i++ {
		w.observe(time.Millisecond)
	}
	assert.Equal(t, 4, w.depth())
}
