package sampler

import (
	"iter"
)

// Dataset wraps the caller's items so the sampler can consume a prefix
// without destroying a single-pass source. Consumed items are buffered;
// All presents buffer-plus-remainder as one logical sequence, so a full
// traversal always yields every original item in original order no
// matter how many were sampled.
type Dataset struct {
	items []any
	next  func() (any, bool)
	stop  func()
}

// FromSlice wraps an in-memory dataset. The slice is not copied.
func FromSlice(items []any) *Dataset {
	return &Dataset{items: items}
}

// FromSeq wraps a single-pass sequence. The sequence is pulled lazily;
// items the sampler consumes are buffered for replay.
func FromSeq(seq iter.Seq[any]) *Dataset {
	next, stop := iter.Pull(seq)
	return &Dataset{next: next, stop: stop}
}

// take consumes up to n items from the front of the dataset, buffering
// any that had to be pulled from a single-pass source.
func (d *Dataset) take(n int) []any {
	for len(d.items) < n && d.pull() {
	}
	if n > len(d.items) {
		n = len(d.items)
	}
	return d.items[:n]
}

// pull draws one more item from the remainder into the buffer.
func (d *Dataset) pull() bool {
	if d.next == nil {
		return false
	}
	item, ok := d.next()
	if !ok {
		d.stop()
		d.next = nil
		d.stop = nil
		return false
	}
	d.items = append(d.items, item)
	return true
}

// All returns the reconstructed sequence: buffered items first, then
// the unconsumed remainder. Items pulled during traversal join the
// buffer, so once any traversal completes, later ones replay the whole
// dataset.
func (d *Dataset) All() iter.Seq[any] {
	return func(yield func(any) bool) {
		for i := 0; i < len(d.items); i++ {
			if !yield(d.items[i]) {
				return
			}
		}
		for d.pull() {
			if !yield(d.items[len(d.items)-1]) {
				return
			}
		}
	}
}

// Materialize drains the remainder into the buffer and returns the full
// dataset. The planner uses it to learn the item count; afterwards the
// dataset behaves exactly like a slice dataset.
func (d *Dataset) Materialize() []any {
	for d.pull() {
	}
	return d.items
}

// Len returns the item count if it is known without consuming the
// source; ok is false while a single-pass remainder is unconsumed.
func (d *Dataset) Len() (n int, ok bool) {
	if d.next != nil {
		return len(d.items), false
	}
	return len(d.items), true
}
