package chat

import "container/heap"

// cursor tracks the highest id below which every submitted id has finished.
// Completions may arrive out of order; pending ids sit in a min-heap and the
// cursor only moves once the smallest outstanding id is done.
type cursor struct {
	value   int64
	pending idHeap
	queued  map[int64]bool
	done    map[int64]bool
}

func newCursor(start int64) *cursor {
	return &cursor{
		value:  start,
		queued: make(map[int64]bool),
		done:   make(map[int64]bool),
	}
}

// begin registers id as submitted. Ids at or below the cursor are ignored.
func (c *cursor) begin(id int64) {
	if id <= c.value || c.queued[id] {
		return
	}
	c.queued[id] = true
	heap.Push(&c.pending, id)
}

// finish marks id as processed and advances the cursor when possible.
func (c *cursor) finish(id int64) {
	if !c.queued[id] {
		return
	}
	c.done[id] = true
	for c.pending.Len() > 0 {
		low := c.pending[0]
		if !c.done[low] {
			break
		}
		heap.Pop(&c.pending)
		delete(c.done, low)
		delete(c.queued, low)
		if low > c.value {
			c.value = low
		}
	}
}

// outstanding returns how many submitted ids have not finished yet.
func (c *cursor) outstanding() int {
	return c.pending.Len() - len(c.done)
}

type idHeap []int64

func (h idHeap) Len() int           { return len(h) }
func (h idHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h idHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x any)        { *h = append(*h, x.(int64)) }

func (h *idHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
