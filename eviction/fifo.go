// This file implements FIFO overflow selection.

package eviction

type fifo struct {
	// queue keeps keys in insertion order; index 0 is the oldest.
	queue []string

	// set tracks which keys are currently queued.
	set map[string]struct{}
}

func newFIFO() *fifo {
	return &fifo{
		queue: make([]string, 0),
		set:   make(map[string]struct{}),
	}
}

// OnAttach is ignored; FIFO only cares about insertion order.
func (f *fifo) OnAttach(string) {}

// OnInsert queues a key the first time it is inserted.
func (f *fifo) OnInsert(k string) {
	if _, ok := f.set[k]; ok {
		return
	}
	f.queue = append(f.queue, k)
	f.set[k] = struct{}{}
}

// Evict proposes the oldest inserted key.
func (f *fifo) Evict() string {
	if len(f.queue) == 0 {
		return ""
	}
	k := f.queue[0]
	f.queue = f.queue[1:]
	delete(f.set, k)
	return k
}

// Remove drops bookkeeping for a key that was removed outside overflow,
// preserving the order of the rest of the queue.
func (f *fifo) Remove(k string) {
	if _, ok := f.set[k]; !ok {
		return
	}
	delete(f.set, k)
	for i, v := range f.queue {
		if v == k {
			f.queue = append(f.queue[:i], f.queue[i+1:]...)
			break
		}
	}
}
