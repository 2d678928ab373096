package gcs

import "sync"

// FIFO is a fixed-length, power-of-two-capacity ring buffer of Actions,
// multi-producer/single-consumer, with blocking enqueue/dequeue protected
// by a mutex and two condition variables (not_full, not_empty) and a
// closed flag for shutdown (spec.md §4.3 "Framing").
type FIFO struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	buf    []Action
	head   int
	tail   int
	count  int
	closed bool
}

// NewFIFO builds a FIFO whose capacity is rounded up to the next power of
// two, per the fixed power-of-two capacity requirement.
func NewFIFO(capacity int) *FIFO {
	c := nextPow2(capacity)

	f := &FIFO{buf: make([]Action, c)}
	f.notFull = sync.NewCond(&f.mu)
	f.notEmpty = sync.NewCond(&f.mu)

	return f
}

func nextPow2(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Enqueue blocks while the FIFO is full, then appends a. Returns
// ErrorFIFOClosed if the FIFO is closed either before or while waiting.
func (f *FIFO) Enqueue(a Action) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.count == len(f.buf) && !f.closed {
		f.notFull.Wait()
	}

	if f.closed {
		return ErrorFIFOClosed.Error()
	}

	f.buf[f.tail] = a
	f.tail = (f.tail + 1) % len(f.buf)
	f.count++

	f.notEmpty.Signal()
	return nil
}

// Dequeue blocks while the FIFO is empty, then pops the oldest Action.
// Returns ok=false once the FIFO is closed and drained.
func (f *FIFO) Dequeue() (Action, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for f.count == 0 && !f.closed {
		f.notEmpty.Wait()
	}

	if f.count == 0 {
		return Action{}, false
	}

	a := f.buf[f.head]
	f.buf[f.head] = Action{}
	f.head = (f.head + 1) % len(f.buf)
	f.count--

	f.notFull.Signal()
	return a, true
}

// Close transitions the FIFO to a closed state, waking every blocked
// waiter; outstanding Enqueue calls return ErrorFIFOClosed, outstanding
// Dequeue calls drain whatever remains, then return ok=false.
func (f *FIFO) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()

	f.notFull.Broadcast()
	f.notEmpty.Broadcast()
}

func (f *FIFO) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func (f *FIFO) Cap() int {
	return len(f.buf)
}
