package gcache

import (
	"sort"
	"sync"

	"github.com/nabbar/wsrepl/gcs"
)

// Index is the shared seqno -> buffer pointer mapping (spec.md §3
// "Seqno->ptr index", §9 "an explicit object passed to every store at
// construction; its mutex is held only across index updates, not across
// allocator calls"). Ordered mapping, O(log n) lookup by seqno, O(1)
// lowest/highest.
type Index struct {
	mu   sync.Mutex
	keys []gcs.SEQNO // sorted ascending
	bufs map[gcs.SEQNO]*Buffer
}

func NewIndex() *Index {
	return &Index{bufs: make(map[gcs.SEQNO]*Buffer)}
}

// Assign inserts s -> buf, keeping keys sorted for O(log n) search.
func (idx *Index) Assign(s gcs.SEQNO, buf *Buffer) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.bufs[s]; exists {
		idx.bufs[s] = buf
		return
	}

	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= s })
	idx.keys = append(idx.keys, 0)
	copy(idx.keys[i+1:], idx.keys[i:])
	idx.keys[i] = s
	idx.bufs[s] = buf
}

// Remove erases the index entry for s (used by discard).
func (idx *Index) Remove(s gcs.SEQNO) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= s })
	if i < len(idx.keys) && idx.keys[i] == s {
		idx.keys = append(idx.keys[:i], idx.keys[i+1:]...)
	}
	delete(idx.bufs, s)
}

// Lookup returns the buffer registered for s, by map lookup.
func (idx *Index) Lookup(s gcs.SEQNO) (*Buffer, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	b, ok := idx.bufs[s]
	return b, ok
}

// Bounds returns the lowest and highest seqno currently indexed, O(1).
func (idx *Index) Bounds() (low, high gcs.SEQNO, ok bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.keys) == 0 {
		return gcs.NoneSeqno, gcs.NoneSeqno, false
	}

	return idx.keys[0], idx.keys[len(idx.keys)-1], true
}

// Contiguous verifies the invariant that the index is contiguous over
// [low, high] with no gap (spec.md §3 invariant); any gap, including one
// left during recovery, makes it report false.
func (idx *Index) Contiguous() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for i := 1; i < len(idx.keys); i++ {
		if idx.keys[i] != idx.keys[i-1]+1 {
			return false
		}
	}
	return true
}

// Range returns every buffer with seqno in [from, to], inclusive, used by
// IST to drain a joiner's catch-up window.
func (idx *Index) Range(from, to gcs.SEQNO) []*Buffer {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	out := make([]*Buffer, 0)
	i := sort.Search(len(idx.keys), func(i int) bool { return idx.keys[i] >= from })

	for ; i < len(idx.keys) && idx.keys[i] <= to; i++ {
		out = append(out, idx.bufs[idx.keys[i]])
	}

	return out
}
