package gcache

import (
	"sync"

	"github.com/nabbar/wsrepl/gcs"
)

// MemStore is the bounded RAM page (spec.md §4.4). Every allocation is
// recorded in a set for safe free; size_ is tracked against mem_max.
type MemStore struct {
	mu      sync.Mutex
	memMax  int
	size    int
	index   *Index
	live    map[*Buffer]struct{}
}

func NewMemStore(memMax int, idx *Index) *MemStore {
	return &MemStore{
		memMax: memMax,
		index:  idx,
		live:   make(map[*Buffer]struct{}),
	}
}

// Malloc allocates size bytes from the RAM page. Returns ErrorNoSpace if
// the allocation would exceed mem_max; callers fall back to PageStore on
// that error (spec.md §4.4 "Policies").
func (m *MemStore) Malloc(size int) (*Buffer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size+size > m.memMax {
		return nil, ErrorNoSpace.Error()
	}

	b := newBuffer(size, StoreMem)
	m.live[b] = struct{}{}
	m.size += size

	return b, nil
}

// Realloc attempts in-place growth (trivial here since Buffer.Payload is a
// plain slice); on failure to grow (size would exceed mem_max), it falls
// back to allocate-copy-free, and on total failure the original buffer
// survives untouched (spec.md §9 Open Question: realloc must not rely on
// the old buffer having moved on failure).
func (m *MemStore) Realloc(b *Buffer, newSize int) (*Buffer, error) {
	m.mu.Lock()
	delta := newSize - b.Size
	if m.size+delta <= m.memMax {
		m.size += delta
		m.mu.Unlock()

		grown := make([]byte, newSize)
		copy(grown, b.Payload)
		b.Payload = grown
		b.Size = newSize
		return b, nil
	}
	m.mu.Unlock()

	nb, err := m.Malloc(newSize)
	if err != nil {
		// Allocate-copy-free failed: original buffer is left untouched.
		return b, err
	}

	copy(nb.Payload, b.Payload)
	_ = m.Free(b)

	return nb, nil
}

// Free marks the header released but keeps the payload addressable until
// it is safely outside the window (discard physically reclaims it).
func (m *MemStore) Free(b *Buffer) error {
	b.release()
	return nil
}

// Repossess re-claims an already-released buffer that is still within the
// seqno window: it is handed back for reuse without the bytes changing.
func (m *MemStore) Repossess(b *Buffer) (*Buffer, error) {
	m.mu.Lock()
	_, ok := m.live[b]
	m.mu.Unlock()

	if !ok {
		return nil, ErrorParamsInvalid.Error()
	}

	if !b.released() {
		return nil, ErrorParamsInvalid.Error()
	}

	b.mu.Lock()
	b.Flags &^= FlagReleased
	b.mu.Unlock()

	return b, nil
}

// Discard physically reclaims b and erases its index entry. Respects
// seqno_locked: a locked buffer cannot be discarded (spec.md §4.4
// invariant 3).
func (m *MemStore) Discard(b *Buffer) error {
	if b.isLocked() {
		return ErrorSeqnoLocked.Error()
	}

	m.mu.Lock()
	delete(m.live, b)
	m.size -= b.Size
	m.mu.Unlock()

	if b.Seqno != gcs.NoneSeqno {
		m.index.Remove(b.Seqno)
	}

	return nil
}

// SeqnoLock forbids discard of buffers with seqno < s; used while state
// transfer reads them (spec.md §4.4).
func (m *MemStore) SeqnoLock(s gcs.SEQNO) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for b := range m.live {
		if b.Seqno != gcs.NoneSeqno && b.Seqno < s {
			b.lockSeqno()
		} else {
			b.unlockSeqno()
		}
	}
}

func (m *MemStore) Size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}
