package gcache

import (
	"sync"

	"github.com/nabbar/wsrepl/gcs"
)

// StoreKind identifies which backing store owns a Buffer, used as the
// back-pointer's tag (spec.md §9 design note: "a tagged store-id plus an
// index into an owning-store registry" instead of a raw machine-word
// pointer round-trip).
type StoreKind uint8

const (
	StoreMem StoreKind = iota
	StorePage
)

// Flags on a buffer header.
type Flags uint8

const (
	FlagReleased Flags = 1 << iota
	FlagSkipped
	FlagPersistent
)

// Buffer is the cache entry: a header (size, seqno_g, flags, store_id, ctx)
// immediately preceding the payload pointer (spec.md §3 "Buffer header").
type Buffer struct {
	mu sync.Mutex

	Size    int
	Seqno   gcs.SEQNO
	Flags   Flags
	Store   StoreKind
	PageID  int // valid only when Store == StorePage
	Payload []byte

	locked bool // seqno_locked: forbids discard while true
}

func newBuffer(size int, store StoreKind) *Buffer {
	return &Buffer{
		Size:    size,
		Seqno:   gcs.NoneSeqno,
		Store:   store,
		Payload: make([]byte, size),
	}
}

func (b *Buffer) assignSeqno(s gcs.SEQNO) {
	b.mu.Lock()
	b.Seqno = s
	b.mu.Unlock()
}

func (b *Buffer) release() {
	b.mu.Lock()
	b.Flags |= FlagReleased
	b.mu.Unlock()
}

func (b *Buffer) released() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Flags&FlagReleased != 0
}

func (b *Buffer) lockSeqno() {
	b.mu.Lock()
	b.locked = true
	b.mu.Unlock()
}

func (b *Buffer) unlockSeqno() {
	b.mu.Lock()
	b.locked = false
	b.mu.Unlock()
}

func (b *Buffer) isLocked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}
