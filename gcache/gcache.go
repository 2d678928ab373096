// Package gcache implements the write-set cache (L3): an append-only,
// seqno-indexed store of replicated write-sets with hybrid memory+file
// pages, used for state transfer and recovery (spec.md §4.4).
package gcache

import (
	"path/filepath"

	"github.com/nabbar/wsrepl/checkpoint"
	"github.com/nabbar/wsrepl/gcs"
)

// Cache composes MemStore and PageStore over one shared Index, and a
// checkpoint.Store breadcrumb for fast recovery after a clean shutdown.
type Cache struct {
	cfg   Config
	index *Index
	mem   *MemStore
	page  *PageStore
	ckpt  *checkpoint.Store
}

func Open(cfg Config) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	idx := NewIndex()
	mem := NewMemStore(cfg.MemMax, idx)

	pageDir := filepath.Join(cfg.Dir, cfg.Name)
	page, err := NewPageStore(pageDir, cfg.PageSize, cfg.Compress, idx)
	if err != nil {
		return nil, err
	}

	ckpt, err := checkpoint.Open(filepath.Join(cfg.Dir, cfg.Name+".ckpt"))
	if err != nil {
		return nil, err
	}

	return &Cache{cfg: cfg, index: idx, mem: mem, page: page, ckpt: ckpt}, nil
}

// Malloc allocates a buffer for payload, trying MemStore first and falling
// back to PageStore on no-space or oversize (spec.md §4.4 "Policies").
func (c *Cache) Malloc(payload []byte) (*Buffer, error) {
	b, err := c.mem.Malloc(len(payload))
	if err == nil {
		copy(b.Payload, payload)
		return b, nil
	}

	return c.page.Malloc(payload)
}

// SeqnoAssign inserts s -> buf into the shared index once the owning layer
// (GCS) assigns the global seqno (spec.md §4.4 "Common buffer contract").
func (c *Cache) SeqnoAssign(b *Buffer, s gcs.SEQNO) {
	b.assignSeqno(s)
	c.index.Assign(s, b)
}

// Lookup retrieves the buffer for a given global seqno.
func (c *Cache) Lookup(s gcs.SEQNO) (*Buffer, bool) {
	return c.index.Lookup(s)
}

// Range returns every buffer in [from, to], used to drain IST.
func (c *Cache) Range(from, to gcs.SEQNO) []*Buffer {
	return c.index.Range(from, to)
}

// Free releases b without reclaiming it yet.
func (c *Cache) Free(b *Buffer) error {
	if b.Store == StoreMem {
		return c.mem.Free(b)
	}
	b.release()
	return nil
}

// Discard physically reclaims b, erasing its index entry, unless its
// seqno is locked.
func (c *Cache) Discard(b *Buffer) error {
	if b.Store == StoreMem {
		return c.mem.Discard(b)
	}
	return c.page.Discard(b)
}

// SeqnoLock forbids discard of buffers with seqno < s (used while state
// transfer reads them).
func (c *Cache) SeqnoLock(s gcs.SEQNO) {
	c.mem.SeqnoLock(s)

	c.page.mu.Lock()
	defer c.page.mu.Unlock()

	for _, pg := range c.page.pages {
		for _, b := range pg.buffers {
			if b.Seqno != gcs.NoneSeqno && b.Seqno < s {
				b.lockSeqno()
			} else {
				b.unlockSeqno()
			}
		}
	}
}

// Sweep reclaims PageStore pages whose last buffer has been discarded.
func (c *Cache) Sweep() error {
	return c.page.Sweep()
}

// Contiguous reports whether the index satisfies the contiguity invariant
// (spec.md §8 property 5, "Cache index contiguity").
func (c *Cache) Contiguous() bool {
	return c.index.Contiguous()
}

// Checkpoint persists the last stable seqno and state_id so a restart can
// shortcut recovery scanning.
func (c *Cache) Checkpoint(seqno gcs.SEQNO, stateID string) error {
	return c.ckpt.Save(int64(seqno), stateID)
}

// LastCheckpoint returns the last persisted breadcrumb, if any.
func (c *Cache) LastCheckpoint() (gcs.SEQNO, string, error) {
	s, id, err := c.ckpt.Load()
	return gcs.SEQNO(s), id, err
}

func (c *Cache) Close() error {
	if err := c.page.Close(); err != nil {
		return err
	}
	return c.ckpt.Close()
}
