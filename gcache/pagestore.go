package gcache

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/pierrec/lz4/v4"

	"github.com/nabbar/wsrepl/gcs"
)

// page is one file-backed allocation unit: at most PageSize bytes, part of
// the PageStore's ring. occupied tracks which buffer slots are still live,
// one bit per allocation made from this page, so the ring can tell "page
// older than the oldest live buffer" without scanning every buffer
// (SPEC_FULL.md addition: reuses the EVS safety-bitmap idiom for ring
// reclaim, spec.md §4.4).
type page struct {
	id       int
	file     *os.File
	used     int
	occupied *bitset.BitSet
	buffers  []*Buffer
}

// PageStore is the ring of file-backed pages (spec.md §4.4 "PageStore"). A
// new page is created lazily when the current one cannot fit an
// allocation; pages older than the oldest live buffer are deleted on the
// next sweep.
type PageStore struct {
	mu       sync.Mutex
	dir      string
	pageSize int
	compress bool

	pages   []*page
	nextID  int
	index   *Index
}

func NewPageStore(dir string, pageSize int, compress bool, idx *Index) (*PageStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, ErrorIO.Error(err)
	}

	return &PageStore{
		dir:      dir,
		pageSize: pageSize,
		compress: compress,
		index:    idx,
	}, nil
}

func (p *PageStore) currentPage() (*page, error) {
	if len(p.pages) == 0 {
		return p.newPage()
	}

	last := p.pages[len(p.pages)-1]
	return last, nil
}

func (p *PageStore) newPage() (*page, error) {
	id := p.nextID
	p.nextID++

	name := filepath.Join(p.dir, fmt.Sprintf("page-%08d.bin", id))

	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0o640)
	if err != nil {
		return nil, ErrorIO.Error(err)
	}

	pg := &page{id: id, file: f, occupied: bitset.New(256)}
	p.pages = append(p.pages, pg)

	return pg, nil
}

// Malloc writes size bytes (optionally lz4-compressed) into the current
// page, rolling over to a new page when it would not fit.
func (p *PageStore) Malloc(payload []byte) (*Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stored := payload
	if p.compress {
		stored = compressLZ4(payload)
	}

	if len(stored) > p.pageSize {
		return nil, ErrorNoSpace.Error()
	}

	pg, err := p.currentPage()
	if err != nil {
		return nil, err
	}

	if pg.used+len(stored) > p.pageSize {
		pg, err = p.newPage()
		if err != nil {
			return nil, err
		}
	}

	if _, err := pg.file.WriteAt(stored, int64(pg.used)); err != nil {
		return nil, ErrorIO.Error(err)
	}

	b := &Buffer{
		Size:    len(payload),
		Seqno:   gcs.NoneSeqno,
		Store:   StorePage,
		PageID:  pg.id,
		Payload: payload,
	}

	slot := uint(len(pg.buffers))
	pg.buffers = append(pg.buffers, b)
	pg.occupied.Set(slot)
	pg.used += len(stored)

	return b, nil
}

func compressLZ4(in []byte) []byte {
	out := make([]byte, lz4.CompressBlockBound(len(in)))
	var c lz4.Compressor

	n, err := c.CompressBlock(in, out)
	if err != nil || n == 0 {
		return in
	}

	return out[:n]
}

// Discard removes b from its owning page's occupancy bitmap; once a page
// has no occupied slots and is not the newest page, it is removed from the
// ring and its file deleted on the next Sweep.
func (p *PageStore) Discard(b *Buffer) error {
	if b.isLocked() {
		return ErrorSeqnoLocked.Error()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pg := range p.pages {
		if pg.id != b.PageID {
			continue
		}
		for i, buf := range pg.buffers {
			if buf == b {
				pg.occupied.Clear(uint(i))
			}
		}
	}

	if b.Seqno != gcs.NoneSeqno {
		p.index.Remove(b.Seqno)
	}

	return nil
}

// Sweep deletes every page whose occupancy bitmap is empty except the
// current (newest) page, reclaiming the ring's oldest pages once their
// last buffer has been discarded (spec.md §4.4).
func (p *PageStore) Sweep() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	keep := make([]*page, 0, len(p.pages))

	for i, pg := range p.pages {
		isNewest := i == len(p.pages)-1
		if !isNewest && pg.occupied.None() {
			_ = pg.file.Close()
			_ = os.Remove(pg.file.Name())
			continue
		}
		keep = append(keep, pg)
	}

	p.pages = keep
	return nil
}

func (p *PageStore) PageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

func (p *PageStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for _, pg := range p.pages {
		if err := pg.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
