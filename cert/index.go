package cert

import (
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/nabbar/wsrepl/gcs"
)

// fingerprint is a fixed-size digest of a Key's opaque bytes, used as the
// certification index's map key instead of the raw (unbounded, allocating)
// byte slice (spec.md §4.5 design note, grounded on the teacher's preference
// for fixed-size comparable keys over []byte in hot map paths).
type fingerprint [32]byte

func fingerprintOf(k Key) fingerprint {
	return blake2b.Sum256(k.Bytes)
}

// Index is the certification index: for each key fingerprint, the seqno of
// the last write-set that touched it (spec.md §4.5). It also tracks the
// in-flight set (seqno -> keys) so the trailing-window purge can remove
// entries once no longer needed to certify anything still in flight.
type Index struct {
	mu sync.Mutex

	lastSeen map[fingerprint]gcs.SEQNO
	inFlight map[gcs.SEQNO][]fingerprint

	lastCommitted gcs.SEQNO
}

func NewIndex() *Index {
	return &Index{
		lastSeen:      make(map[fingerprint]gcs.SEQNO),
		inFlight:      make(map[gcs.SEQNO][]fingerprint),
		lastCommitted: gcs.NoneSeqno,
	}
}

// Certify applies the certification rule of spec.md §4.5: for every key in
// w, if idx[k] > lastSeen, the write-set conflicts and is rejected. If no
// key conflicts, every key's fingerprint is stamped with s and the set is
// recorded as in-flight.
//
// Must be called in strict global seqno order by a single caller (the
// certifier goroutine) — the index itself does no seqno ordering.
func (idx *Index) Certify(s gcs.SEQNO, w WriteSet) (conflict bool, conflictingSeqno gcs.SEQNO) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	fps := make([]fingerprint, len(w.Keys))
	for i, k := range w.Keys {
		fp := fingerprintOf(k)
		fps[i] = fp

		if last, ok := idx.lastSeen[fp]; ok && last > w.LastSeenSeqno {
			return true, last
		}
	}

	for _, fp := range fps {
		idx.lastSeen[fp] = s
	}
	idx.inFlight[s] = fps

	return false, gcs.NoneSeqno
}

// Purge advances the trailing window: once committed, everything belongs to
// committed is forgotten once no earlier in-flight seqno can still need it
// (spec.md §4.5 "trailing window").
func (idx *Index) Purge(committed gcs.SEQNO) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.lastCommitted = committed

	for s, fps := range idx.inFlight {
		if s > committed {
			continue
		}
		for _, fp := range fps {
			if idx.lastSeen[fp] == s {
				delete(idx.lastSeen, fp)
			}
		}
		delete(idx.inFlight, s)
	}
}

func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.lastSeen)
}

func (idx *Index) InFlightLen() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.inFlight)
}
