// Package cert implements the certification engine (L4): the optimistic
// concurrency control layer that decides, in global seqno order, whether
// each totally-ordered write-set may commit or must be rejected as
// conflicting with one already certified (spec.md §4.5).
package cert

import (
	"sync"

	liblog "github.com/nabbar/wsrepl/logger"

	"github.com/nabbar/wsrepl/gcs"
)

// Verdict is the outcome of certifying one write-set.
type Verdict struct {
	Seqno     gcs.SEQNO
	WriteSet  WriteSet
	Conflict  bool
	Conflicts gcs.SEQNO // the seqno it conflicted with, when Conflict is true
}

type job struct {
	seqno gcs.SEQNO
	ws    WriteSet
}

// Certifier applies Index.Certify to every incoming write-set on a single
// goroutine, in strict ascending seqno order, as spec.md §4.5 requires
// ("certification is a function of (global total order, index state)").
// Verdicts are delivered to a registered callback; the certifier has no
// separate channel for reporting fatal errors.
type Certifier struct {
	cfg Config
	log liblog.Logger
	idx *Index

	mu       sync.Mutex
	onVerdict func(Verdict)

	queue  chan job
	done   chan struct{}
	closed bool
}

func New(cfg Config, log liblog.Logger) (*Certifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, ErrorParamsInvalid.Error(err)
	}

	c := &Certifier{
		cfg:   cfg,
		log:   log,
		idx:   NewIndex(),
		queue: make(chan job, cfg.QueueDepth),
		done:  make(chan struct{}),
	}

	go c.run()

	return c, nil
}

// OnVerdict registers the single callback invoked for every certification
// result, in the same strict seqno order the write-sets were submitted.
func (c *Certifier) OnVerdict(fn func(Verdict)) {
	c.mu.Lock()
	c.onVerdict = fn
	c.mu.Unlock()
}

// Submit enqueues a write-set for certification. Caller must submit in
// ascending global seqno order (the GCS delivery order already guarantees
// this — spec.md §4.3 total order).
func (c *Certifier) Submit(s gcs.SEQNO, w WriteSet) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrorParamsInvalid.Error()
	}

	c.queue <- job{seqno: s, ws: w}
	return nil
}

func (c *Certifier) run() {
	defer close(c.done)

	for j := range c.queue {
		conflict, conflictSeqno := c.idx.Certify(j.seqno, j.ws)

		if conflict && c.cfg.LogConflicts && c.log != nil {
			c.log.Warning("cert: write-set rejected on conflict", map[string]interface{}{
				"seqno":             j.seqno,
				"conflicting_seqno": conflictSeqno,
				"key_count":         len(j.ws.Keys),
			})
		}

		c.mu.Lock()
		fn := c.onVerdict
		c.mu.Unlock()

		if fn != nil {
			fn(Verdict{
				Seqno:     j.seqno,
				WriteSet:  j.ws,
				Conflict:  conflict,
				Conflicts: conflictSeqno,
			})
		}
	}
}

// Commit advances the trailing-window purge boundary once a verdict has
// been applied and the corresponding transaction is durably committed
// locally (spec.md §4.5 "trailing window").
func (c *Certifier) Commit(seqno gcs.SEQNO) {
	c.idx.Purge(seqno)
}

func (c *Certifier) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.queue)
	<-c.done
	return nil
}
