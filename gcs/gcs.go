package gcs

import (
	"context"
	"sync"
	"sync/atomic"

	libgc "github.com/nabbar/wsrepl/groupcomm"
)

// Applier is handed each certified Action, strictly in ascending seqno
// order; it is the boundary GCS hands off to L4/L5. Certification must
// observe that order (spec.md §4.5), so Run calls apply on a single
// consumer goroutine — any bounded parallelism the embedder wants for the
// actual database-apply step belongs downstream of certification, inside
// the Applier itself (see replicator.Node's apply dispatch).
type Applier func(ctx context.Context, a Action) error

// GCS turns group-comm deliveries into a monotonic ordered stream of
// actions with assigned global seqnos and applies flow control
// (spec.md §4.3).
type GCS struct {
	cfg Config
	gc  *libgc.GroupComm
	fc  *FlowControl

	fifo *FIFO

	mu         sync.Mutex
	state      NodeState
	localSeqno int64 // accessed only via sync/atomic
}

func New(cfg Config, gc *libgc.GroupComm) (*GCS, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	g := &GCS{
		cfg:   cfg,
		gc:    gc,
		fc:    NewFlowControl(cfg.FlowControl),
		fifo:  NewFIFO(cfg.FIFOCapacity),
		state: StateClosed,
	}

	gc.HandleUp(g.onDelivery)

	return g, nil
}

func (g *GCS) State() NodeState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (g *GCS) setState(s NodeState) {
	g.mu.Lock()
	g.state = s
	g.mu.Unlock()
}

// onDelivery is group-comm's up-call: every member assigns the same next
// global seqno to the same totally-ordered delivered payload, since
// delivery order is identical everywhere (spec.md §4.3 "Seqno assignment").
func (g *GCS) onDelivery(d libgc.Delivery) {
	switch {
	case d.View != nil:
		g.onView(*d.View)
	case d.Payload != nil:
		g.onPayload(*d.Payload)
	}
}

func (g *GCS) onView(v libgc.View) {
	g.mu.Lock()
	if v.IsPrimary() {
		if g.state == StateClosed || g.state == StateOpen {
			g.state = StateConnected
		}
	} else {
		g.state = StateOpen
	}
	g.mu.Unlock()

	_ = g.fifo.Enqueue(Action{Type: ActionConfChange, Seqno: g.nextSeqno(), Body: nil})
}

func (g *GCS) onPayload(p libgc.Payload) {
	seqno := g.nextSeqno()
	_ = g.fifo.Enqueue(Action{Type: ActionWriteSet, Seqno: seqno, Body: p.Data})
}

func (g *GCS) nextSeqno() SEQNO {
	return SEQNO(atomic.AddInt64(&g.localSeqno, 1))
}

// Connect joins the underlying group-comm stack and transitions to OPEN.
func (g *GCS) Connect() error {
	g.setState(StateOpen)
	return g.gc.Connect()
}

// Submit originates a new write-set action. Only a SYNCED node may
// originate (spec.md §4.3); flow control pause blocks it as backpressure,
// not as an error, by simply not returning until the pause clears.
func (g *GCS) Submit(ctx context.Context, body []byte) error {
	if g.State() != StateSynced {
		return ErrorNotSynced.Error()
	}

	for g.fc.Paused() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	return g.gc.PassDown(0, body)
}

// Run drains the FIFO on a single consumer goroutine, calling apply for
// each action strictly in ascending seqno order, until Close is called or
// apply fails. ctx is checked only after each action, so cancelling it
// does not wake a Run blocked waiting for the next action. This is the one FIFO certifier thread spec.md §4.5
// requires — it must not be parallelized, since certifying a higher-seqno
// write-set before a lower one breaks the total order the whole pipeline
// depends on.
func (g *GCS) Run(ctx context.Context, apply Applier) error {
	for {
		a, ok := g.fifo.Dequeue()
		if !ok {
			return nil
		}

		if err := apply(ctx, a); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Backlog reports this node's current advertised backlog for flow control.
func (g *GCS) Backlog() uint64 {
	return g.fc.LocalBacklog(g.fifo)
}

// ObserveBacklog records a peer's relayed flow-control backlog.
func (g *GCS) ObserveBacklog(member string, backlog uint64) {
	g.fc.Observe(member, backlog)
}

// MarkSynced transitions the node to SYNCED once catch-up (IST or SST) is
// complete. It only changes this node's local state; no SYNC action is
// multicast.
func (g *GCS) MarkSynced() {
	g.setState(StateSynced)
}

func (g *GCS) Close() error {
	g.fifo.Close()
	g.setState(StateClosed)
	return g.gc.Close()
}
