package groupcomm

import (
	"sort"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// msgKey identifies one in-flight payload by its origin and per-source
// sequence number, flattening what used to be a two-level map so the same
// entry can be looked up both by (source, seq) for acking and by its
// assigned global position for delivery.
type msgKey struct {
	source MemberUUID
	seq    uint64
}

// evsMessage is a single in-flight payload awaiting safe delivery: every
// currently-operational member must acknowledge it before it is eligible for
// delivery (spec.md §4.2 "safe delivery"), and it additionally needs a
// global order position assigned by the view's sequencer before EVS will
// hand it to the application — safety alone only proves every member has
// seen it, not that every member would deliver it at the same place in the
// sequence. Acks are tracked in a bitset, one bit per member index of the
// current view — the same idiom gcache's page-occupancy ring uses
// (SPEC_FULL.md additions, L1/L3).
type evsMessage struct {
	payload Payload
	acked   *bitset.BitSet
	safe    bool
	ordered bool
	order   uint64
}

// EVS converts GMCast's unreliable multicast into reliable, totally ordered
// delivery, and emits Views on membership changes. Ordering is two-phase:
// a payload becomes "safe" once every current-view member has acked it
// (guaranteeing no member can later fail to deliver it), and then the
// view's sequencer — deterministically the lowest MemberUUID of the current
// view — assigns it the next global position, which every member applies
// identically (spec.md §4.2 guarantee (i): the same sequence at every
// member, including the sender).
type EVS struct {
	cfg ConfigEVS

	mu         sync.Mutex
	view       View
	srcSeq     map[MemberUUID]uint64 // last seq assigned per source, for Receive's next-seq
	pending    map[msgKey]*evsMessage
	byOrder    map[uint64]msgKey
	nextGlobal uint64 // next global position this member will deliver
	assignNext uint64 // next global position this member will hand out, while sequencer

	deliver func(Delivery)
	onSafe  func(source MemberUUID, seq uint64)
}

func NewEVS(cfg ConfigEVS, deliver func(Delivery)) *EVS {
	return &EVS{
		cfg:        cfg,
		srcSeq:     make(map[MemberUUID]uint64),
		pending:    make(map[msgKey]*evsMessage),
		byOrder:    make(map[uint64]msgKey),
		nextGlobal: 1,
		assignNext: 1,
		deliver:    deliver,
	}
}

// OnSafe registers the callback fired the instant a pending message becomes
// safe (every current-view member has acked it). GroupComm uses this to
// drive the sequencer: only the lowest-UUID member of the view acts on it.
func (e *EVS) OnSafe(fn func(source MemberUUID, seq uint64)) {
	e.mu.Lock()
	e.onSafe = fn
	e.mu.Unlock()
}

// InstallView barriers the delivery stream: no payload from the previous
// view is delivered after this call returns delivery of the view itself
// (spec.md §4.2 guarantee (iv)). Order state resets with it — a new view
// starts a fresh sequence, never splicing order numbers across membership
// changes.
func (e *EVS) InstallView(v View) {
	e.mu.Lock()
	e.view = v
	e.srcSeq = make(map[MemberUUID]uint64)
	e.pending = make(map[msgKey]*evsMessage)
	e.byOrder = make(map[uint64]msgKey)
	e.nextGlobal = 1
	e.assignNext = 1
	e.mu.Unlock()

	e.deliver(Delivery{View: &v})
}

func (e *EVS) CurrentView() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.view
}

// Receive accepts a raw user-type frame from GMCast, assigns it the next
// per-source sequence number, and holds it pending safe acknowledgement
// from every current view member (including the local one, whose bit is
// set immediately since accepting the frame at all is itself an ack). The
// returned seq lets the caller broadcast its own ack over the wire.
func (e *EVS) Receive(source MemberUUID, userType uint8, body []byte) uint64 {
	e.mu.Lock()

	seq := e.srcSeq[source] + 1
	e.srcSeq[source] = seq

	bs := bitset.New(uint(len(e.view.Members)))
	if idx := e.memberIndex(source); idx >= 0 {
		bs.Set(uint(idx))
	}
	if idx := e.memberIndex(e.localMember()); idx >= 0 {
		bs.Set(uint(idx))
	}

	msg := &evsMessage{
		payload: Payload{Source: source, UserType: userType, SeqSrc: seq, Data: body},
		acked:   bs,
	}
	msg.safe = msg.acked.Count() >= uint(len(e.view.Members))

	e.pending[msgKey{source: source, seq: seq}] = msg

	fireSafe := msg.safe
	onSafe := e.onSafe
	e.mu.Unlock()

	if fireSafe && onSafe != nil {
		onSafe(source, seq)
	}

	return seq
}

// Ack records that a member has acknowledged a (source, seq) message; once
// every current-view member has acked, the message becomes safe and is
// handed to OnSafe so the sequencer can assign it a global position.
func (e *EVS) Ack(source MemberUUID, seq uint64, from MemberUUID) {
	e.mu.Lock()
	key := msgKey{source: source, seq: seq}
	msg, ok := e.pending[key]
	if !ok || msg.safe {
		e.mu.Unlock()
		return
	}

	if idx := e.memberIndex(from); idx >= 0 {
		msg.acked.Set(uint(idx))
	}

	msg.safe = msg.acked.Count() >= uint(len(e.view.Members))
	fireSafe := msg.safe
	onSafe := e.onSafe
	e.mu.Unlock()

	if fireSafe && onSafe != nil {
		onSafe(source, seq)
	}
}

// AssignOrder hands out the next global order position. Only the view's
// sequencer calls this — GroupComm decides who that is.
func (e *EVS) AssignOrder(source MemberUUID, seq uint64) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	global := e.assignNext
	e.assignNext++
	return global
}

// Order records the global position assigned to a (source, seq) message,
// whether decided locally by this member acting as sequencer or learned
// from a frameKindOrder frame, and attempts delivery.
func (e *EVS) Order(source MemberUUID, seq uint64, global uint64) {
	e.mu.Lock()
	key := msgKey{source: source, seq: seq}
	msg, ok := e.pending[key]
	if !ok || msg.ordered {
		e.mu.Unlock()
		return
	}

	msg.ordered = true
	msg.order = global
	e.byOrder[global] = key
	e.mu.Unlock()

	e.tryDeliver()
}

// tryDeliver walks the global order starting at nextGlobal, delivering
// every contiguous ordered-and-safe entry. A gap — the next position not
// yet assigned — stops delivery, which is what gives every member the
// identical total order regardless of local arrival order (spec.md §4.2
// guarantee (i)).
func (e *EVS) tryDeliver() {
	for {
		e.mu.Lock()
		key, ok := e.byOrder[e.nextGlobal]
		if !ok {
			e.mu.Unlock()
			return
		}

		msg := e.pending[key]
		if msg == nil || !msg.safe {
			e.mu.Unlock()
			return
		}

		delete(e.pending, key)
		delete(e.byOrder, e.nextGlobal)
		e.nextGlobal++
		payload := msg.payload
		e.mu.Unlock()

		e.deliver(Delivery{Payload: &payload})
	}
}

func (e *EVS) memberIndex(id MemberUUID) int {
	for i, m := range e.view.Members {
		if m.UUID == id {
			return i
		}
	}
	return -1
}

func (e *EVS) localMember() MemberUUID {
	if e.view.MyIndex < 0 || e.view.MyIndex >= len(e.view.Members) {
		return MemberUUID{}
	}
	return e.view.Members[e.view.MyIndex].UUID
}

// PendingSources returns the sources with outstanding (undelivered)
// messages, sorted for deterministic iteration by callers such as tests and
// the flow-control backlog sampler.
func (e *EVS) PendingSources() []MemberUUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	seen := make(map[MemberUUID]struct{}, len(e.pending))
	for k := range e.pending {
		seen[k.source] = struct{}{}
	}

	out := make([]MemberUUID, 0, len(seen))
	for src := range seen {
		out = append(out, src)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
