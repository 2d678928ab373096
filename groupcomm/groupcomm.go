package groupcomm

import (
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"

	liblog "github.com/nabbar/wsrepl/logger"
)

// dedupKey identifies one payload frame by its origin and GMCast-level wire
// sequence, distinct from EVS's per-source delivery seq: this one exists
// purely to recognise a redelivered frame before it ever reaches EVS.
type dedupKey struct {
	source MemberUUID
	seq    uint64
}

// GroupComm is the public façade of the L1 stack: a single handle_up
// delivering Payloads or Views, and a single pass_down for multicast
// (spec.md §4.2 "public contract to L2").
type GroupComm struct {
	cfg  Config
	self MemberUUID
	log  liblog.Logger

	gmc *GMCast
	evs *EVS
	pc  *PC

	connected int32

	// dedup suppresses a payload frame GroupComm has already seen — a
	// NATS redelivery or gossip retransmission must not be handed to
	// EVS.Receive twice, since each call mints a new per-source sequence
	// number (SPEC_FULL.md addition, L1 anti-replay). Bounded by an LRU
	// rather than a TTL: under sustained load the oldest entries are the
	// ones least likely to see a late duplicate anyway.
	dedup *lru.Cache

	mu      sync.Mutex
	upCalls []func(Delivery)
	viewSeq uint64
	members []Member
}

func New(cfg Config, self MemberUUID, log liblog.Logger) (*GroupComm, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dedup, err := lru.New(cfg.GMCast.DedupCacheSize)
	if err != nil {
		return nil, ErrorParamsInvalid.Error(err)
	}

	g := &GroupComm{
		cfg:   cfg,
		self:  self,
		log:   log,
		pc:    NewPC(cfg.PC),
		dedup: dedup,
	}

	g.evs = NewEVS(cfg.EVS, g.onDeliver)
	g.evs.OnSafe(g.onSafe)

	gmc, err := NewGMCast(cfg.GMCast, self, cfg.Node.NatsURL)
	if err != nil {
		return nil, err
	}
	g.gmc = gmc

	return g, nil
}

// HandleUp registers an up-call invoked for every Delivery (payload or
// view). Multiple consumers (GCS, monitoring) may register independently.
func (g *GroupComm) HandleUp(fn func(Delivery)) {
	g.mu.Lock()
	g.upCalls = append(g.upCalls, fn)
	g.mu.Unlock()
}

func (g *GroupComm) onDeliver(d Delivery) {
	g.mu.Lock()
	calls := make([]func(Delivery), len(g.upCalls))
	copy(calls, g.upCalls)
	g.mu.Unlock()

	for _, fn := range calls {
		fn(d)
	}
}

// Connect joins the gossip group and installs the bootstrap or first
// discovered view.
func (g *GroupComm) Connect() error {
	if !atomic.CompareAndSwapInt32(&g.connected, 0, 1) {
		return ErrorAlreadyConnected.Error()
	}

	g.mu.Lock()
	g.members = []Member{{UUID: g.self, Weight: g.cfg.PC.Weight}}
	g.mu.Unlock()

	if err := g.gmc.Start(g.onFrame, g.onPeerLost); err != nil {
		atomic.StoreInt32(&g.connected, 0)
		return err
	}

	g.installViewLocked()

	return nil
}

func (g *GroupComm) onFrame(f gmcastFrame) {
	switch f.Kind {
	case frameKindPayload:
		key := dedupKey{source: f.Source, seq: f.Seq}
		if alreadySeen, _ := g.dedup.ContainsOrAdd(key, struct{}{}); alreadySeen {
			return
		}

		seq := g.evs.Receive(f.Source, 0, f.Body)
		g.joinMember(f.Source)

		if err := g.gmc.SendAck(f.Source, seq); err != nil && g.log != nil {
			g.log.Warning("groupcomm: ack broadcast failed", map[string]interface{}{"error": err.Error()})
		}
	case frameKindAck:
		source, seq, ok := decodeAckBody(f.Body)
		if ok {
			g.evs.Ack(source, seq, f.Source)
		}
	case frameKindOrder:
		source, seq, global, ok := decodeOrderBody(f.Body)
		if ok {
			g.evs.Order(source, seq, global)
		}
	}
}

// onSafe is EVS's callback the instant a payload becomes safe (every
// current-view member has acked it). Only the view's sequencer — the
// member with the lowest MemberUUID, a deterministic choice every member
// computes identically from the same view — assigns it a global order
// position; everyone else waits for that assignment to arrive as a
// frameKindOrder frame (spec.md §4.2 guarantee (i): one identical total
// order at every member).
func (g *GroupComm) onSafe(source MemberUUID, seq uint64) {
	if !g.isSequencer() {
		return
	}

	global := g.evs.AssignOrder(source, seq)
	g.evs.Order(source, seq, global)

	if err := g.gmc.SendOrder(source, seq, global); err != nil && g.log != nil {
		g.log.Warning("groupcomm: order broadcast failed", map[string]interface{}{"error": err.Error()})
	}
}

// isSequencer reports whether this node is the deterministic order
// assigner for the current view.
func (g *GroupComm) isSequencer() bool {
	v := g.evs.CurrentView()
	if len(v.Members) == 0 {
		return false
	}

	lowest := v.Members[0].UUID
	for _, m := range v.Members[1:] {
		if lessUUID(m.UUID, lowest) {
			lowest = m.UUID
		}
	}

	return lowest == g.self
}

func lessUUID(a, b MemberUUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func (g *GroupComm) onPeerLost(id MemberUUID) {
	g.mu.Lock()
	for i, m := range g.members {
		if m.UUID == id {
			g.members = append(g.members[:i], g.members[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	g.installViewLocked()

	if g.log != nil {
		g.log.Warning("groupcomm: peer evicted", map[string]interface{}{"member": id.String()})
	}
}

func (g *GroupComm) joinMember(id MemberUUID) {
	g.mu.Lock()
	for _, m := range g.members {
		if m.UUID == id {
			g.mu.Unlock()
			return
		}
	}
	g.members = append(g.members, Member{UUID: id, Weight: 1})
	g.mu.Unlock()

	g.installViewLocked()
}

func (g *GroupComm) installViewLocked() {
	g.mu.Lock()
	g.viewSeq++
	v := View{
		ID:      g.viewSeq,
		Members: append([]Member(nil), g.members...),
		MyIndex: g.myIndex(),
	}
	g.mu.Unlock()

	v = g.pc.Resolve(v)
	g.evs.InstallView(v)
}

func (g *GroupComm) myIndex() int {
	for i, m := range g.members {
		if m.UUID == g.self {
			return i
		}
	}
	return -1
}

// PassDown multicasts a payload to the group (spec.md §4.2 down-call).
func (g *GroupComm) PassDown(userType uint8, body []byte) error {
	if atomic.LoadInt32(&g.connected) == 0 {
		return ErrorNotConnected.Error()
	}

	if v, ok := g.pc.LastPrimary(); !ok || !v.IsPrimary() {
		return ErrorNoPrimary.Error()
	}

	return g.gmc.Send(body)
}

func (g *GroupComm) CurrentView() View {
	return g.evs.CurrentView()
}

// ForceBootstrap lets an operator break a stuck non-primary state (spec.md
// §4.2 failure semantics, option (b)).
func (g *GroupComm) ForceBootstrap() {
	v := g.pc.ForceBootstrap(g.evs.CurrentView())
	g.evs.InstallView(v)
}

func (g *GroupComm) Close() error {
	if !atomic.CompareAndSwapInt32(&g.connected, 1, 0) {
		return nil
	}
	return g.gmc.Close()
}
