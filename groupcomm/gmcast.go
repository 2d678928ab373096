package groupcomm

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/nats-io/nats.go"
)

// peerState tracks SWIM-style suspect/confirm dead-peer eviction: a peer
// missing one heartbeat is suspected, not immediately evicted, and only
// confirmed dead once the suspect timeout elapses without a fresh
// heartbeat (SPEC_FULL.md additions to spec.md §4.2 item 1).
type peerState struct {
	lastSeen  time.Time
	suspected bool
}

// GMCast is the unreliable point-to-point fan-out sub-protocol: it handles
// peer discovery via a gossip seed list, heartbeats, and dead-peer
// eviction, and carries raw frames for EVS to sequence. NATS subjects play
// the role of the point-to-point TCP/TLS fan-out described in spec.md
// §4.2 item 1 — one subject per group, one heartbeat subject per group.
type GMCast struct {
	cfg  ConfigGMCast
	self MemberUUID
	nc   *nats.Conn

	constraint version.Constraints

	mu    sync.Mutex
	peers map[MemberUUID]*peerState

	sub    *nats.Subscription
	hbSub  *nats.Subscription
	onMsg  func(frame gmcastFrame)
	onLost func(id MemberUUID)

	sendSeq uint64 // accessed only via sync/atomic; wire-level anti-replay counter

	closeOnce sync.Once
	stop      chan struct{}
}

type gmcastFrame struct {
	Source  MemberUUID
	Seq     uint64 // wire-level per-source counter, for dedup only (0 on non-payload frames)
	Version string
	Kind    uint8 // 0 = user payload, 1 = heartbeat, 2 = ack, 3 = order
	Body    []byte
}

const (
	frameKindPayload   = 0
	frameKindHeartbeat = 1
	frameKindAck       = 2
	frameKindOrder     = 3
)

func NewGMCast(cfg ConfigGMCast, self MemberUUID, natsURL string) (*GMCast, error) {
	constraint, err := version.NewConstraint(cfg.VersionAccepted)
	if err != nil {
		return nil, ErrorParamsInvalid.Error(err)
	}

	nc, err := nats.Connect(natsURL, nats.Name("groupcomm/"+self.String()))
	if err != nil {
		return nil, ErrorGMCastDial.Error(err)
	}

	g := &GMCast{
		cfg:        cfg,
		self:       self,
		nc:         nc,
		constraint: constraint,
		peers:      make(map[MemberUUID]*peerState),
		stop:       make(chan struct{}),
	}

	return g, nil
}

// Start subscribes to the group subject and begins gossiping heartbeats.
// onMsg is invoked for every accepted frame from a peer whose wire version
// satisfies this node's constraint; frames from mismatched peers are
// silently dropped, never delivered up, and no error is reported.
func (g *GMCast) Start(onMsg func(gmcastFrame), onLost func(MemberUUID)) error {
	g.onMsg = onMsg
	g.onLost = onLost

	sub, err := g.nc.Subscribe(g.subject(), g.handleRaw)
	if err != nil {
		return ErrorGMCastSubscribe.Error(err)
	}
	g.sub = sub

	hb, err := g.nc.Subscribe(g.heartbeatSubject(), g.handleHeartbeat)
	if err != nil {
		return ErrorGMCastSubscribe.Error(err)
	}
	g.hbSub = hb

	go g.gossipLoop()
	go g.evictionLoop()

	return nil
}

func (g *GMCast) subject() string          { return "groupcomm." + g.cfg.Group + ".msg" }
func (g *GMCast) heartbeatSubject() string { return "groupcomm." + g.cfg.Group + ".hb" }

func (g *GMCast) handleRaw(m *nats.Msg) {
	f := decodeFrame(m.Data)
	if f.Source == g.self {
		return
	}

	if !g.versionOK(f.Version) {
		return
	}

	g.touch(f.Source)

	if g.onMsg != nil {
		g.onMsg(f)
	}
}

func (g *GMCast) handleHeartbeat(m *nats.Msg) {
	f := decodeFrame(m.Data)
	if f.Source == g.self {
		return
	}
	g.touch(f.Source)
}

func (g *GMCast) versionOK(peerVersion string) bool {
	v, err := version.NewVersion(peerVersion)
	if err != nil {
		return false
	}
	return g.constraint.Check(v)
}

func (g *GMCast) touch(id MemberUUID) {
	g.mu.Lock()
	defer g.mu.Unlock()

	st, ok := g.peers[id]
	if !ok {
		st = &peerState{}
		g.peers[id] = st
	}
	st.lastSeen = time.Now()
	st.suspected = false
}

func (g *GMCast) gossipLoop() {
	t := time.NewTicker(g.cfg.GossipInterval)
	defer t.Stop()

	for {
		select {
		case <-g.stop:
			return
		case <-t.C:
			_ = g.nc.Publish(g.heartbeatSubject(), encodeFrame(gmcastFrame{
				Source:  g.self,
				Version: g.cfg.WireVersion,
				Kind:    frameKindHeartbeat,
			}))
		}
	}
}

// evictionLoop applies the suspect->confirm two-phase eviction: a peer not
// heard from within SuspectTimeout is first marked suspected; a peer still
// silent after a second SuspectTimeout window is confirmed lost and
// reported via onLost, then removed so it does not fire twice.
func (g *GMCast) evictionLoop() {
	t := time.NewTicker(g.cfg.SuspectTimeout)
	defer t.Stop()

	for {
		select {
		case <-g.stop:
			return
		case now := <-t.C:
			g.sweep(now)
		}
	}
}

func (g *GMCast) sweep(now time.Time) {
	g.mu.Lock()
	var lost []MemberUUID

	for id, st := range g.peers {
		age := now.Sub(st.lastSeen)
		switch {
		case age > 2*g.cfg.SuspectTimeout:
			lost = append(lost, id)
			delete(g.peers, id)
		case age > g.cfg.SuspectTimeout:
			st.suspected = true
		}
	}
	g.mu.Unlock()

	for _, id := range lost {
		if g.onLost != nil {
			g.onLost(id)
		}
	}
}

// Send multicasts a user payload to the group. NATS never echoes a
// publisher's own message back to its own subscription, but spec.md §4.2
// requires every member — including the sender — to deliver it through the
// same EVS pipeline, so the local copy is applied directly right after the
// publish instead of waiting on a subscription that will never fire.
func (g *GMCast) Send(body []byte) error {
	f := gmcastFrame{
		Source:  g.self,
		Seq:     atomic.AddUint64(&g.sendSeq, 1),
		Version: g.cfg.WireVersion,
		Kind:    frameKindPayload,
		Body:    body,
	}

	if err := g.nc.Publish(g.subject(), encodeFrame(f)); err != nil {
		return err
	}

	if g.onMsg != nil {
		g.onMsg(f)
	}

	return nil
}

// SendAck broadcasts this member's acknowledgement of (source, seq) so
// every other member's EVS can count this member's bit toward safe
// delivery (spec.md §4.2 "safe", §6 EVS ack message). The local bit is
// already set directly by EVS.Receive, so the sender never needs its own
// ack frame looped back.
func (g *GMCast) SendAck(source MemberUUID, seq uint64) error {
	body := make([]byte, 16+8)
	copy(body[:16], source[:])
	binary.BigEndian.PutUint64(body[16:24], seq)

	return g.nc.Publish(g.subject(), encodeFrame(gmcastFrame{
		Source:  g.self,
		Version: g.cfg.WireVersion,
		Kind:    frameKindAck,
		Body:    body,
	}))
}

// SendOrder broadcasts the global order position the sequencer assigned to
// (source, seq) (spec.md §6 EVS order/gap message). The sequencer applies
// the assignment to its own EVS directly before calling this, so again no
// loopback is needed.
func (g *GMCast) SendOrder(source MemberUUID, seq uint64, global uint64) error {
	body := make([]byte, 16+8+8)
	copy(body[:16], source[:])
	binary.BigEndian.PutUint64(body[16:24], seq)
	binary.BigEndian.PutUint64(body[24:32], global)

	return g.nc.Publish(g.subject(), encodeFrame(gmcastFrame{
		Source:  g.self,
		Version: g.cfg.WireVersion,
		Kind:    frameKindOrder,
		Body:    body,
	}))
}

// decodeAckBody splits an ack frame's body into the original payload's
// source and seq.
func decodeAckBody(body []byte) (source MemberUUID, seq uint64, ok bool) {
	if len(body) < 24 {
		return source, 0, false
	}
	copy(source[:], body[:16])
	seq = binary.BigEndian.Uint64(body[16:24])
	return source, seq, true
}

// decodeOrderBody splits an order frame's body into the original payload's
// source, seq, and assigned global position.
func decodeOrderBody(body []byte) (source MemberUUID, seq uint64, global uint64, ok bool) {
	if len(body) < 32 {
		return source, 0, 0, false
	}
	copy(source[:], body[:16])
	seq = binary.BigEndian.Uint64(body[16:24])
	global = binary.BigEndian.Uint64(body[24:32])
	return source, seq, global, true
}

func (g *GMCast) Close() error {
	g.closeOnce.Do(func() {
		close(g.stop)
		if g.sub != nil {
			_ = g.sub.Unsubscribe()
		}
		if g.hbSub != nil {
			_ = g.hbSub.Unsubscribe()
		}
		g.nc.Close()
	})
	return nil
}

// encodeFrame/decodeFrame use a tiny fixed layout rather than pulling in a
// generic codec for a five-field struct: [16 bytes uuid][8 bytes seq]
// [2 bytes version-len][version][1 byte kind][body...].
func encodeFrame(f gmcastFrame) []byte {
	out := make([]byte, 0, 16+8+2+len(f.Version)+1+len(f.Body))
	out = append(out, f.Source[:]...)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], f.Seq)
	out = append(out, seqBuf[:]...)
	out = append(out, byte(len(f.Version)>>8), byte(len(f.Version)))
	out = append(out, f.Version...)
	out = append(out, f.Kind)
	out = append(out, f.Body...)
	return out
}

func decodeFrame(b []byte) gmcastFrame {
	var f gmcastFrame
	if len(b) < 27 {
		return f
	}

	copy(f.Source[:], b[:16])
	f.Seq = binary.BigEndian.Uint64(b[16:24])
	vlen := int(b[24])<<8 | int(b[25])
	off := 26

	if off+vlen+1 > len(b) {
		return f
	}

	f.Version = string(b[off : off+vlen])
	off += vlen
	f.Kind = b[off]
	off++
	f.Body = b[off:]

	return f
}
