package groupcomm

import (
	"github.com/hashicorp/go-uuid"
)

// MemberUUID is the 128-bit identifier of a member, stable for a process
// lifetime (spec.md §3).
type MemberUUID [16]byte

func NewMemberUUID() (MemberUUID, error) {
	var id MemberUUID

	b, err := uuid.GenerateRandomBytes(16)
	if err != nil {
		return id, ErrorParamsInvalid.Error(err)
	}

	copy(id[:], b)
	return id, nil
}

func (m MemberUUID) String() string {
	const hex = "0123456789abcdef"
	out := make([]byte, 0, 36)

	for i, b := range m {
		if i == 4 || i == 6 || i == 8 || i == 10 {
			out = append(out, '-')
		}
		out = append(out, hex[b>>4], hex[b&0x0f])
	}

	return string(out)
}

// ViewType classifies a View as described in spec.md §3.
type ViewType uint8

const (
	ViewPrimary ViewType = iota
	ViewNonPrimary
	ViewEmpty
)

func (t ViewType) String() string {
	switch t {
	case ViewPrimary:
		return "PRIMARY"
	case ViewNonPrimary:
		return "NON_PRIMARY"
	case ViewEmpty:
		return "EMPTY"
	default:
		return "UNKNOWN"
	}
}

// Member is one entry of a View's membership list.
type Member struct {
	UUID   MemberUUID
	Addr   string
	Weight int
}

// View is the immutable tuple emitted by group-comm on every membership
// change: (view_id, type, members[], my_index, state_id). A member may
// commit write-sets only under a PRIMARY view (spec.md §3 invariant).
type View struct {
	ID      uint64
	Type    ViewType
	Members []Member
	MyIndex int
	StateID string
}

func (v View) IsPrimary() bool {
	return v.Type == ViewPrimary
}

func (v View) Contains(id MemberUUID) bool {
	for _, m := range v.Members {
		if m.UUID == id {
			return true
		}
	}
	return false
}

// Intersection returns the members of v also present in prev, used by PC's
// majority rule.
func (v View) Intersection(prev View) []Member {
	out := make([]Member, 0, len(v.Members))
	for _, m := range v.Members {
		if prev.Contains(m.UUID) {
			out = append(out, m)
		}
	}
	return out
}

// Payload is a user message delivered by handle_up, tagged with its source
// member, a user-defined type, and the per-source aggregate sequence used
// for FIFO-per-source ordering (spec.md §4.2).
type Payload struct {
	Source   MemberUUID
	UserType uint8
	SeqSrc   uint64
	Data     []byte
}

// Delivery is what handle_up hands to L2: either a Payload or a View, never
// both, with Views acting as barriers in the delivery stream (no payload
// from view v is delivered after view v+1 is delivered).
type Delivery struct {
	Payload *Payload
	View    *View
}
