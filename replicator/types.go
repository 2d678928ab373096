package replicator

import (
	"context"

	"github.com/nabbar/wsrepl/cert"
	"github.com/nabbar/wsrepl/gcs"
)

// State is the replicator-visible node lifecycle. L5 does not invent a
// competing state model: it reuses the GCS-layer state machine of
// spec.md §4.3 verbatim (CLOSED -> OPEN -> CONNECTED -> JOINER ->
// DONOR|JOINED -> SYNCED -> DONOR|SYNCED).
type State = gcs.NodeState

const (
	StateClosed    = gcs.StateClosed
	StateOpen      = gcs.StateOpen
	StateConnected = gcs.StateConnected
	StateJoiner    = gcs.StateJoiner
	StateDonor     = gcs.StateDonor
	StateJoined    = gcs.StateJoined
	StateSynced    = gcs.StateSynced
)

// ApplyFunc is the database-side hook invoked for every certified
// write-set originated by a peer that this node must apply (spec.md §4.6
// "Applying"). Calls for different seqnos may run concurrently, up to
// Config.ApplyConcurrency at a time; only the commit bookkeeping after
// them is chained in seqno order. It is never called for this node's own
// write-sets: those were already executed optimistically by the caller
// before Replicate was invoked.
type ApplyFunc func(ctx context.Context, seqno gcs.SEQNO, ws cert.WriteSet) error

// ReplicateResult is returned by Replicate once a write-set has cleared
// certification.
type ReplicateResult struct {
	Seqno gcs.SEQNO
}

// SnapshotFunc produces the donor-side state snapshot handed out-of-band
// to a joiner during SST (spec.md §4.6 "Donating"). The returned path is
// advertised through the Monitor module's manifest endpoint for the
// joiner to fetch (SPEC_FULL.md L5 addition).
type SnapshotFunc func(ctx context.Context) (path string, err error)

// RestoreFunc installs a snapshot fetched during SST before IST draining
// begins, returning the seqno/state_id it represents.
type RestoreFunc func(ctx context.Context, path string) (seqno gcs.SEQNO, stateID string, err error)

type deferredApply struct {
	seqno gcs.SEQNO
	ws    cert.WriteSet
}
