package cert

import (
	"github.com/fxamacker/cbor/v2"
	validator "github.com/go-playground/validator/v10"

	"github.com/nabbar/wsrepl/gcs"
)

// Flag bits carried by a write-set (spec.md §6).
type Flag uint16

const (
	FlagCommit Flag = 1 << iota
	FlagRollback
	FlagIsolation
	FlagPAUnsafe
	FlagCommutative
	FlagNative
)

// Key is one certification key: an opaque byte string with a full/partial
// match tag (spec.md §6).
type Key struct {
	Bytes   []byte `cbor:"bytes" validate:"required"`
	Partial bool   `cbor:"partial"`
}

// WriteSet is the unit of replication (spec.md §3): source, trx id, the
// originator's snapshot horizon, certification keys, opaque payload, and
// flags.
type WriteSet struct {
	SourceUUID   [16]byte  `cbor:"source"`
	TrxID        uint64    `cbor:"trx_id"`
	LastSeenSeqno gcs.SEQNO `cbor:"last_seen" validate:"gte=-1"`
	Keys         []Key     `cbor:"keys" validate:"required,min=1,dive"`
	Data         []byte    `cbor:"data"`
	Flags        Flag      `cbor:"flags"`
}

func (w WriteSet) Validate() error {
	return validator.New().Struct(w)
}

func Encode(w WriteSet) ([]byte, error) {
	return cbor.Marshal(w)
}

func Decode(b []byte) (WriteSet, error) {
	var w WriteSet
	err := cbor.Unmarshal(b, &w)
	return w, err
}
