// Package checkpoint persists the small durable breadcrumb a node needs to
// shortcut recovery after a clean shutdown: the last stable seqno and
// state_id. This is not the state-snapshot on-disk format itself (that
// remains an external collaborator, spec.md §1) — it is a recovery-speed
// optimization layered on top of it, grounded in the teacher's
// config/components/nutsdb component.
package checkpoint

import (
	"encoding/binary"

	"github.com/nutsdb/nutsdb"
)

var bucket = []byte("checkpoint")

const keyLastStable = "last_stable"
const keyStateID = "state_id"

// Store is a tiny nutsdb-backed key/value breadcrumb store: last committed
// seqno plus the replication state_id it corresponds to.
type Store struct {
	db *nutsdb.DB
}

func Open(dir string) (*Store, error) {
	opt := nutsdb.DefaultOptions
	opt.Dir = dir

	db, err := nutsdb.Open(opt)
	if err != nil {
		return nil, ErrorOpenFailed.Error(err)
	}

	return &Store{db: db}, nil
}

// Save records the last stable seqno and the state_id it belongs to,
// overwriting any previous breadcrumb.
func (s *Store) Save(seqno int64, stateID string) error {
	return s.db.Update(func(tx *nutsdb.Tx) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(seqno))

		if err := tx.Put(bucket, []byte(keyLastStable), buf, 0); err != nil {
			return err
		}

		return tx.Put(bucket, []byte(keyStateID), []byte(stateID), 0)
	})
}

// Load returns the last saved breadcrumb, ErrorNotFound if none exists yet
// (first boot).
func (s *Store) Load() (seqno int64, stateID string, err error) {
	rerr := s.db.View(func(tx *nutsdb.Tx) error {
		e, gerr := tx.Get(bucket, []byte(keyLastStable))
		if gerr != nil {
			return gerr
		}
		if len(e.Value) < 8 {
			return ErrorIO.Error()
		}
		seqno = int64(binary.BigEndian.Uint64(e.Value))

		e2, gerr := tx.Get(bucket, []byte(keyStateID))
		if gerr != nil {
			return gerr
		}
		stateID = string(e2.Value)

		return nil
	})

	if rerr != nil {
		return 0, "", ErrorNotFound.Error(rerr)
	}

	return seqno, stateID, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return ErrorIO.Error(err)
	}
	return nil
}
