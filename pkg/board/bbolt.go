package board

import (
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const defaultBucket = "board"

// ErrMissingBucket is returned if the board's bucket was somehow removed
// from an otherwise-open database file.
var ErrMissingBucket = fmt.Errorf("board: bucket not found")

// Bbolt is a durable, single-file Board backed by bbolt, for a host that
// wants to run its own board node rather than relying on a third party.
// Unlike SessionManager's own persistence (pkg/siv, AES-256-SIV at rest),
// board contents are not assumed confidential from the process running
// this store — the board is untrusted storage the protocol already treats
// as visible to an adversary.
type Bbolt struct {
	db *bolt.DB
}

// OpenBbolt opens (creating if absent) a bbolt-backed board at path.
func OpenBbolt(path string) (*Bbolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("board: open: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(defaultBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("board: create bucket: %w", err)
	}
	return &Bbolt{db: db}, nil
}

func (b *Bbolt) Close() error { return b.db.Close() }

func (b *Bbolt) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(defaultBucket))
		if bucket == nil {
			return ErrMissingBucket
		}
		return bucket.Put(key, value)
	})
}

func (b *Bbolt) Get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(defaultBucket))
		if bucket == nil {
			return ErrMissingBucket
		}
		v := bucket.Get(key)
		if v == nil {
			return nil
		}
		// Returned slices are only valid for the transaction's lifetime;
		// copy out before View returns.
		value = append([]byte(nil), v...)
		return nil
	})
	return value, value != nil, err
}

// Delete removes a key, used by callers garbage-collecting acknowledged
// board entries.
func (b *Bbolt) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(defaultBucket))
		if bucket == nil {
			return ErrMissingBucket
		}
		return bucket.Delete(key)
	})
}
