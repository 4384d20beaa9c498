package storage

import "errors"

var (
	// ErrNotFound is returned by Get when the key is absent.
	ErrNotFound = errors.New("storage: key not found")
	// ErrClosed is returned by operations on a closed in-memory store.
	ErrClosed = errors.New("storage: database closed")
)

// Database is the key-value surface the state manager commits into. Backends
// must apply a Batch atomically.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	Write(batch *Batch) error
	Close()
}

type batchOp struct {
	key, value []byte
	del        bool
}

// Batch records an ordered set of writes that are applied all-or-nothing.
// Keys and values are copied on insert so callers may reuse their buffers.
type Batch struct {
	ops []batchOp
}

func NewBatch() *Batch { return &Batch{} }

func (b *Batch) Put(key, value []byte) {
	b.ops = append(b.ops, batchOp{key: clone(key), value: clone(value)})
}

func (b *Batch) Delete(key []byte) {
	b.ops = append(b.ops, batchOp{key: clone(key), del: true})
}

// Len reports the number of queued operations; a nil batch is empty.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Replay feeds each queued operation to put or del in insertion order and
// stops at the first error.
func (b *Batch) Replay(put func(key, value []byte) error, del func(key []byte) error) error {
	for _, op := range b.opsOrNil() {
		var err error
		if op.del {
			err = del(op.key)
		} else {
			err = put(op.key, op.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *Batch) opsOrNil() []batchOp {
	if b == nil {
		return nil
	}
	return b.ops
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }
