package storage

import "sync"

// BatchWriter is implemented by backends that can apply a set of writes
// atomically. A nil value in the batch deletes the key.
type BatchWriter interface {
	Apply(writes map[string][]byte) error
}

// Overlay buffers writes on top of a base database until Commit. Reads see the
// pending writes first. Discard drops them.
type Overlay struct {
	mu      sync.RWMutex
	base    Database
	pending map[string][]byte
}

// NewOverlay stacks an empty write buffer on base.
func NewOverlay(base Database) *Overlay {
	return &Overlay{base: base, pending: make(map[string][]byte)}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	buf := make([]byte, len(value))
	copy(buf, value)
	o.pending[string(key)] = buf
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	value, ok := o.pending[string(key)]
	o.mu.RUnlock()
	if ok {
		if value == nil {
			return nil, ErrNotFound
		}
		return append([]byte(nil), value...), nil
	}
	return o.base.Get(key)
}

func (o *Overlay) Delete(key []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[string(key)] = nil
	return nil
}

// Pending reports the number of buffered writes.
func (o *Overlay) Pending() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.pending)
}

// Commit flushes the buffered writes into the base database. Backends that
// implement BatchWriter receive the writes as one batch.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return nil
	}
	if bw, ok := o.base.(BatchWriter); ok {
		if err := bw.Apply(o.pending); err != nil {
			return err
		}
	} else {
		for key, value := range o.pending {
			var err error
			if value == nil {
				err = o.base.Delete([]byte(key))
			} else {
				err = o.base.Put([]byte(key), value)
			}
			if err != nil {
				return err
			}
		}
	}
	o.pending = make(map[string][]byte)
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.mu.Lock()
	o.pending = make(map[string][]byte)
	o.mu.Unlock()
}

// Close discards pending writes. The base database stays open.
func (o *Overlay) Close() {
	o.Discard()
}
