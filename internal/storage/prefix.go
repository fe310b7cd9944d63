package storage

// PrefixDB wraps a DB and prepends a fixed prefix to all keys, so several
// stores (admin state, token registry, rpc overrides) share one database.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB creates a new PrefixDB wrapping inner with the given prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: cloneBytes(prefix)}
}

func withPrefix(prefix, key []byte) []byte {
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}

// Get retrieves a value by key.
func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(withPrefix(p.prefix, key))
}

// Put stores a key-value pair.
func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(withPrefix(p.prefix, key), value)
}

// Delete removes a key.
func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(withPrefix(p.prefix, key))
}

// Has checks if a key exists.
func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(withPrefix(p.prefix, key))
}

// ForEach iterates over keys with the given prefix inside the namespace.
// Keys passed to fn have the namespace prefix stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return p.inner.ForEach(withPrefix(p.prefix, prefix), func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// DeleteAll removes all keys under this namespace.
func (p *PrefixDB) DeleteAll() error {
	var keys [][]byte
	err := p.inner.ForEach(p.prefix, func(key, _ []byte) error {
		keys = append(keys, cloneBytes(key))
		return nil
	})
	if err != nil {
		return err
	}
	b := p.NewBatch()
	for _, key := range keys {
		if err := b.Delete(key[len(p.prefix):]); err != nil {
			return err
		}
	}
	return b.Commit()
}

// Close is a no-op; the inner DB manages its own lifecycle.
func (p *PrefixDB) Close() error {
	return nil
}

// NewBatch returns a batch that prefixes keys and commits through the inner
// DB's batch. Without one, writes are applied one by one on Commit.
func (p *PrefixDB) NewBatch() Batch {
	batcher, ok := p.inner.(Batcher)
	if !ok {
		return &sequentialBatch{db: p}
	}
	return &prefixBatch{inner: batcher.NewBatch(), prefix: p.prefix}
}

type prefixBatch struct {
	inner  Batch
	prefix []byte
}

func (pb *prefixBatch) Put(key, value []byte) error {
	return pb.inner.Put(withPrefix(pb.prefix, key), value)
}

func (pb *prefixBatch) Delete(key []byte) error {
	return pb.inner.Delete(withPrefix(pb.prefix, key))
}

func (pb *prefixBatch) Commit() error {
	return pb.inner.Commit()
}

// sequentialBatch buffers writes and applies them non-atomically.
type sequentialBatch struct {
	db  DB
	ops []memoryOp
}

func (sb *sequentialBatch) Put(key, value []byte) error {
	v := cloneBytes(value)
	if v == nil {
		v = []byte{}
	}
	sb.ops = append(sb.ops, memoryOp{key: string(key), value: v})
	return nil
}

func (sb *sequentialBatch) Delete(key []byte) error {
	sb.ops = append(sb.ops, memoryOp{key: string(key)})
	return nil
}

func (sb *sequentialBatch) Commit() error {
	for _, op := range sb.ops {
		var err error
		if op.value == nil {
			err = sb.db.Delete([]byte(op.key))
		} else {
			err = sb.db.Put([]byte(op.key), op.value)
		}
		if err != nil {
			return err
		}
	}
	sb.ops = nil
	return nil
}
