package storage

// PrefixTxn confines a caller's transaction to one key namespace. The
// ledger, certificate registry and ticket engine each wrap the same Txn
// with their own prefix so that one commit covers all three.
type PrefixTxn struct {
	inner  Txn
	prefix []byte
}

// NewPrefixTxn wraps txn so every key is read and written under prefix.
// Wrapping a PrefixTxn nests the namespaces.
func NewPrefixTxn(txn Txn, prefix []byte) *PrefixTxn {
	if p, ok := txn.(*PrefixTxn); ok {
		return &PrefixTxn{inner: p.inner, prefix: join(p.prefix, prefix)}
	}
	return &PrefixTxn{inner: txn, prefix: clone(prefix)}
}

func join(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	return append(append(out, prefix...), key...)
}

func (p *PrefixTxn) Get(key []byte) ([]byte, error) {
	return p.inner.Get(join(p.prefix, key))
}

func (p *PrefixTxn) Has(key []byte) (bool, error) {
	return p.inner.Has(join(p.prefix, key))
}

func (p *PrefixTxn) Put(key, value []byte) error {
	return p.inner.Put(join(p.prefix, key), value)
}

func (p *PrefixTxn) Delete(key []byte) error {
	return p.inner.Delete(join(p.prefix, key))
}

// ForEach visits keys under prefix within the namespace. Keys passed to fn
// have the namespace stripped.
func (p *PrefixTxn) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	n := len(p.prefix)
	return p.inner.ForEach(join(p.prefix, prefix), func(key, value []byte) error {
		return fn(key[n:], value)
	})
}
