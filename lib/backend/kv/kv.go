package kv

// Store is the byte-oriented key value store shared by the repo, the local
// metadata store and the publication records.
type Store interface {
	Put(key, value []byte) error
	// Get returns nil, nil for a missing key.
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)
	Delete(key []byte) error
	// Iter calls fn for every pair under prefix and returns how many calls
	// succeeded.
	Iter(prefix []byte, fn func(k, v []byte) error) int64
	Close() error
}
