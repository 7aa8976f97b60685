package kv

import (
	"errors"
	"io"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v2"
	"go.uber.org/zap"

	logger "github.com/memoio/go-voicemint/lib/log"
)

var log = logger.Logger("badger")

var ErrClosed = errors.New("datastore closed")

// badger wants Warningf
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}

// Options tune a BadgerStore.
type Options struct {
	// InMemory keeps everything in RAM; path is ignored and GC is off.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// GCInterval between value log GC cycles, zero disables GC.
	GCInterval time.Duration
	// GCDiscardRatio passed to RunValueLogGC.
	GCDiscardRatio float64
}

// DefaultOptions suit the publication record store: a handful of small
// documents, rewritten a few times each.
func DefaultOptions() Options {
	return Options{
		GCInterval:     15 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

var _ Store = (*BadgerStore)(nil)

// BadgerStore is a Store over badger.
type BadgerStore struct {
	opts Options

	lk     sync.RWMutex
	db     *badger.DB // nil once closed
	stopGC chan struct{}
}

// NewBadgerStore opens (or creates) a store in dir. nil opts means
// DefaultOptions.
func NewBadgerStore(dir string, opts *Options) (*BadgerStore, error) {
	o := DefaultOptions()
	if opts != nil {
		o = *opts
	}

	bopt := badger.DefaultOptions(dir).
		WithSyncWrites(o.SyncWrites).
		WithCompactL0OnClose(false).
		WithLogger(badgerLogger{log})
	if o.InMemory {
		bopt = bopt.WithDir("").WithValueDir("").WithInMemory(true)
		o.GCInterval = 0
	}

	db, err := badger.Open(bopt)
	if err != nil {
		return nil, err
	}

	s := &BadgerStore{
		opts:   o,
		db:     db,
		stopGC: make(chan struct{}),
	}
	if o.GCInterval > 0 {
		go s.gcLoop()
	}
	return s, nil
}

// NewMemStore opens a badger store that never touches disk.
func NewMemStore() (*BadgerStore, error) {
	return NewBadgerStore("", &Options{InMemory: true})
}

// with runs fn against the open db under the read lock.
func (s *BadgerStore) with(fn func(db *badger.DB) error) error {
	s.lk.RLock()
	defer s.lk.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return fn(s.db)
}

func (s *BadgerStore) Put(key, value []byte) error {
	return s.with(func(db *badger.DB) error {
		return db.Update(func(txn *badger.Txn) error {
			return txn.Set(key, value)
		})
	})
}

func (s *BadgerStore) Get(key []byte) ([]byte, error) {
	var val []byte
	err := s.with(func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				return nil
			}
			if err != nil {
				return err
			}
			val, err = item.ValueCopy(nil)
			return err
		})
	})
	return val, err
}

func (s *BadgerStore) Has(key []byte) (bool, error) {
	var ok bool
	err := s.with(func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			_, err := txn.Get(key)
			if err == badger.ErrKeyNotFound {
				return nil
			}
			ok = err == nil
			return err
		})
	})
	return ok, err
}

func (s *BadgerStore) Delete(key []byte) error {
	return s.with(func(db *badger.DB) error {
		return db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
	})
}

// Iter skips pairs whose value cannot be read; a closed store yields 0.
func (s *BadgerStore) Iter(prefix []byte, fn func(k, v []byte) error) int64 {
	var n int64
	s.with(func(db *badger.DB) error {
		return db.View(func(txn *badger.Txn) error {
			iopt := badger.DefaultIteratorOptions
			iopt.Prefix = prefix
			it := txn.NewIterator(iopt)
			defer it.Close()

			for it.Rewind(); it.Valid(); it.Next() {
				item := it.Item()
				v, err := item.ValueCopy(nil)
				if err != nil {
					log.Debugf("skip %q: %s", item.Key(), err)
					continue
				}
				if fn(item.KeyCopy(nil), v) == nil {
					n++
				}
			}
			return nil
		})
	})
	return n
}

// Backup writes a full dump of the store to w and returns the version it
// covers.
func (s *BadgerStore) Backup(w io.Writer) (uint64, error) {
	var since uint64
	err := s.with(func(db *badger.DB) error {
		var err error
		since, err = db.Backup(w, 0)
		return err
	})
	return since, err
}

// Load restores a dump written by Backup. Existing keys are overwritten.
func (s *BadgerStore) Load(r io.Reader) error {
	return s.with(func(db *badger.DB) error {
		return db.Load(r, 256)
	})
}

func (s *BadgerStore) Close() error {
	s.lk.Lock()
	defer s.lk.Unlock()
	if s.db == nil {
		return ErrClosed
	}

	close(s.stopGC)
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *BadgerStore) gcLoop() {
	t := time.NewTicker(s.opts.GCInterval)
	defer t.Stop()

	for {
		select {
		case <-s.stopGC:
			return
		case <-t.C:
		}

		// drain until badger has nothing left to rewrite
		for {
			err := s.with(func(db *badger.DB) error {
				return db.RunValueLogGC(s.opts.GCDiscardRatio)
			})
			if err == nil {
				continue
			}
			if err != badger.ErrNoRewrite && err != badger.ErrRejected && err != ErrClosed {
				log.Errorf("value log gc: %s", err)
			}
			break
		}
	}
}
